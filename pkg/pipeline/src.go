package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob is a resolved source match.
type Glob struct {
	Path string
	Base string
}

// cleanPattern normalises a user pattern to the slash separated, root relative
// form doublestar expects.
func cleanPattern(p string) string {
	p = filepath.ToSlash(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return path.Clean(p)
}

// Expand resolves patterns relative to root. Patterns starting with "!" exclude
// earlier matches. Directories are skipped. Zero matches is not an error. The
// result is sorted by path and free of duplicates.
func Expand(root string, patterns ...string) ([]Glob, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]Glob)
	var excludes []string

	for _, raw := range patterns {
		if strings.HasPrefix(raw, "!") {
			excludes = append(excludes, cleanPattern(raw[1:]))
			continue
		}
		pattern := cleanPattern(raw)
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", raw)
		}
		base, _ := doublestar.SplitPattern(pattern)

		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", raw, err)
		}
		for _, m := range matches {
			abs := filepath.Join(root, filepath.FromSlash(m))
			if _, dup := seen[abs]; dup {
				continue
			}
			seen[abs] = Glob{Path: abs, Base: filepath.Join(root, filepath.FromSlash(base))}
		}
	}

	out := make([]Glob, 0, len(seen))
	for _, g := range seen {
		rel, err := filepath.Rel(root, g.Path)
		if err != nil {
			return nil, err
		}
		if excluded(filepath.ToSlash(rel), excludes) {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func excluded(rel string, excludes []string) bool {
	for _, ex := range excludes {
		if ok, _ := doublestar.Match(ex, rel); ok {
			return true
		}
	}
	return false
}

// Src returns a source reading every file matched by patterns below root.
func Src(root string, patterns ...string) Source {
	return func(ctx context.Context, out chan<- *File) error {
		globs, err := Expand(root, patterns...)
		if err != nil {
			return err
		}
		for _, g := range globs {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := os.Stat(g.Path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", g.Path, err)
			}
			data, err := os.ReadFile(g.Path)
			if err != nil {
				return fmt.Errorf("read %s: %w", g.Path, err)
			}
			f := &File{
				Path:     g.Path,
				Base:     g.Base,
				Contents: data,
				Mode:     info.Mode().Perm(),
				ModTime:  info.ModTime(),
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
}
