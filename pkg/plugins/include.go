package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aretw0/sluice/pkg/pipeline"
)

// FileIncludeOptions configures file-include.
//
// Basepath resolves include paths: "@file" (default) relative to the including
// file, "@root" relative to the project root, anything else is a directory.
type FileIncludeOptions struct {
	Prefix   string         `mapstructure:"prefix"`
	Basepath string         `mapstructure:"basepath"`
	Context  map[string]any `mapstructure:"context"`
}

type includer struct {
	opts    FileIncludeOptions
	root    string
	include *regexp.Regexp
	vars    *regexp.Regexp
}

// NewFileInclude expands prefix+include('path'[, {json}]) directives and
// prefix+name variables. Included files are expanded recursively with the
// JSON object merged over the inherited context.
func NewFileInclude(opts map[string]any, env Env) (pipeline.Stage, error) {
	o := FileIncludeOptions{Prefix: "@@", Basepath: "@file"}
	if err := decode(opts, &o); err != nil {
		return nil, err
	}
	if o.Prefix == "" {
		return nil, fmt.Errorf("prefix must not be empty")
	}
	p := regexp.QuoteMeta(o.Prefix)
	inc := &includer{
		opts:    o,
		root:    env.Root,
		include: regexp.MustCompile(p + `include\(\s*['"]([^'"]+)['"]\s*(?:,\s*(\{[\s\S]*?\}))?\s*\)`),
		vars:    regexp.MustCompile(p + `([A-Za-z_][\w.]*)`),
	}

	return pipeline.Map("file-include", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		res, err := inc.expand(f.Path, f.Contents, o.Context, []string{f.Path})
		if err != nil {
			return nil, err
		}
		out := f.Clone()
		out.Contents = res
		return out, nil
	}), nil
}

func (in *includer) base(file string) string {
	switch in.opts.Basepath {
	case "", "@file":
		return filepath.Dir(file)
	case "@root":
		return in.root
	default:
		if filepath.IsAbs(in.opts.Basepath) {
			return in.opts.Basepath
		}
		return filepath.Join(in.root, in.opts.Basepath)
	}
}

func (in *includer) expand(file string, src []byte, vars map[string]any, stack []string) ([]byte, error) {
	var firstErr error
	out := in.include.ReplaceAllFunc(src, func(m []byte) []byte {
		if firstErr != nil {
			return m
		}
		sub := in.include.FindSubmatch(m)
		target := filepath.Join(in.base(file), filepath.FromSlash(string(sub[1])))

		for _, seen := range stack {
			if seen == target {
				firstErr = fmt.Errorf("include cycle: %s -> %s", strings.Join(relAll(in.root, stack), " -> "), relTo(in.root, target))
				return m
			}
		}

		scope := vars
		if len(sub[2]) > 0 {
			var local map[string]any
			if err := json.Unmarshal(sub[2], &local); err != nil {
				firstErr = fmt.Errorf("include %s: invalid context: %w", sub[1], err)
				return m
			}
			scope = merge(vars, local)
		}

		data, err := os.ReadFile(target)
		if err != nil {
			firstErr = fmt.Errorf("include %s: %w", sub[1], err)
			return m
		}
		res, err := in.expand(target, data, scope, append(stack[:len(stack):len(stack)], target))
		if err != nil {
			firstErr = err
			return m
		}
		return res
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return in.substitute(out, vars), nil
}

func (in *includer) substitute(src []byte, vars map[string]any) []byte {
	if len(vars) == 0 {
		return src
	}
	return in.vars.ReplaceAllFunc(src, func(m []byte) []byte {
		name := string(m[len(in.opts.Prefix):])
		key := strings.TrimRight(name, ".")
		if v, ok := lookup(vars, key); ok {
			return []byte(fmt.Sprint(v) + name[len(key):])
		}
		return m
	})
}

func lookup(vars map[string]any, key string) (any, bool) {
	var cur any = vars
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func merge(parent, child map[string]any) map[string]any {
	out := make(map[string]any, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}

func relAll(root string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.ToSlash(relTo(root, p))
	}
	return out
}
