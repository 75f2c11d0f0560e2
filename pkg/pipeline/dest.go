package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Dest writes every file below dir, keeping its path relative to its base, and
// forwards it with Path and Base pointing at the written copy. A target that
// already holds the same bytes is left untouched, so unchanged outputs keep
// their modification time and raise no file-system events.
func Dest(dir string) Stage {
	return Map("dest", func(ctx context.Context, f *File) (*File, error) {
		target := filepath.Join(dir, f.Relative())
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		if current, err := os.ReadFile(target); err != nil || !bytes.Equal(current, f.Contents) {
			if err := os.WriteFile(target, f.Contents, mode); err != nil {
				return nil, fmt.Errorf("write %s: %w", target, err)
			}
		}
		out := f.Clone()
		out.Base = dir
		out.Path = target
		return out, nil
	})
}
