package plugins

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/aretw0/sluice/pkg/pipeline"
)

// RenameOptions rewrites path parts. A file path is treated as
// dirname/prefix+basename+suffix+extname, relative to its base.
type RenameOptions struct {
	Dirname  *string `mapstructure:"dirname"`
	Basename *string `mapstructure:"basename"`
	Prefix   string  `mapstructure:"prefix"`
	Suffix   string  `mapstructure:"suffix"`
	Extname  *string `mapstructure:"extname"`
}

// NewRename changes file names without touching contents.
func NewRename(opts map[string]any, _ Env) (pipeline.Stage, error) {
	var o RenameOptions
	if err := decode(opts, &o); err != nil {
		return nil, err
	}
	return pipeline.Map("rename", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		rel := filepath.ToSlash(f.Relative())
		dir, file := path.Split(rel)
		ext := path.Ext(file)
		base := strings.TrimSuffix(file, ext)

		if o.Dirname != nil {
			dir = *o.Dirname
		}
		if o.Basename != nil {
			base = *o.Basename
		}
		if o.Extname != nil {
			ext = *o.Extname
		}
		name := o.Prefix + base + o.Suffix + ext
		if name == "" {
			return nil, fmt.Errorf("rename produced an empty file name")
		}

		out := f.Clone()
		out.SetRelative(path.Join(dir, name))
		return out, nil
	}), nil
}

// ConcatOptions configures concat.
type ConcatOptions struct {
	File      string `mapstructure:"file"`
	Separator string `mapstructure:"separator"`
}

// NewConcat joins the whole stream into one file. An empty stream yields nothing.
func NewConcat(opts map[string]any, _ Env) (pipeline.Stage, error) {
	o := ConcatOptions{Separator: "\n"}
	if err := decode(opts, &o); err != nil {
		return nil, err
	}
	if o.File == "" {
		return nil, fmt.Errorf("option file is required")
	}
	return pipeline.Reduce("concat", func(_ context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
		if len(files) == 0 {
			return nil, nil
		}
		return []*pipeline.File{join(files, o.File, o.Separator)}, nil
	}), nil
}
