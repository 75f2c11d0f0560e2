package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/sluice/pkg/pipeline"
)

// SassOptions configures the sass plugin.
type SassOptions struct {
	Tool      string   `mapstructure:"tool"`
	LoadPaths []string `mapstructure:"load_paths"`
	Style     string   `mapstructure:"style"`
}

// NewSass compiles SCSS through the external sass tool, feeding each file on
// stdin. Partials (files starting with "_") are dropped from the stream.
func NewSass(opts map[string]any, env Env) (pipeline.Stage, error) {
	o := SassOptions{Tool: "sass"}
	if err := decode(opts, &o); err != nil {
		return nil, err
	}
	if env.Tools == nil {
		return nil, fmt.Errorf("no tool runner configured")
	}
	switch o.Style {
	case "", "expanded", "compressed":
	default:
		return nil, fmt.Errorf("unsupported style %q", o.Style)
	}

	return pipeline.Map("sass", func(ctx context.Context, f *pipeline.File) (*pipeline.File, error) {
		if strings.HasPrefix(filepath.Base(f.Path), "_") {
			return nil, nil
		}
		args := []string{"--stdin", "--no-source-map", "--load-path=" + filepath.Dir(f.Path)}
		for _, p := range o.LoadPaths {
			if !filepath.IsAbs(p) {
				p = filepath.Join(env.Root, p)
			}
			args = append(args, "--load-path="+p)
		}
		if o.Style != "" {
			args = append(args, "--style="+o.Style)
		}

		css, err := env.Tools.Run(ctx, o.Tool, f.Contents, args...)
		if err != nil {
			return nil, err
		}
		out := f.Clone()
		out.Contents = css
		out.SetExt(".css")
		return out, nil
	}), nil
}
