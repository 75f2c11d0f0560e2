package plugins

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/aretw0/sluice/pkg/pipeline"
	"github.com/evanw/esbuild/pkg/api"
)

// MinifyCSSOptions configures minify-css.
//
// KeepSpecialComments follows clean-css: "*" keeps every /*! */ comment,
// "0" drops them.
type MinifyCSSOptions struct {
	KeepSpecialComments string `mapstructure:"keep_special_comments"`
}

// NewMinifyCSS minifies stylesheets with esbuild.
func NewMinifyCSS(opts map[string]any, _ Env) (pipeline.Stage, error) {
	o := MinifyCSSOptions{KeepSpecialComments: "*"}
	if err := decode(opts, &o); err != nil {
		return nil, err
	}
	legal := api.LegalCommentsInline
	switch o.KeepSpecialComments {
	case "*", "1":
	case "0":
		legal = api.LegalCommentsNone
	default:
		return nil, fmt.Errorf("keep_special_comments must be 0, 1 or *, got %q", o.KeepSpecialComments)
	}

	return pipeline.Map("minify-css", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		res := api.Transform(string(f.Contents), api.TransformOptions{
			Loader:           api.LoaderCSS,
			MinifyWhitespace: true,
			MinifySyntax:     true,
			LegalComments:    legal,
			Sourcefile:       f.Relative(),
		})
		if len(res.Errors) > 0 {
			return nil, messageError(res.Errors[0])
		}
		out := f.Clone()
		out.Contents = bytes.TrimSpace(res.Code)
		return out, nil
	}), nil
}

// UglifyOptions configures uglify.
type UglifyOptions struct {
	// File concatenates the stream into a single output of that name.
	File   string `mapstructure:"file"`
	Mangle bool   `mapstructure:"mangle"`
}

// NewUglify minifies JavaScript with esbuild. With File set the stream is
// concatenated first, in path order, and replaced by one bundle.
func NewUglify(opts map[string]any, _ Env) (pipeline.Stage, error) {
	o := UglifyOptions{Mangle: true}
	if err := decode(opts, &o); err != nil {
		return nil, err
	}
	minify := func(name string, src []byte) ([]byte, error) {
		res := api.Transform(string(src), api.TransformOptions{
			Loader:            api.LoaderJS,
			MinifyWhitespace:  true,
			MinifySyntax:      true,
			MinifyIdentifiers: o.Mangle,
			LegalComments:     api.LegalCommentsNone,
			Sourcefile:        name,
		})
		if len(res.Errors) > 0 {
			return nil, messageError(res.Errors[0])
		}
		return res.Code, nil
	}

	if o.File == "" {
		return pipeline.Map("uglify", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
			code, err := minify(f.Relative(), f.Contents)
			if err != nil {
				return nil, err
			}
			out := f.Clone()
			out.Contents = code
			return out, nil
		}), nil
	}

	return pipeline.Reduce("uglify", func(_ context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
		if len(files) == 0 {
			return nil, nil
		}
		bundle := join(files, o.File, ";\n")
		code, err := minify(o.File, bundle.Contents)
		if err != nil {
			return nil, err
		}
		bundle.Contents = code
		return []*pipeline.File{bundle}, nil
	}), nil
}

// LintOptions configures the jshint plugin.
type LintOptions struct {
	Reporter string `mapstructure:"reporter"`
	// Fail turns findings into a task failure.
	Fail bool `mapstructure:"fail"`
}

// Finding is one lint result.
type Finding struct {
	File    string
	Line    int
	Column  int
	Message string
	Warning bool
}

// Lint parses src as JavaScript and returns syntax errors and warnings.
func Lint(name string, src []byte) []Finding {
	res := api.Transform(string(src), api.TransformOptions{
		Loader:     api.LoaderJS,
		Sourcefile: name,
		LogLevel:   api.LogLevelSilent,
	})
	var out []Finding
	add := func(msgs []api.Message, warning bool) {
		for _, m := range msgs {
			f := Finding{File: name, Message: m.Text, Warning: warning}
			if m.Location != nil {
				f.Line = m.Location.Line
				f.Column = m.Location.Column + 1
			}
			out = append(out, f)
		}
	}
	add(res.Errors, false)
	add(res.Warnings, true)
	return out
}

// NewLint checks scripts for syntax problems and prints a stylish report.
// Files pass through unchanged.
func NewLint(opts map[string]any, env Env) (pipeline.Stage, error) {
	o := LintOptions{Reporter: "stylish"}
	if err := decode(opts, &o); err != nil {
		return nil, err
	}
	if o.Reporter != "stylish" {
		return nil, fmt.Errorf("unsupported reporter %q", o.Reporter)
	}

	return pipeline.StageFunc(func(ctx context.Context, in <-chan *pipeline.File, out chan<- *pipeline.File) error {
		rep := newStylish(env.Out)
		for f := range in {
			name := filepath.ToSlash(relTo(env.Root, f.Path))
			rep.file(name, Lint(name, f.Contents))
			select {
			case out <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		rep.summary()
		if o.Fail && rep.problems > 0 {
			return fmt.Errorf("%d problem(s) found", rep.problems)
		}
		return nil
	}), nil
}

func messageError(m api.Message) error {
	if m.Location == nil {
		return fmt.Errorf("%s", m.Text)
	}
	return fmt.Errorf("%d:%d: %s", m.Location.Line, m.Location.Column+1, m.Text)
}

// join concatenates files into a new file named name below the first file's base.
func join(files []*pipeline.File, name, sep string) *pipeline.File {
	var buf bytes.Buffer
	for i, f := range files {
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.Write(f.Contents)
	}
	first := files[0]
	out := &pipeline.File{
		Base:     first.Base,
		Contents: buf.Bytes(),
		Mode:     first.Mode,
		ModTime:  first.ModTime,
	}
	for _, f := range files[1:] {
		if f.ModTime.After(out.ModTime) {
			out.ModTime = f.ModTime
		}
	}
	out.SetRelative(path.Clean(strings.TrimPrefix(filepath.ToSlash(name), "/")))
	return out
}

func relTo(root, p string) string {
	if root == "" {
		return p
	}
	if rel, err := filepath.Rel(root, p); err == nil {
		return rel
	}
	return p
}
