package plugins

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/aretw0/sluice/pkg/pipeline"
	"github.com/mitchellh/mapstructure"
)

// HTMLBlock is the replacement for one build block. Tpl is a fmt template
// applied to every Src entry; when empty it is derived from the extension.
type HTMLBlock struct {
	Src []string `mapstructure:"src"`
	Tpl string   `mapstructure:"tpl"`
}

var buildBlock = regexp.MustCompile(`(?s)([ \t]*)<!--\s*build:([\w-]+)\s*-->.*?<!--\s*endbuild\s*-->`)

// NewHTMLReplace swaps <!-- build:name --> ... <!-- endbuild --> blocks for the
// tags configured under name. Blocks without a configured name are removed
// unless keep_unassigned is set.
func NewHTMLReplace(opts map[string]any, _ Env) (pipeline.Stage, error) {
	blocks := make(map[string]HTMLBlock)
	keepUnassigned := false
	for name, raw := range opts {
		if name == "keep_unassigned" {
			v, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("keep_unassigned must be a boolean")
			}
			keepUnassigned = v
			continue
		}
		b, err := decodeBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", name, err)
		}
		blocks[name] = b
	}

	return pipeline.Map("html-replace", func(_ context.Context, f *pipeline.File) (*pipeline.File, error) {
		out := f.Clone()
		out.Contents = buildBlock.ReplaceAllFunc(f.Contents, func(m []byte) []byte {
			sub := buildBlock.FindSubmatch(m)
			indent, name := string(sub[1]), string(sub[2])
			b, ok := blocks[name]
			if !ok {
				if keepUnassigned {
					return m
				}
				return nil
			}
			lines := make([]string, len(b.Src))
			for i, src := range b.Src {
				lines[i] = indent + b.render(src)
			}
			return []byte(strings.Join(lines, "\n"))
		})
		return out, nil
	}), nil
}

func decodeBlock(raw any) (HTMLBlock, error) {
	var b HTMLBlock
	input := raw
	if _, ok := raw.(map[string]any); !ok {
		input = map[string]any{"src": raw}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &b,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return b, err
	}
	if err := dec.Decode(input); err != nil {
		return b, err
	}
	if len(b.Src) == 0 {
		return b, fmt.Errorf("src is required")
	}
	if b.Tpl != "" && strings.Count(b.Tpl, "%s") != 1 {
		return b, fmt.Errorf("tpl must contain exactly one %%s")
	}
	return b, nil
}

func (b HTMLBlock) render(src string) string {
	if b.Tpl != "" {
		return fmt.Sprintf(b.Tpl, src)
	}
	switch path.Ext(src) {
	case ".js":
		return fmt.Sprintf(`<script src="%s"></script>`, src)
	case ".css":
		return fmt.Sprintf(`<link rel="stylesheet" href="%s">`, src)
	default:
		return src
	}
}
