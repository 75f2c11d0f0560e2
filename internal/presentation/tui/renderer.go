package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders Markdown for the terminal.
// Output that is not a terminal gets the Markdown unchanged.
func NewRenderer(f *os.File) func(string) (string, error) {
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return plain
	}
	width := 80
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		width = w
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return plain
	}
	return r.Render
}

// NewStyledRenderer always renders with the given glamour style ("dark",
// "light", "notty", ...).
func NewStyledRenderer(style string) (func(string) (string, error), error) {
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle(style))
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}

func plain(md string) (string, error) { return md, nil }
