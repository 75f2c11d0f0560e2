package plugins

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// stylish mimics the jshint-stylish layout: a header per file, one indented line
// per finding, and a coloured total.
type stylish struct {
	out      *termenv.Output
	problems int
	warnings int
}

func newStylish(w io.Writer) *stylish {
	return &stylish{out: termenv.NewOutput(w)}
}

func (s *stylish) file(name string, findings []Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintln(s.out, s.out.String(name).Underline())
	for _, f := range findings {
		pos := s.out.String(fmt.Sprintf("line %d  col %d", f.Line, f.Column)).Faint()
		msg := s.out.String(f.Message).Foreground(s.out.Color("4"))
		if f.Warning {
			s.warnings++
		} else {
			s.problems++
		}
		fmt.Fprintf(s.out, "  %s  %s\n", pos, msg)
	}
	fmt.Fprintln(s.out)
}

func (s *stylish) summary() {
	if s.problems > 0 {
		fmt.Fprintf(s.out, "%s\n", s.out.String(fmt.Sprintf("✖ %d problem(s)", s.problems)).Foreground(s.out.Color("1")))
	}
	if s.warnings > 0 {
		fmt.Fprintf(s.out, "%s\n", s.out.String(fmt.Sprintf("⚠ %d warning(s)", s.warnings)).Foreground(s.out.Color("3")))
	}
}
