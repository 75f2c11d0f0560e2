package compiler

import (
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// bowerLog rewrites bower's "bower <endpoint> <id> <message>" lines as
// "<label> <id> <message>" with the id in cyan. Other lines keep the label.
type bowerLog struct {
	out   io.Writer
	label string
	term  *termenv.Output
}

func (b *bowerLog) Write(p []byte) (int, error) {
	for _, line := range strings.SplitAfter(string(p), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := io.WriteString(b.out, b.format(line)); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (b *bowerLog) format(line string) string {
	fields := strings.Fields(line)
	if len(fields) > 0 && fields[0] == "bower" {
		fields = fields[1:]
	}
	if len(fields) < 3 {
		return b.label + " " + strings.Join(fields, " ") + "\n"
	}
	id := b.term.String(fields[1]).Foreground(termenv.ANSICyan).String()
	return b.label + " " + id + " " + strings.Join(fields[2:], " ") + "\n"
}
