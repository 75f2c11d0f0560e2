package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"      _       _          ", "#38bdf8"},
	{"  ___| |_   _(_) ___ ___ ", "#22d3ee"},
	{" / __| | | | | |/ __/ _ \\", "#2dd4bf"},
	{" \\__ \\ | |_| | | (_|  __/", "#34d399"},
	{" |___/_|\\__,_|_|\\___\\___|", "#4ade80"},
}

// PrintBanner writes the sluice banner to w, coloured to the terminal's profile.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
