package models

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// PrintFlags writes flag usage wrapped to 80 columns.
func PrintFlags(w io.Writer, flags []*flag.Flag) {
	wname, wdef := 0, 0
	for _, f := range flags {
		if len(f.Name) > wname {
			wname = len(f.Name)
		}
		if len(f.DefValue) > wdef {
			wdef = len(f.DefValue)
		}
	}
	wdesc := 80 - wname - wdef - 7
	lpad := strings.Repeat(" ", wname+wdef+7)
	for _, f := range flags {
		def := "  "
		if f.DefValue != "" && f.DefValue != "false" {
			def = "(" + f.DefValue + ")"
		}
		fmt.Fprintf(w, "  -%-*s %-*s ", wname, f.Name, wdef+2, def)
		for i, line := range wrap(f.Usage, wdesc) {
			if i > 0 {
				fmt.Fprint(w, lpad)
			}
			fmt.Fprintln(w, line)
		}
	}
}

func wrap(s string, width int) []string {
	if width < 10 {
		width = 10
	}
	var lines []string
	for len(s) > width {
		cut := strings.LastIndexAny(s[:width], " \n")
		if cut <= 0 {
			cut = width
		}
		lines = append(lines, s[:cut])
		s = strings.TrimLeft(s[cut:], " \n")
	}
	return append(lines, s)
}
