package main

import "strings"

// wrapDisassembly hard-wraps any listing line wider than width, so a
// chunk with a large constant (a long string literal, say) stays
// readable in a narrow terminal instead of scrolling off the right edge.
func wrapDisassembly(listing string, width int) string {
	if width <= 0 {
		return listing
	}
	lines := strings.Split(listing, "\n")
	var out strings.Builder
	for i, line := range lines {
		for len(line) > width {
			out.WriteString(line[:width])
			out.WriteString("\n")
			line = line[width:]
		}
		out.WriteString(line)
		if i < len(lines)-1 {
			out.WriteString("\n")
		}
	}
	return out.String()
}
