package main

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// newRenderer returns a markdown renderer for terminal output. When
// disabled, or when glamour cannot be initialised, text is returned as is.
func newRenderer(enabled bool) func(string) string {
	plain := func(s string) string { return s }
	if !enabled {
		return plain
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return plain
	}
	return func(markdown string) string {
		out, err := r.Render(markdown)
		if err != nil {
			return markdown
		}
		return strings.TrimRight(out, "\n")
	}
}
