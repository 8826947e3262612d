package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Field is one labeled line of a detail block.
type Field struct {
	Label string
	Value string
}

// Fields renders label/value lines with the values aligned after the
// widest label. Empty values are skipped. Widths are measured with
// lipgloss so styled labels still line up.
func Fields(fields []Field, indent string) string {
	width := 0
	for _, f := range fields {
		if f.Value != "" {
			width = max(width, lipgloss.Width(f.Label))
		}
	}

	var sb strings.Builder
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		label := f.Label + ":"
		pad := strings.Repeat(" ", width-lipgloss.Width(f.Label)+1)
		if IsPlainMode() {
			sb.WriteString(indent + label + pad + f.Value + "\n")
			continue
		}
		sb.WriteString(indent + StyleMuted.Render(label) + pad + f.Value + "\n")
	}
	return sb.String()
}
