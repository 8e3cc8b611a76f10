package strength

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var labelColors = map[Label]lipgloss.Color{
	VeryWeak:   lipgloss.Color("9"),   // Red
	Weak:       lipgloss.Color("208"), // Orange
	Moderate:   lipgloss.Color("220"), // Yellow
	Strong:     lipgloss.Color("42"),  // Emerald
	VeryStrong: lipgloss.Color("34"),  // Green
}

// Meter renders a progress bar of the given width followed by the feedback text
func Meter(r Result, width int) string {
	if width <= 0 {
		width = 20
	}

	filled := r.Value * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	style := lipgloss.NewStyle().Foreground(labelColors[r.Label])
	return fmt.Sprintf("%s %3d  %s", style.Render(bar), r.Value, r.Label.Feedback())
}
