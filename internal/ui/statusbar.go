package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, state RunState, st Status) string {
	info := fmt.Sprintf(" Samples: %d  Skipped: %d  Bursts: %d  RX: %d  Lost: %d  Log drops: %dB",
		st.Samples, st.Skipped, st.Bursts, st.Received, st.Dropped, st.LogDropped)

	content := renderState(state, true) + StyleStatusBar.Foreground(ColorGreen).Render(info)

	gap := max(width-lipgloss.Width(content), 0)
	return StyleStatusBar.Width(width).Render(content + strings.Repeat(" ", gap))
}
