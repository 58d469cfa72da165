package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Status is the firmware state shown by the signal panel and status bar.
type Status struct {
	Estimate  uint8
	RSSI      float64 // dBm implied by the estimate
	Distance  float64 // meters
	Frame     int
	Channel   uint8
	Listening bool
	NextHopMs float64 // time until the next channel hop
	Minima    []uint8

	Samples    uint64
	Skipped    uint64
	Bursts     uint64
	Received   uint64
	Dropped    uint64
	Spurious   uint64
	LogDropped uint64
}

// RenderSignalPanel renders the estimate details and its recent history.
func RenderSignalPanel(st Status, history []float64, width, height int) string {
	innerW := max(width-4, 20)

	title := StylePanelTitle.Render("PROXIMITY")
	sep := StyleSeparator.Render(strings.Repeat("-", innerW))
	lines := []string{title, sep, ""}

	channel := fmt.Sprintf("%d", st.Channel)
	if !st.Listening {
		channel += " (off)"
	}
	minima := "--"
	if len(st.Minima) > 0 {
		minima = fmt.Sprint(st.Minima)
	}

	fields := []struct{ label, value string }{
		{"Estimate", fmt.Sprintf("%d", st.Estimate)},
		{"RSSI", fmt.Sprintf("%d dBm", int(st.RSSI))},
		{"Distance", fmt.Sprintf("~%.1fm", st.Distance)},
		{"Minima", minima},
		{"Channel", channel},
		{"Next hop", fmt.Sprintf("%.0f ms", st.NextHopMs)},
		{"Spurious", fmt.Sprintf("%d", st.Spurious)},
	}
	for _, f := range fields {
		lines = append(lines, StyleLabel.Render(fmt.Sprintf("  %-10s", f.label))+StyleValue.Render(f.value))
	}
	lines = append(lines, "")

	barWidth := max(innerW-22, 10)
	lines = append(lines, StyleLabel.Render("  Signal ")+renderSignalBar(st.RSSI, barWidth))
	lines = append(lines, "")

	if len(history) > 0 {
		lines = append(lines, StyleLabel.Render("  Estimate history:"))
		spark := renderSparkline(history, max(innerW-4, 10))
		lines = append(lines, "  "+lipgloss.NewStyle().Foreground(ColorGreen).Render(spark))
	}

	for len(lines) < height-2 {
		lines = append(lines, "")
	}
	return StylePanelActive.Width(width - 2).Height(height - 2).Render(strings.Join(lines, "\n"))
}

func renderSignalBar(rssi float64, width int) string {
	// Map RSSI -100..-30 to 0..width filled bars
	ratio := min(max((rssi+100.0)/70.0, 0), 1)
	filled := int(math.Round(ratio * float64(width)))

	bar := strings.Repeat("|", filled) + strings.Repeat("-", width-filled)
	filledPart := lipgloss.NewStyle().Foreground(proximityColor(rssi)).Render(bar[:filled])
	emptyPart := lipgloss.NewStyle().Foreground(ColorDimGreen).Render(bar[filled:])
	return StyleHelp.Render("[") + filledPart + emptyPart + StyleHelp.Render("]")
}

func renderSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}

	chars := []byte{'_', '.', '-', '~', '^'}

	minV, maxV := values[0], values[0]
	for _, v := range values {
		minV = min(minV, v)
		maxV = max(maxV, v)
	}
	rng := max(maxV-minV, 1)

	start := max(len(values)-width, 0)

	var sb strings.Builder
	for _, v := range values[start:] {
		idx := int((v - minV) / rng * float64(len(chars)-1))
		idx = min(max(idx, 0), len(chars)-1)
		sb.WriteByte(chars[idx])
	}
	return sb.String()
}
