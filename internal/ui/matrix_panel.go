package ui

import (
	"fmt"
	"strings"

	"ble-proximity.klederson.com/internal/display"
	"github.com/charmbracelet/lipgloss"
)

const ledGlyph = "●"

// RenderMatrix draws the LED image, one glyph per LED with a space between
// columns so the matrix looks square in a terminal.
func RenderMatrix(img display.Frame) string {
	rows := make([]string, 0, len(img))
	for _, row := range img {
		cells := make([]string, 0, len(row))
		for _, v := range row {
			level := min(int(v), display.MaxBrightness)
			cells = append(cells, lipgloss.NewStyle().Foreground(ledRamp[level]).Render(ledGlyph))
		}
		rows = append(rows, strings.Join(cells, " "))
	}
	return strings.Join(rows, "\n")
}

// RenderMatrixPanel centres the LED matrix in a bordered panel.
func RenderMatrixPanel(width, height int, img display.Frame, frame int) string {
	innerW := max(width-2, 10)
	innerH := max(height-2, 7)

	title := StylePanelTitle.Render("LED MATRIX")
	matrix := RenderMatrix(img)
	label := StyleHelp.Render(frameLabel(frame))

	body := lipgloss.Place(innerW, innerH-1, lipgloss.Center, lipgloss.Center, matrix+"\n\n"+label)
	return StylePanelBorder.Width(innerW).Height(innerH).Render(title + "\n" + body)
}

func frameLabel(frame int) string {
	if frame < 0 {
		return "frame --"
	}
	return fmt.Sprintf("frame %d/%d", frame, len(display.Frames)-1)
}
