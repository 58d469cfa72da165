package ui

import "github.com/charmbracelet/lipgloss"

// ComposeLayout joins the matrix panel and signal panel horizontally,
// with menu bar on top and status bar on bottom.
func ComposeLayout(menuBar, matrixPanel, signalPanel, statusBar string) string {
	middle := lipgloss.JoinHorizontal(lipgloss.Top, matrixPanel, signalPanel)
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, middle, statusBar)
}
