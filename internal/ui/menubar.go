package ui

import (
	"fmt"
	"strings"

	"ble-proximity.klederson.com/internal/config"
	"github.com/charmbracelet/lipgloss"
)

// RunState is what the menu and status bars report.
type RunState int

const (
	StateScanning RunState = iota
	StateFrozen
	StateHalted
)

func renderState(s RunState, brackets bool) string {
	label, style := "SCANNING", StyleStatusScanning
	switch s {
	case StateFrozen:
		label, style = "FROZEN", StyleStatusPaused
	case StateHalted:
		label, style = "HALTED", StyleStatusHalted
	}
	if brackets {
		label = "[" + label + "]"
	}
	return style.Render(label)
}

// RenderMenuBar renders the top menu bar.
func RenderMenuBar(width int, source string, state RunState) string {
	title := fmt.Sprintf(" %s v%s ", config.AppName, config.AppVersion)

	keys := []struct{ key, label string }{
		{"F", "reeze"},
		{"Q", "uit"},
	}

	menu := ""
	for _, k := range keys {
		menu += "  " + StyleMenuKey.Render("["+k.key+"]") + StyleMenuLabel.Render(k.label)
	}

	sourceInfo := StyleMenuLabel.Render(fmt.Sprintf("Source: %s", source))

	left := StyleMenuKey.Render(title) + menu
	right := renderState(state, false) + "  " + sourceInfo + " "

	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return StyleMenuBar.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}
