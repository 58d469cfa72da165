package ui

import (
	"strings"
	"testing"

	"ble-proximity.klederson.com/internal/config"
	"ble-proximity.klederson.com/internal/display"
	"github.com/charmbracelet/lipgloss"
)

func TestRenderMatrix(t *testing.T) {
	out := RenderMatrix(display.Frames[0])
	lines := strings.Split(out, "\n")
	if len(lines) != config.MatrixSize {
		t.Fatalf("got %d lines, want %d", len(lines), config.MatrixSize)
	}
	for i, l := range lines {
		if n := strings.Count(l, ledGlyph); n != config.MatrixSize {
			t.Errorf("line %d has %d LEDs, want %d", i, n, config.MatrixSize)
		}
		if w := lipgloss.Width(l); w != 2*config.MatrixSize-1 {
			t.Errorf("line %d width = %d", i, w)
		}
	}
}

func TestSparkline(t *testing.T) {
	if renderSparkline(nil, 10) != "" {
		t.Error("empty history should render nothing")
	}
	got := renderSparkline([]float64{0, 1, 2, 3, 4, 5, 6}, 4)
	if got != "--~^" {
		t.Errorf("sparkline = %q, want %q", got, "--~^")
	}
	if flat := renderSparkline([]float64{3, 3, 3}, 10); flat != "___" {
		t.Errorf("flat sparkline = %q", flat)
	}
}

func TestSignalBarWidth(t *testing.T) {
	for _, rssi := range []float64{-120, -100, -65, -30, 0} {
		bar := renderSignalBar(rssi, 20)
		if w := lipgloss.Width(bar); w != 22 {
			t.Errorf("renderSignalBar(%v) width = %d, want 22", rssi, w)
		}
	}
	if !strings.Contains(renderSignalBar(-30, 10), strings.Repeat("|", 10)) {
		t.Error("-30 dBm should fill the bar")
	}
}

func TestMenuAndStatusBars(t *testing.T) {
	menu := RenderMenuBar(100, "demo", StateHalted)
	if !strings.Contains(menu, config.AppName) || !strings.Contains(menu, "HALTED") {
		t.Errorf("menu bar = %q", menu)
	}
	status := RenderStatusBar(120, StateScanning, Status{Samples: 12, Bursts: 3})
	if !strings.Contains(status, "Samples: 12") || !strings.Contains(status, "Bursts: 3") {
		t.Errorf("status bar = %q", status)
	}
}

func TestSignalPanel(t *testing.T) {
	st := Status{Estimate: 17, RSSI: -59, Distance: 1, Frame: 17, Channel: 38, Listening: true, Minima: []uint8{17}}
	out := RenderSignalPanel(st, []float64{20, 18, 17}, 50, 24)
	for _, want := range []string{"PROXIMITY", "-59 dBm", "~1.0m", "[17]", "38"} {
		if !strings.Contains(out, want) {
			t.Errorf("panel missing %q", want)
		}
	}
}
