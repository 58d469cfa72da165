package display

import (
	"testing"

	"ble-proximity.klederson.com/internal/config"
)

type fixedEstimate uint8

func (f *fixedEstimate) Load() uint8 { return uint8(*f) }

func TestFrameIndex(t *testing.T) {
	tests := []struct {
		estimate uint8
		want     int
	}{
		{0, 0},
		{1, 1},
		{25, 25},
		{26, 26},
		{27, 26},
		{100, 26},
		{255, 26},
	}
	for _, tt := range tests {
		if got := FrameIndex(tt.estimate); got != tt.want {
			t.Errorf("FrameIndex(%d) = %d, want %d", tt.estimate, got, tt.want)
		}
	}
}

func TestFramesGradient(t *testing.T) {
	if len(Frames) != config.FrameCount {
		t.Fatalf("len(Frames) = %d, want %d", len(Frames), config.FrameCount)
	}

	for r := range config.MatrixSize {
		for c := range config.MatrixSize {
			if Frames[0][r][c] != MaxBrightness {
				t.Fatalf("frame 0 LED (%d,%d) = %d, want %d", r, c, Frames[0][r][c], MaxBrightness)
			}
		}
	}
	if lit := Frames[26].Lit(); lit != 1 || Frames[26][2][2] != 1 {
		t.Errorf("frame 26: lit = %d, centre = %d; want one dim centre LED", lit, Frames[26][2][2])
	}

	// Total brightness never increases from one frame to the next.
	prev := -1
	for i, f := range Frames {
		sum := 0
		for _, row := range f {
			for _, v := range row {
				if v > MaxBrightness {
					t.Fatalf("frame %d has brightness %d", i, v)
				}
				sum += int(v)
			}
		}
		if prev >= 0 && sum >= prev {
			t.Errorf("frame %d total %d not dimmer than frame %d total %d", i, sum, i-1, prev)
		}
		prev = sum
	}
}

func TestMatrixRowScan(t *testing.T) {
	m := NewMatrix()
	m.Show(&Frames[0])
	if m.Snapshot() != (Frame{}) {
		t.Fatal("Show() must not change the image before a tick")
	}

	for i := range config.MatrixSize {
		if m.Row() != i {
			t.Fatalf("Row() = %d, want %d", m.Row(), i)
		}
		m.Tick()
		img := m.Snapshot()
		if img[i] != Frames[0][i] {
			t.Errorf("row %d not driven after tick %d", i, i+1)
		}
		if i+1 < config.MatrixSize && img[i+1] != ([config.MatrixSize]uint8{}) {
			t.Errorf("row %d driven early", i+1)
		}
	}
	if m.Snapshot() != Frames[0] || m.Row() != 0 {
		t.Errorf("full scan: image mismatch or row %d", m.Row())
	}
	if m.Ticks() != config.MatrixSize || m.Loads() != 1 {
		t.Errorf("Ticks = %d, Loads = %d", m.Ticks(), m.Loads())
	}
}

func TestUpdaterLoadsOnlyOnChange(t *testing.T) {
	est := fixedEstimate(0)
	u := NewUpdater(&est)
	m := NewMatrix()
	if u.Current() != -1 {
		t.Fatalf("Current() before first tick = %d, want -1", u.Current())
	}

	u.Tick(m)
	if u.Current() != 0 || m.Loads() != 1 {
		t.Fatalf("first tick: Current = %d, Loads = %d", u.Current(), m.Loads())
	}

	for range 10 {
		u.Tick(m)
	}
	if m.Loads() != 1 {
		t.Errorf("Loads = %d after unchanged ticks, want 1", m.Loads())
	}
	if m.Ticks() != 11 {
		t.Errorf("Ticks = %d, want 11 (every tick multiplexes)", m.Ticks())
	}

	est = 200
	u.Tick(m)
	if u.Current() != 26 || m.Loads() != 2 || m.Loaded() != Frames[26] {
		t.Errorf("after estimate 200: Current = %d, Loads = %d", u.Current(), m.Loads())
	}

	est = 30
	u.Tick(m)
	if m.Loads() != 2 {
		t.Error("estimate 30 clamps to the same frame and must not reload")
	}
}
