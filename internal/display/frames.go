// Package display drives the 5x5 LED matrix: a static table of gradient
// frames, a row-multiplexed matrix driver, and the updater that selects a
// frame from the published proximity estimate.
package display

import "ble-proximity.klederson.com/internal/config"

// MaxBrightness is the brightest LED level.
const MaxBrightness = 9

// Frame is one 5x5 brightness image, row-major.
type Frame [config.MatrixSize][config.MatrixSize]uint8

// Frames is the gradient table. Frame 0 is the closest beacon (the whole
// matrix lit at full brightness); frame 26 is a single dim centre LED.
var Frames = buildFrames()

// buildFrames lights concentric rings around the centre. Each ring fades
// in nine steps after the ring inside it reaches full brightness.
func buildFrames() [config.FrameCount]Frame {
	var frames [config.FrameCount]Frame
	center := config.MatrixSize / 2
	for i := range frames {
		level := config.FrameIndexClamp - i
		ring := [3]uint8{
			clampLevel(level + 1),
			clampLevel(level - 8),
			clampLevel(level - 17),
		}
		for r := range config.MatrixSize {
			for c := range config.MatrixSize {
				frames[i][r][c] = ring[max(abs(r-center), abs(c-center))]
			}
		}
	}
	return frames
}

func clampLevel(v int) uint8 {
	return uint8(min(max(v, 0), MaxBrightness))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// FrameIndex maps a proximity estimate to a table index.
func FrameIndex(estimate uint8) int {
	return min(int(estimate), config.FrameIndexClamp)
}

// Lit returns the number of LEDs with non-zero brightness.
func (f *Frame) Lit() int {
	n := 0
	for _, row := range f {
		for _, v := range row {
			if v > 0 {
				n++
			}
		}
	}
	return n
}
