package display

import "ble-proximity.klederson.com/internal/config"

// Matrix is the LED matrix driver. The loaded frame is scanned out one row
// per Tick; the image a viewer sees is the last value driven on each row.
type Matrix struct {
	frame Frame
	image Frame
	row   int
	ticks uint64
	loads uint64
}

// NewMatrix creates a blank matrix.
func NewMatrix() *Matrix {
	return &Matrix{}
}

// Show loads a frame. It becomes visible row by row over the next
// MatrixSize ticks.
func (m *Matrix) Show(f *Frame) {
	m.frame = *f
	m.loads++
}

// Tick drives the next row.
func (m *Matrix) Tick() {
	m.image[m.row] = m.frame[m.row]
	m.row = (m.row + 1) % config.MatrixSize
	m.ticks++
}

// Snapshot returns the visible image.
func (m *Matrix) Snapshot() Frame {
	return m.image
}

// Loaded returns the frame most recently passed to Show.
func (m *Matrix) Loaded() Frame {
	return m.frame
}

// Row returns the row the next Tick will drive.
func (m *Matrix) Row() int {
	return m.row
}

// Ticks returns the number of multiplexing steps taken.
func (m *Matrix) Ticks() uint64 {
	return m.ticks
}

// Loads returns the number of frames loaded.
func (m *Matrix) Loads() uint64 {
	return m.loads
}
