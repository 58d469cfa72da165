package display

// Source provides the latest proximity estimate without blocking.
type Source interface {
	Load() uint8
}

// Updater selects the frame for the current estimate. It reloads the
// matrix only when the frame index changes, but refreshes it on every tick.
type Updater struct {
	src  Source
	last int
}

// NewUpdater creates an updater reading src. No frame is shown until the
// first Tick.
func NewUpdater(src Source) *Updater {
	return &Updater{src: src, last: -1}
}

// Tick runs one display refresh. The caller must hold the matrix.
func (u *Updater) Tick(m *Matrix) {
	idx := FrameIndex(u.src.Load())
	if idx != u.last {
		m.Show(&Frames[idx])
		u.last = idx
	}
	m.Tick()
}

// Current returns the index of the shown frame, or -1 before the first
// Tick.
func (u *Updater) Current() int {
	return u.last
}
