package ble

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer models the BLE timer peripheral: a free-running counter plus one
// compare channel that raises an interrupt when the deadline passes.
type Timer struct {
	clock Clock
	raise func()

	// mu guards the alarm state against the host timer goroutine.
	mu       sync.Mutex
	alarm    *time.Timer
	gen      uint64
	deadline Instant
	armed    bool

	pending atomic.Bool
}

// NewTimer creates a timer reading clock. raise pends the timer interrupt.
func NewTimer(clock Clock, raise func()) *Timer {
	return &Timer{
		clock: clock,
		raise: raise,
	}
}

// Now returns the current counter value.
func (t *Timer) Now() Instant {
	return t.clock.Now()
}

// ConfigureInterrupt programs the compare channel.
func (t *Timer) ConfigureInterrupt(next NextUpdate) {
	switch next.Kind {
	case UpdateKeep:
	case UpdateDisable:
		t.Stop()
	case UpdateAt:
		t.arm(next.At)
	}
}

func (t *Timer) arm(at Instant) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.alarm != nil {
		t.alarm.Stop()
	}
	t.gen++
	gen := t.gen
	t.deadline = at
	t.armed = true

	delay := at.Sub(t.clock.Now())
	if delay > maxAlarmDelay {
		delay = 0
	}
	t.alarm = time.AfterFunc(delay.Std(), func() { t.expire(gen) })
}

// expire fires the compare event for alarm generation gen. Alarms replaced
// since they were scheduled are ignored.
func (t *Timer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.armed {
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.mu.Unlock()

	t.pending.Store(true)
	if t.raise != nil {
		t.raise()
	}
}

// Expire fires the armed compare event immediately. It is a no-op when no
// deadline is armed.
func (t *Timer) Expire() {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()
	t.expire(gen)
}

// Stop disarms the compare channel.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.alarm != nil {
		t.alarm.Stop()
	}
	t.gen++
	t.armed = false
}

// Deadline returns the armed deadline.
func (t *Timer) Deadline() (Instant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline, t.armed
}

// IsInterruptPending reports whether the compare event has fired and not
// been cleared.
func (t *Timer) IsInterruptPending() bool {
	return t.pending.Load()
}

// ClearInterrupt acknowledges the compare event.
func (t *Timer) ClearInterrupt() {
	t.pending.Store(false)
}
