// Package ble is the host stand-in for the BLE link layer: a tick-based
// timer, a single-buffer radio, and the beacon scanner state machine that
// keeps them in step. Advertisements reach the radio from a Source, either
// a real adapter (tinygo.org/x/bluetooth) or the demo generator.
package ble

import (
	"math"
	"time"

	"ble-proximity.klederson.com/internal/config"
)

// Instant is a reading of the 1 MHz BLE timer. It wraps at 2^32 ticks, so
// instants must only be compared through Sub.
type Instant uint32

// Duration is a span of timer ticks.
type Duration uint32

// maxAlarmDelay is half the counter range. Deltas above it are treated as
// deadlines already in the past.
const maxAlarmDelay = Duration(math.MaxUint32 / 2)

// DurationFrom converts a wall-clock duration to ticks.
func DurationFrom(d time.Duration) Duration {
	return Duration(d * config.TicksPerSecond / time.Second)
}

// Std converts ticks back to a wall-clock duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d) * time.Second / config.TicksPerSecond
}

// Add returns i advanced by d, wrapping at the counter width.
func (i Instant) Add(d Duration) Instant {
	return i + Instant(d)
}

// Sub returns the ticks elapsed from earlier to i. Unsigned subtraction
// keeps the result correct across a counter wrap.
func (i Instant) Sub(earlier Instant) Duration {
	return Duration(i - earlier)
}

// Clock is a free-running tick counter.
type Clock interface {
	Now() Instant
}

// MonotonicClock derives ticks from the host monotonic clock. The offset
// sets the initial counter value.
type MonotonicClock struct {
	start  time.Time
	offset Instant
}

// NewMonotonicClock starts a clock at the given tick count.
func NewMonotonicClock(offset uint32) *MonotonicClock {
	return &MonotonicClock{
		start:  time.Now(),
		offset: Instant(offset),
	}
}

// Now returns the current tick count.
func (c *MonotonicClock) Now() Instant {
	elapsed := time.Since(c.start) / time.Microsecond
	return c.offset + Instant(uint32(elapsed))
}
