package signal

import (
	"iter"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"ble-proximity.klederson.com/internal/ble"
	"ble-proximity.klederson.com/internal/config"
)

// Sample is one RSSI reading after calibration. Smaller magnitudes mean a
// stronger signal.
type Sample struct {
	Timestamp ble.Instant
	Magnitude uint8
}

// noSample is the magnitude an empty burst reports.
const noSample = math.MaxUint8

// Stats counts collector activity. Counters are safe to read from any
// goroutine.
type Stats struct {
	Samples uint64 // beacons with RSSI
	Skipped uint64 // beacons without RSSI
	Bursts  uint64
}

// Collector implements ble.ScanCallback. It keeps a time-ordered sample log,
// reduces each burst to its minimum magnitude, and publishes the moving
// average of recent minima.
//
// All methods except Stats must be called from the radio receive context
// only.
type Collector struct {
	log      *Ring[Sample]
	minima   *Ring[uint8]
	estimate *Estimate
	logger   *zap.Logger

	samples atomic.Uint64
	skipped atomic.Uint64
	bursts  atomic.Uint64
}

// NewCollector creates a collector publishing into est.
func NewCollector(est *Estimate, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		log: NewRing[Sample](config.SampleLogCapacity),
		// One spare slot holds the new minimum until the window is trimmed.
		minima:   NewRing[uint8](config.MinimaWindowCapacity + 1),
		estimate: est,
		logger:   logger,
	}
}

// Magnitude maps an RSSI reading to |rssi| minus the calibration bias,
// clamped at zero.
func Magnitude(rssi int8) uint8 {
	abs := int(rssi)
	if abs < 0 {
		abs = -abs
	}
	if abs <= config.CalibrationBias {
		return 0
	}
	return uint8(abs - config.CalibrationBias)
}

// Beacon records the advertisement's RSSI. Advertisements without an RSSI
// measurement are skipped.
func (c *Collector) Beacon(addr ble.DeviceAddress, data iter.Seq[ble.ADStructure], meta ble.Metadata) {
	if ce := c.logger.Check(zap.DebugLevel, "beacon"); ce != nil {
		ce.Write(
			zap.Stringer("addr", addr),
			zap.Uint32("ts", uint32(meta.Timestamp)),
			zap.Uint8("ch", meta.Channel),
			zap.Int8("rssi", meta.RSSI),
			zap.Bool("has_rssi", meta.HasRSSI),
			zap.String("vendor", ble.Vendor(data)),
		)
	}

	if !meta.HasRSSI {
		c.skipped.Add(1)
		return
	}
	c.Add(Sample{Timestamp: meta.Timestamp, Magnitude: Magnitude(meta.RSSI)})
}

// Add appends a sample to the log and closes a burst when the log is full
// or its oldest entry is more than MaxBurstDelay ticks old. It returns the
// published estimate when a burst closed.
func (c *Collector) Add(s Sample) (estimate uint8, closed bool) {
	c.samples.Add(1)
	c.log.Push(s)

	oldest, _ := c.log.Front()
	elapsed := s.Timestamp.Sub(oldest.Timestamp)
	if !c.log.IsFull() && elapsed <= config.MaxBurstDelay {
		return 0, false
	}
	return c.closeBurst(), true
}

// closeBurst reduces the log to one minimum and publishes the new average.
//
// The valid run is counted from the newest end, where the log is time
// ordered, and the same number of entries is then dropped from the oldest
// end. Stale entries left behind age out on a later burst.
func (c *Collector) closeBurst() uint8 {
	newest, _ := c.log.Back()

	minimum := uint8(noSample)
	valid := 0
	for e := range c.log.Backward() {
		if newest.Timestamp.Sub(e.Timestamp) >= config.MaxBurstDelay {
			break
		}
		minimum = min(minimum, e.Magnitude)
		valid++
	}
	for range valid {
		c.log.PopFront()
	}

	// Trim before averaging: the mean is always over at most four minima,
	// so [10 20 30 40] followed by 50 yields 35, not 30.
	c.minima.Push(minimum)
	for c.minima.Len() > config.MinimaWindowCapacity {
		c.minima.PopFront()
	}

	sum := 0
	for m := range c.minima.All() {
		sum += int(m)
	}
	avg := uint8(sum / c.minima.Len())

	c.estimate.Store(avg)
	c.bursts.Add(1)

	c.logger.Info("burst average",
		zap.Uint8("min", minimum),
		zap.Uint8("avg", avg),
		zap.Int("valid", valid),
		zap.Int("backlog", c.log.Len()),
	)
	return avg
}

// Minima returns the minima window, oldest first.
func (c *Collector) Minima() []uint8 {
	out := make([]uint8, 0, c.minima.Len())
	for m := range c.minima.All() {
		out = append(out, m)
	}
	return out
}

// Stats returns a snapshot of the activity counters.
func (c *Collector) Stats() Stats {
	return Stats{
		Samples: c.samples.Load(),
		Skipped: c.skipped.Load(),
		Bursts:  c.bursts.Load(),
	}
}
