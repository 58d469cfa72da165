// Package signal turns per-advertisement RSSI readings into a single
// smoothed proximity byte. The Collector runs inside the radio receive path;
// the result crosses to the display through an Estimate cell without locks.
package signal

import (
	"math"
	"sync/atomic"

	"ble-proximity.klederson.com/internal/config"
)

// Estimate is a single-slot, overwrite-only cell holding the latest moving
// average. Readers may miss intermediate values. The zero value reads 0.
type Estimate struct {
	v atomic.Uint32
}

// Store publishes a new estimate.
func (e *Estimate) Store(v uint8) {
	e.v.Store(uint32(v))
}

// Load returns the latest estimate.
func (e *Estimate) Load() uint8 {
	return uint8(e.v.Load())
}

// EstimateToRSSI inverts the magnitude mapping: an estimate of m means the
// closest beacon was heard at about -(m + bias) dBm.
func EstimateToRSSI(estimate uint8) float64 {
	return -float64(int(estimate) + config.CalibrationBias)
}

// RSSIToDistance estimates distance from RSSI using the log-distance path loss model.
// Formula: d = 10^((measuredPower - rssi) / (10 * n))
func RSSIToDistance(rssi, measuredPower, pathLossExp float64) float64 {
	if rssi >= 0 {
		return 0.1
	}
	d := math.Pow(10, (measuredPower-rssi)/(10*pathLossExp))
	if d < 0.1 {
		return 0.1
	}
	return d
}

// EstimateDistance converts an estimate to meters with the default model.
func EstimateDistance(estimate uint8) float64 {
	return RSSIToDistance(EstimateToRSSI(estimate), config.MeasuredPower, config.PathLossExp)
}
