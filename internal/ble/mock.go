package ble

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

var mockBeaconTemplates = []struct {
	Name      string
	CompanyID uint16
}{
	{"Tile Tracker", 0x02FF},
	{"AirTag", 0x004C},
	{"Ruuvi Tag", 0x0499},
	{"nRF Beacon", 0x0059},
	{"Govee H5075", 0x0822},
	{"ESP32 Beacon", 0x015D},
	{"Galaxy SmartTag", 0x0075},
	{"Pixel Watch", 0x00E0},
}

type mockBeacon struct {
	addr      DeviceAddress
	name      string
	companyID uint16
	baseRSSI  float64
	amplitude float64
	period    float64 // seconds per approach/retreat cycle
	phase     float64
	active    bool
}

// MockSource generates beacon traffic for demo mode. One beacon slowly
// walks towards and away from the receiver while the rest drift around at
// a distance, so the display sweeps the whole gradient.
type MockSource struct {
	beacons []mockBeacon
	rate    time.Duration
	running atomic.Bool
	cancel  context.CancelFunc
}

// NewMockSource creates a demo source with a handful of random beacons.
func NewMockSource() *MockSource {
	perm := rand.Perm(len(mockBeaconTemplates))
	count := 3 + rand.Intn(3)

	beacons := make([]mockBeacon, count)
	for i := range beacons {
		tmpl := mockBeaconTemplates[perm[i]]
		b := mockBeacon{
			addr:      randomAddress(),
			name:      tmpl.Name,
			companyID: tmpl.CompanyID,
			baseRSSI:  -78 - rand.Float64()*12, // -78 to -90 dBm
			amplitude: 2 + rand.Float64()*4,
			period:    8 + rand.Float64()*8,
			phase:     rand.Float64() * 2 * math.Pi,
			active:    true,
		}
		if i == 0 {
			// The walker: swings between about -42 and -88 dBm.
			b.baseRSSI = -65
			b.amplitude = 23
			b.period = 20
		}
		beacons[i] = b
	}

	return &MockSource{
		beacons: beacons,
		rate:    40 * time.Millisecond,
	}
}

// Start begins emitting packets into radio.
func (s *MockSource) Start(ctx context.Context, radio *Radio) error {
	s.running.Store(true)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.loop(ctx, radio)
	return nil
}

func (s *MockSource) loop(ctx context.Context, radio *Radio) {
	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()

	start := time.Now()
	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.running.Load() {
				return
			}
			// One beacon per tick keeps the single receive buffer from
			// overflowing on every round.
			pkt, ok := s.emit(next, time.Since(start).Seconds())
			next = (next + 1) % len(s.beacons)
			if ok {
				radio.Deliver(pkt)
			}
		}
	}
}

// emit builds the packet beacon i sends at time t (seconds).
func (s *MockSource) emit(i int, t float64) (Packet, bool) {
	b := &s.beacons[i]

	// Randomly toggle beacon visibility, except for the walker.
	if i > 0 && rand.Float64() < 0.01 {
		b.active = !b.active
	}
	if !b.active {
		return Packet{}, false
	}

	rssi := b.baseRSSI + b.amplitude*math.Sin(2*math.Pi*t/b.period+b.phase) + (rand.Float64()-0.5)*6

	pkt := Packet{
		Type:      PDUAdvNonconnInd,
		TypeKnown: true,
		Address:   b.addr,
		RSSI:      int8(math.Max(-127, math.Min(-1, rssi))),
		HasRSSI:   true,
		CRCOK:     true,
	}

	switch r := rand.Float64(); {
	case r < 0.02:
		pkt.HasRSSI = false // receiver did not sample RSSI
	case r < 0.03:
		pkt.CRCOK = false
	case r < 0.05:
		pkt.Type = PDUScanReq
	}

	mfr := make([]byte, 4)
	binary.LittleEndian.PutUint16(mfr, b.companyID)
	binary.LittleEndian.PutUint16(mfr[2:], uint16(i))
	pkt.AppendAD(ADFlags, []byte{0x06})
	pkt.AppendAD(ADManufacturerData, mfr)
	pkt.AppendAD(ADCompleteName, []byte(b.name))
	return pkt, true
}

// Stop halts the mock source.
func (s *MockSource) Stop() {
	s.running.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
}

func randomAddress() DeviceAddress {
	var a DeviceAddress
	for i := range a {
		a[i] = byte(rand.Intn(256))
	}
	// Static random address: two most significant bits set.
	a[0] |= 0xC0
	return a
}
