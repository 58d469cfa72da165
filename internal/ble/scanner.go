package ble

import "iter"

// Advertising channels visited in order by the scanner.
var advertisingChannels = [3]uint8{37, 38, 39}

// RadioCmd is the receive configuration the radio should apply.
type RadioCmd struct {
	Listen  bool
	Channel uint8
}

// UpdateKind says what to do with the timer after a command.
type UpdateKind uint8

const (
	UpdateKeep UpdateKind = iota
	UpdateDisable
	UpdateAt
)

// NextUpdate is the scanner's next wake time.
type NextUpdate struct {
	Kind UpdateKind
	At   Instant
}

// Cmd pairs a radio configuration with the timer deadline that goes with it.
// Both halves must be applied together.
type Cmd struct {
	NextUpdate NextUpdate
	Radio      RadioCmd
}

// ScanCallback receives every accepted beacon. It runs synchronously inside
// the radio receive path and must not block.
type ScanCallback interface {
	Beacon(addr DeviceAddress, data iter.Seq[ADStructure], meta Metadata)
}

// Filter decides which advertisers reach the callback.
type Filter interface {
	Allow(addr DeviceAddress) bool
}

// AllowAll accepts every advertiser.
type AllowAll struct{}

func (AllowAll) Allow(DeviceAddress) bool { return true }

// BeaconScanner hops between the advertising channels and forwards beacons
// to its callback.
type BeaconScanner struct {
	callback ScanCallback
	filter   Filter
	interval Duration
	hop      int
	nextHop  Instant
	running  bool
}

// NewBeaconScanner creates a scanner that accepts all advertisers.
func NewBeaconScanner(cb ScanCallback) *BeaconScanner {
	return NewBeaconScannerWithFilter(cb, AllowAll{})
}

// NewBeaconScannerWithFilter creates a scanner with a custom filter.
func NewBeaconScannerWithFilter(cb ScanCallback, filter Filter) *BeaconScanner {
	return &BeaconScanner{
		callback: cb,
		filter:   filter,
	}
}

// Configure starts scanning on the first advertising channel and schedules
// the first hop one interval from now.
func (s *BeaconScanner) Configure(now Instant, interval Duration) Cmd {
	s.interval = interval
	s.hop = 0
	s.running = true
	s.nextHop = now.Add(interval)
	return s.cmd()
}

// TimerUpdate moves to the next advertising channel.
func (s *BeaconScanner) TimerUpdate(now Instant) Cmd {
	if !s.running {
		return Cmd{NextUpdate: NextUpdate{Kind: UpdateDisable}}
	}
	s.hop = (s.hop + 1) % len(advertisingChannels)
	s.nextHop = now.Add(s.interval)
	return s.cmd()
}

// ProcessAdvPacket hands a received packet to the callback when it is an
// intact beacon from an allowed advertiser. The schedule is left unchanged.
func (s *BeaconScanner) ProcessAdvPacket(now Instant, channel uint8, pkt *Packet) Cmd {
	if s.running && pkt.CRCOK && (!pkt.TypeKnown || pkt.Type.IsBeacon()) && s.filter.Allow(pkt.Address) {
		meta := Metadata{
			Timestamp:  now,
			Channel:    channel,
			RSSI:       pkt.RSSI,
			HasRSSI:    pkt.HasRSSI,
			PDUType:    pkt.Type,
			HasPDUType: pkt.TypeKnown,
		}
		s.callback.Beacon(pkt.Address, pkt.ADStructures(), meta)
	}

	cmd := s.cmd()
	cmd.NextUpdate = NextUpdate{Kind: UpdateKeep}
	return cmd
}

// Channel returns the channel currently scanned.
func (s *BeaconScanner) Channel() uint8 {
	return advertisingChannels[s.hop]
}

// NextHop returns when the scanner next expects a timer update.
func (s *BeaconScanner) NextHop() (Instant, bool) {
	return s.nextHop, s.running
}

func (s *BeaconScanner) cmd() Cmd {
	if !s.running {
		return Cmd{NextUpdate: NextUpdate{Kind: UpdateDisable}}
	}
	return Cmd{
		NextUpdate: NextUpdate{Kind: UpdateAt, At: s.nextHop},
		Radio:      RadioCmd{Listen: true, Channel: advertisingChannels[s.hop]},
	}
}
