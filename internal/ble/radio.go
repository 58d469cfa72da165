package ble

import "sync/atomic"

// RadioStats counts packets at the air interface.
type RadioStats struct {
	Received uint64 // handed to the scanner
	Dropped  uint64 // arrived while the receive buffer was still full
	Ignored  uint64 // arrived while the receiver was off
}

// Radio models the receive side of the radio peripheral. The buffer is a
// single slot filled by a Source; everything else is touched only by the
// owner of the shared scan resources.
type Radio struct {
	rx    chan Packet
	raise func()
	cmd   RadioCmd

	received atomic.Uint64
	dropped  atomic.Uint64
	ignored  atomic.Uint64
}

// NewRadio creates a radio. raise is called after each delivered packet to
// pend the receive interrupt.
func NewRadio(raise func()) *Radio {
	return &Radio{
		rx:    make(chan Packet, 1),
		raise: raise,
	}
}

// ConfigureReceiver applies a receive configuration.
func (r *Radio) ConfigureReceiver(cmd RadioCmd) {
	r.cmd = cmd
}

// Config returns the active receive configuration.
func (r *Radio) Config() RadioCmd {
	return r.cmd
}

// Deliver places a packet in the receive buffer and raises the interrupt.
// It never blocks: a packet arriving while the buffer is full is lost, as on
// the real peripheral. Safe to call from any goroutine.
func (r *Radio) Deliver(p Packet) bool {
	select {
	case r.rx <- p:
	default:
		r.dropped.Add(1)
		return false
	}
	if r.raise != nil {
		r.raise()
	}
	return true
}

// RecvBeaconInterrupt services the receive interrupt. The buffered packet,
// if any, is processed by the scanner on the currently configured channel
// and the radio is reconfigured from the scanner's command. The returned
// NextUpdate is only meaningful when ok is true.
func (r *Radio) RecvBeaconInterrupt(now Instant, s *BeaconScanner) (next NextUpdate, ok bool) {
	var pkt Packet
	select {
	case pkt = <-r.rx:
	default:
		return NextUpdate{}, false
	}

	if !r.cmd.Listen {
		r.ignored.Add(1)
		return NextUpdate{}, false
	}

	r.received.Add(1)
	cmd := s.ProcessAdvPacket(now, r.cmd.Channel, &pkt)
	r.ConfigureReceiver(cmd.Radio)
	return cmd.NextUpdate, true
}

// Stats returns a snapshot of the packet counters.
func (r *Radio) Stats() RadioStats {
	return RadioStats{
		Received: r.received.Load(),
		Dropped:  r.dropped.Load(),
		Ignored:  r.ignored.Load(),
	}
}
