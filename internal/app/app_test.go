package app

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ble-proximity.klederson.com/internal/ble"
	"ble-proximity.klederson.com/internal/config"
	"ble-proximity.klederson.com/internal/display"
	"ble-proximity.klederson.com/internal/irq"
)

type manualClock struct {
	now atomic.Uint32
}

func (c *manualClock) Now() ble.Instant { return ble.Instant(c.now.Load()) }

func (c *manualClock) set(v uint32) { c.now.Store(v) }

func (c *manualClock) advance(d uint32) { c.now.Add(d) }

func boot(t *testing.T, clock ble.Clock, logger *zap.Logger) *Firmware {
	t.Helper()
	board := NewBoard(clock, irq.NewController(logger))
	fw, err := Boot(board, config.Default(), logger)
	if err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	return fw
}

func scanTimer(fw *Firmware) *ble.Timer {
	var timer *ble.Timer
	fw.scan.Lock(func(s *Shared) { timer = s.Timer })
	return timer
}

func beaconPacket(rssi int8) ble.Packet {
	return ble.Packet{
		Type:      ble.PDUAdvNonconnInd,
		TypeKnown: true,
		CRCOK:     true,
		RSSI:      rssi,
		HasRSSI:   true,
	}
}

func TestBootTwiceFails(t *testing.T) {
	board := NewBoard(&manualClock{}, irq.NewController(nil))
	if _, err := Boot(board, config.Default(), nil); err != nil {
		t.Fatalf("first Boot() error = %v", err)
	}
	if _, err := Boot(board, config.Default(), nil); !errors.Is(err, ErrPeripheralsTaken) {
		t.Errorf("second Boot() error = %v, want ErrPeripheralsTaken", err)
	}
}

func TestBootConfiguresScanner(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	clock := &manualClock{}
	clock.set(1000)
	fw := boot(t, clock, zap.New(core))

	snap := fw.Snapshot()
	if snap.Channel != 37 || !snap.Listening {
		t.Errorf("radio on channel %d listening=%v, want 37, true", snap.Channel, snap.Listening)
	}
	if snap.NextHop != 501000 {
		t.Errorf("NextHop = %d, want 501000", snap.NextHop)
	}
	if deadline, armed := scanTimer(fw).Deadline(); !armed || deadline != 501000 {
		t.Errorf("timer deadline = %d armed=%v", deadline, armed)
	}
	if snap.Estimate != 0 || snap.Frame != -1 {
		t.Errorf("boot estimate = %d, frame = %d", snap.Estimate, snap.Frame)
	}
	if logs.FilterMessage("Scanner set up").Len() != 1 {
		t.Error("startup banner not logged")
	}
	if fw.scan.Ceiling() != config.PriorityRadio || fw.disp.Ceiling() != config.PriorityDisplay {
		t.Errorf("ceilings scan=%d display=%d", fw.scan.Ceiling(), fw.disp.Ceiling())
	}
}

func TestTimerHandlerIgnoresSpuriousFiring(t *testing.T) {
	fw := boot(t, &manualClock{}, nil)
	fw.irq.Pend(VectorTimer)
	fw.irq.Dispatch()

	snap := fw.Snapshot()
	if snap.Spurious != 1 {
		t.Errorf("Spurious = %d, want 1", snap.Spurious)
	}
	if snap.Channel != 37 || snap.NextHop != 500000 {
		t.Errorf("spurious firing changed the schedule: ch %d hop %d", snap.Channel, snap.NextHop)
	}
}

func TestTimerHandlerHops(t *testing.T) {
	clock := &manualClock{}
	fw := boot(t, clock, nil)
	timer := scanTimer(fw)

	for i, want := range []uint8{38, 39, 37, 38} {
		clock.advance(500000)
		timer.Expire()
		fw.irq.Dispatch()

		snap := fw.Snapshot()
		if snap.Channel != want {
			t.Errorf("hop %d: channel %d, want %d", i, snap.Channel, want)
		}
		if snap.NextHop != snap.Now.Add(500000) {
			t.Errorf("hop %d: next hop %d, now %d", i, snap.NextHop, snap.Now)
		}
		if timer.IsInterruptPending() {
			t.Errorf("hop %d: interrupt not cleared", i)
		}
	}
	if fw.Snapshot().Spurious != 0 {
		t.Error("genuine expiries counted as spurious")
	}
}

func TestRadioHandlerFeedsCollector(t *testing.T) {
	clock := &manualClock{}
	fw := boot(t, clock, nil)

	for _, s := range []struct {
		ts  uint32
		mag int
	}{{0, 5}, {100000, 8}, {600000, 3}} {
		clock.set(s.ts)
		if !fw.Radio().Deliver(beaconPacket(int8(-(s.mag + config.CalibrationBias)))) {
			t.Fatal("Deliver() dropped a packet into an empty buffer")
		}
		fw.irq.Dispatch()
	}

	snap := fw.Snapshot()
	if snap.Estimate != 3 {
		t.Errorf("estimate = %d, want 3", snap.Estimate)
	}
	if snap.Collector.Bursts != 1 || snap.Radio.Received != 3 {
		t.Errorf("Bursts = %d, Received = %d", snap.Collector.Bursts, snap.Radio.Received)
	}
	if len(snap.Minima) != 1 || snap.Minima[0] != 3 {
		t.Errorf("Minima = %v, want [3]", snap.Minima)
	}
}

func TestRadioBufferSingleSlot(t *testing.T) {
	fw := boot(t, &manualClock{}, nil)
	fw.Radio().Deliver(beaconPacket(-60))
	if fw.Radio().Deliver(beaconPacket(-61)) {
		t.Error("second Deliver() before the handler ran should be dropped")
	}
	fw.irq.Dispatch()
	st := fw.Snapshot().Radio
	if st.Received != 1 || st.Dropped != 1 {
		t.Errorf("RadioStats = %+v", st)
	}
}

func TestDisplayHandler(t *testing.T) {
	fw := boot(t, &manualClock{}, nil)
	for range config.MatrixSize {
		fw.irq.Pend(VectorDisplay)
		fw.irq.Dispatch()
	}
	snap := fw.Snapshot()
	if snap.Frame != 0 {
		t.Errorf("Frame = %d, want 0", snap.Frame)
	}
	if snap.Image != display.Frames[0] {
		t.Error("matrix image does not show frame 0 after a full scan")
	}

	fw.Estimate().Store(90)
	fw.irq.Pend(VectorDisplay)
	fw.irq.Dispatch()
	if got := fw.Snapshot().Frame; got != 26 {
		t.Errorf("Frame = %d, want 26", got)
	}
}

// Radio deliveries, timer expiries and clock jumps race from separate
// goroutines while the controller dispatches. Every observation under the
// scan lock must see the radio and timer agree with the scanner.
func TestScheduleStaysConsistent(t *testing.T) {
	clock := &manualClock{}
	fw := boot(t, clock, nil)
	timer := scanTimer(fw)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.irq.Run(ctx) }()

	var wg sync.WaitGroup
	var violations atomic.Int64
	wg.Add(3)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		for range 3000 {
			fw.Radio().Deliver(beaconPacket(int8(-43 - rng.Intn(50))))
			runtime.Gosched()
		}
	}()
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(2))
		for range 1000 {
			clock.advance(uint32(rng.Intn(600000)))
			timer.Expire()
			if rng.Intn(4) == 0 {
				fw.irq.Pend(VectorTimer)
			}
			runtime.Gosched()
		}
	}()
	go func() {
		defer wg.Done()
		for range 3000 {
			fw.scan.Lock(func(s *Shared) {
				rc := s.Radio.Config()
				deadline, _ := s.Timer.Deadline()
				hop, running := s.Scanner.NextHop()
				if !running || !rc.Listen || rc.Channel != s.Scanner.Channel() || deadline != hop {
					violations.Add(1)
				}
			})
			runtime.Gosched()
		}
	}()
	wg.Wait()

	// Let the dispatchers drain.
	deadline := time.Now().Add(2 * time.Second)
	for fw.irq.IsPending(VectorRadio) || fw.irq.IsPending(VectorTimer) {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if n := violations.Load(); n != 0 {
		t.Errorf("%d inconsistent schedule observations", n)
	}
	if fw.irq.Count(VectorTimer) == 0 || fw.irq.Count(VectorRadio) == 0 {
		t.Errorf("handlers did not run: timer %d radio %d", fw.irq.Count(VectorTimer), fw.irq.Count(VectorRadio))
	}
}

func TestFirmwareRunPendsDisplay(t *testing.T) {
	fw := boot(t, &manualClock{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for fw.irq.Count(VectorDisplay) < config.MatrixSize {
		if time.Now().After(deadline) {
			t.Fatal("display vector not serviced")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestModel(t *testing.T) {
	fw := boot(t, &manualClock{}, nil)
	fw.irq.Pend(VectorDisplay)
	fw.irq.Dispatch()

	var m tea.Model = New(fw, nil, "demo", 30)
	if !strings.Contains(m.View(), "Initializing") {
		t.Error("view before sizing should be a placeholder")
	}

	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m, cmd := m.Update(TickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if st := m.(AppModel).Status(); st.Frame != 0 || st.Channel != 37 {
		t.Errorf("Status() = %+v", st)
	}
	view := m.View()
	for _, want := range []string{"LED MATRIX", "PROXIMITY", "SCANNING", "demo"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	if !strings.Contains(m.View(), "FROZEN") {
		t.Error("f should freeze the view")
	}

	m, _ = m.Update(HaltMsg{Err: irq.ErrHalted})
	if !strings.Contains(m.View(), "HALTED") {
		t.Error("halt not shown")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not return tea.Quit")
	}
}
