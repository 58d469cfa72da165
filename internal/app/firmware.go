package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ble-proximity.klederson.com/internal/ble"
	"ble-proximity.klederson.com/internal/config"
	"ble-proximity.klederson.com/internal/display"
	"ble-proximity.klederson.com/internal/irq"
	"ble-proximity.klederson.com/internal/signal"
)

// Interrupt vector names.
const (
	VectorRadio   = "RADIO"
	VectorTimer   = "TIMER0"
	VectorDisplay = "DISPLAY"
)

// ErrPeripheralsTaken is returned when the board has already been claimed.
var ErrPeripheralsTaken = errors.New("peripherals already taken")

// Board owns the peripherals. They can be taken once per process.
type Board struct {
	clock ble.Clock
	irq   *irq.Controller
	taken atomic.Bool
}

// Peripherals is what a successful Take hands out.
type Peripherals struct {
	Clock ble.Clock
	IRQ   *irq.Controller
}

// NewBoard creates a board around a tick counter and interrupt controller.
func NewBoard(clock ble.Clock, ctrl *irq.Controller) *Board {
	return &Board{clock: clock, irq: ctrl}
}

// Take claims the peripherals.
func (b *Board) Take() (Peripherals, error) {
	if !b.taken.CompareAndSwap(false, true) {
		return Peripherals{}, ErrPeripheralsTaken
	}
	return Peripherals{Clock: b.clock, IRQ: b.irq}, nil
}

// Shared is the scan state locked by the radio and timer handlers.
type Shared struct {
	Radio   *ble.Radio
	Timer   *ble.Timer
	Scanner *ble.BeaconScanner
}

// Display is the display state locked by the display handler.
type Display struct {
	Matrix  *display.Matrix
	Updater *display.Updater
}

// Firmware wires the scan scheduler, signal collector and display updater
// to the interrupt controller.
type Firmware struct {
	cfg    *config.Config
	logger *zap.Logger
	irq    *irq.Controller

	scan *irq.Cell[Shared]
	disp *irq.Cell[Display]

	radio     *ble.Radio
	estimate  *signal.Estimate
	collector *signal.Collector

	spurious atomic.Uint64
}

// Boot brings up the peripherals, configures the scanner and arms the
// interrupts. A failure here is fatal: the caller must not enter Run.
func Boot(board *Board, cfg *config.Config, logger *zap.Logger) (*Firmware, error) {
	p, err := board.Take()
	if err != nil {
		return nil, fmt.Errorf("bring-up: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Firmware{
		cfg:      cfg,
		logger:   logger,
		irq:      p.IRQ,
		scan:     irq.NewCell[Shared]("scan"),
		disp:     irq.NewCell[Display]("display"),
		estimate: &signal.Estimate{},
	}
	f.collector = signal.NewCollector(f.estimate, logger.Named("signal"))

	vectors := []irq.Vector{
		{Name: VectorRadio, Priority: config.PriorityRadio, Resources: []irq.Resource{f.scan}, Handler: f.OnRadio},
		{Name: VectorTimer, Priority: config.PriorityTimer, Resources: []irq.Resource{f.scan}, Handler: f.OnTimer},
		{Name: VectorDisplay, Priority: config.PriorityDisplay, Resources: []irq.Resource{f.disp}, Handler: f.OnDisplay},
	}
	for _, v := range vectors {
		if err := f.irq.Register(v); err != nil {
			return nil, fmt.Errorf("bring-up: %w", err)
		}
	}

	raiseRadio, err := f.irq.Raiser(VectorRadio)
	if err != nil {
		return nil, fmt.Errorf("bring-up: %w", err)
	}
	raiseTimer, err := f.irq.Raiser(VectorTimer)
	if err != nil {
		return nil, fmt.Errorf("bring-up: %w", err)
	}

	timer := ble.NewTimer(p.Clock, raiseTimer)
	f.radio = ble.NewRadio(raiseRadio)
	scanner := ble.NewBeaconScanner(f.collector)

	cmd := scanner.Configure(timer.Now(), ble.DurationFrom(config.UpdateInterval))
	f.radio.ConfigureReceiver(cmd.Radio)
	timer.ConfigureInterrupt(cmd.NextUpdate)

	f.scan.Replace(Shared{Radio: f.radio, Timer: timer, Scanner: scanner})
	f.disp.Replace(Display{Matrix: display.NewMatrix(), Updater: display.NewUpdater(f.estimate)})

	for _, name := range []string{VectorTimer, VectorRadio, VectorDisplay} {
		if err := f.irq.Unmask(name); err != nil {
			return nil, fmt.Errorf("bring-up: %w", err)
		}
	}

	logger.Info("Scanner set up",
		zap.Uint8("channel", cmd.Radio.Channel),
		zap.Uint32("next_hop", uint32(cmd.NextUpdate.At)),
		zap.Duration("interval", config.UpdateInterval),
		zap.Uint8("scan_ceiling", uint8(f.scan.Ceiling())),
		zap.Uint8("display_ceiling", uint8(f.disp.Ceiling())),
	)
	return f, nil
}

// OnRadio services the radio receive interrupt.
func (f *Firmware) OnRadio() {
	f.scan.Lock(func(s *Shared) {
		if next, ok := s.Radio.RecvBeaconInterrupt(s.Timer.Now(), s.Scanner); ok {
			s.Timer.ConfigureInterrupt(next)
		}
	})
}

// OnTimer services the scan timer interrupt. Firings without a pending
// compare event are ignored.
func (f *Firmware) OnTimer() {
	f.scan.Lock(func(s *Shared) {
		if !s.Timer.IsInterruptPending() {
			f.spurious.Add(1)
			return
		}
		s.Timer.ClearInterrupt()
		cmd := s.Scanner.TimerUpdate(s.Timer.Now())
		s.Radio.ConfigureReceiver(cmd.Radio)
		s.Timer.ConfigureInterrupt(cmd.NextUpdate)
	})
}

// OnDisplay services the display refresh interrupt.
func (f *Firmware) OnDisplay() {
	f.disp.Lock(func(d *Display) {
		d.Updater.Tick(d.Matrix)
	})
}

// Radio returns the radio whose receive buffer sources deliver into.
func (f *Firmware) Radio() *ble.Radio {
	return f.radio
}

// Estimate returns the published proximity estimate.
func (f *Firmware) Estimate() *signal.Estimate {
	return f.estimate
}

// Collector returns the signal collector. Only its Stats may be read
// outside the radio handler.
func (f *Firmware) Collector() *signal.Collector {
	return f.collector
}

// Run dispatches interrupts and pends the display vector every refresh
// interval until ctx is done or a handler faults.
func (f *Firmware) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.irq.Run(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(f.cfg.Display.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				f.irq.Pend(VectorDisplay)
			}
		}
	})
	return g.Wait()
}

// Snapshot is a consistent view of the firmware for rendering.
type Snapshot struct {
	Estimate  uint8
	Frame     int
	Image     display.Frame
	Channel   uint8
	Listening bool
	Now       ble.Instant
	NextHop   ble.Instant
	Minima    []uint8
	Collector signal.Stats
	Radio     ble.RadioStats
	Spurious  uint64
	Halted    bool
}

// Snapshot reads both cells and the counters.
func (f *Firmware) Snapshot() Snapshot {
	snap := Snapshot{
		Estimate:  f.estimate.Load(),
		Frame:     -1,
		Collector: f.collector.Stats(),
		Radio:     f.radio.Stats(),
		Spurious:  f.spurious.Load(),
		Halted:    f.irq.Err() != nil,
	}
	f.scan.Lock(func(s *Shared) {
		rc := s.Radio.Config()
		snap.Channel = rc.Channel
		snap.Listening = rc.Listen
		snap.Now = s.Timer.Now()
		snap.NextHop, _ = s.Scanner.NextHop()
		// The collector only runs inside the radio handler, which holds
		// this cell.
		snap.Minima = f.collector.Minima()
	})
	f.disp.Lock(func(d *Display) {
		snap.Frame = d.Updater.Current()
		snap.Image = d.Matrix.Snapshot()
	})
	return snap
}
