// Package irq emulates a nested vectored interrupt controller on the host.
// Handlers are bound to named vectors with a static priority. A pended
// vector runs its handler to completion once; pends that arrive before it
// runs are coalesced into one invocation. Shared state is held in Cells
// whose ceiling is the highest priority of the vectors that lock them.
package irq

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrDuplicateVector = errors.New("irq: duplicate vector")
	ErrUnknownVector   = errors.New("irq: unknown vector")
	ErrHalted          = errors.New("irq: controller halted")
	ErrRunning         = errors.New("irq: controller already running")
)

// Priority orders vectors. Higher values preempt lower ones.
type Priority uint8

// Vector binds a handler to an interrupt line.
type Vector struct {
	Name      string
	Priority  Priority
	Resources []Resource
	Handler   func()
}

type line struct {
	Vector
	pending atomic.Bool
	masked  atomic.Bool
	wake    chan struct{}
	count   atomic.Uint64
}

func (l *line) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Controller dispatches pended vectors. Vectors are registered masked and
// must be unmasked before they run. Register every vector before calling
// Run.
type Controller struct {
	logger *zap.Logger

	mu    sync.RWMutex
	lines map[string]*line
	order []*line // highest priority first, then registration order

	running  atomic.Bool
	halted   atomic.Bool
	haltCh   chan struct{}
	haltOnce sync.Once
	fault    error
}

// NewController creates a controller with no vectors.
func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		logger: logger,
		lines:  make(map[string]*line),
		haltCh: make(chan struct{}),
	}
}

// Register adds a vector and raises the ceiling of each resource it locks.
func (c *Controller) Register(v Vector) error {
	if v.Handler == nil {
		return fmt.Errorf("irq: vector %s has no handler", v.Name)
	}
	if c.running.Load() {
		return ErrRunning
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lines[v.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateVector, v.Name)
	}

	l := &line{Vector: v, wake: make(chan struct{}, 1)}
	l.masked.Store(true)
	c.lines[v.Name] = l
	c.order = append(c.order, l)
	slices.SortStableFunc(c.order, func(a, b *line) int {
		return cmp.Compare(b.Priority, a.Priority)
	})

	for _, r := range v.Resources {
		r.raiseCeiling(v.Priority)
	}
	c.logger.Debug("vector registered",
		zap.String("vector", v.Name),
		zap.Uint8("priority", uint8(v.Priority)),
		zap.Int("resources", len(v.Resources)),
	)
	return nil
}

func (c *Controller) lookup(name string) (*line, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVector, name)
	}
	return l, nil
}

// Pend latches the vector's pending bit. Masked vectors stay pending until
// unmasked. Pending an unknown vector is a no-op.
func (c *Controller) Pend(name string) {
	l, err := c.lookup(name)
	if err != nil {
		return
	}
	c.pend(l)
}

func (c *Controller) pend(l *line) {
	if c.halted.Load() {
		return
	}
	l.pending.Store(true)
	if !l.masked.Load() {
		l.signal()
	}
}

// Raiser returns a function that pends the named vector. Peripherals hold
// it to raise their interrupt without a name lookup.
func (c *Controller) Raiser(name string) (func(), error) {
	l, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return func() { c.pend(l) }, nil
}

// Unmask enables the vector, releasing a latched pend.
func (c *Controller) Unmask(name string) error {
	l, err := c.lookup(name)
	if err != nil {
		return err
	}
	l.masked.Store(false)
	if l.pending.Load() {
		l.signal()
	}
	return nil
}

// Mask disables the vector again after Unmask. Pends are still latched and
// run on the next Unmask.
func (c *Controller) Mask(name string) error {
	l, err := c.lookup(name)
	if err != nil {
		return err
	}
	l.masked.Store(true)
	return nil
}

// IsPending reports whether the vector is latched and has not run yet.
func (c *Controller) IsPending(name string) bool {
	l, err := c.lookup(name)
	return err == nil && l.pending.Load()
}

// Count returns how many times the vector's handler has completed.
func (c *Controller) Count(name string) uint64 {
	l, err := c.lookup(name)
	if err != nil {
		return 0
	}
	return l.count.Load()
}

// Run starts one dispatcher per vector and blocks until ctx is done or a
// handler panics. It returns nil on cancellation and an error wrapping
// ErrHalted after a fault.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	if c.halted.Load() {
		return c.Err()
	}

	c.mu.RLock()
	lines := slices.Clone(c.order)
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for _, l := range lines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.dispatchLoop(ctx, l)
		}()
	}

	select {
	case <-ctx.Done():
	case <-c.haltCh:
	}
	wg.Wait()
	return c.Err()
}

func (c *Controller) dispatchLoop(ctx context.Context, l *line) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.haltCh:
			return
		case <-l.wake:
		}
		c.service(l)
	}
}

// service runs the handler once if the line is pending and enabled.
func (c *Controller) service(l *line) bool {
	if c.halted.Load() || l.masked.Load() {
		return false
	}
	if !l.pending.CompareAndSwap(true, false) {
		return false
	}
	c.invoke(l)
	return true
}

func (c *Controller) invoke(l *line) {
	defer func() {
		if r := recover(); r != nil {
			c.halt(l, r)
		}
	}()
	l.Handler()
	l.count.Add(1)
}

func (c *Controller) halt(l *line, r any) {
	c.haltOnce.Do(func() {
		c.fault = fmt.Errorf("%w: panic in %s: %v", ErrHalted, l.Name, r)
		c.halted.Store(true)
		c.logger.Error("handler fault, halting",
			zap.String("vector", l.Name),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
		close(c.haltCh)
	})
}

// Dispatch synchronously services every pending, unmasked vector, highest
// priority first, until none is left pending. It returns the number of
// handlers run.
func (c *Controller) Dispatch() (int, error) {
	c.mu.RLock()
	lines := slices.Clone(c.order)
	c.mu.RUnlock()

	n := 0
	for {
		ran := false
		for _, l := range lines {
			if c.service(l) {
				n++
				ran = true
				break
			}
		}
		if err := c.Err(); err != nil {
			return n, err
		}
		if !ran {
			return n, nil
		}
	}
}

// Halted is closed when a handler fault stops the controller.
func (c *Controller) Halted() <-chan struct{} {
	return c.haltCh
}

// Err returns the fault that halted the controller, or nil.
func (c *Controller) Err() error {
	if !c.halted.Load() {
		return nil
	}
	select {
	case <-c.haltCh:
		return c.fault
	default:
		return ErrHalted
	}
}
