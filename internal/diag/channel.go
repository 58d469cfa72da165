// Package diag is the diagnostic text transport. Writers never block: a
// full buffer discards its oldest bytes and a contended write is dropped.
// A Pump goroutine moves buffered text to its final destination.
package diag

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
)

// MinBufferSize is the smallest buffer NewChannel accepts.
const MinBufferSize = 256

const pumpInterval = 50 * time.Millisecond

// Channel is a bounded byte channel. It implements zapcore.WriteSyncer.
type Channel struct {
	mu      sync.Mutex
	rb      *ringbuffer.RingBuffer
	size    int
	scratch []byte

	dropped atomic.Uint64 // bytes discarded
	notify  chan struct{}
}

// NewChannel creates a channel holding up to size bytes.
func NewChannel(size int) *Channel {
	size = max(size, MinBufferSize)
	return &Channel{
		rb:      ringbuffer.New(size),
		size:    size,
		scratch: make([]byte, size),
		notify:  make(chan struct{}, 1),
	}
}

// Write buffers p. Output that does not fit displaces the oldest buffered
// bytes; a p larger than the whole buffer keeps only its tail. If another
// goroutine holds the buffer, p is dropped. Write always reports success.
func (c *Channel) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}
	if !c.mu.TryLock() {
		c.dropped.Add(uint64(n))
		return n, nil
	}
	defer c.mu.Unlock()

	if n > c.size {
		c.dropped.Add(uint64(n - c.size))
		p = p[n-c.size:]
	}
	if free := c.rb.Free(); free < len(p) {
		discarded, _ := c.rb.Read(c.scratch[:len(p)-free])
		c.dropped.Add(uint64(discarded))
	}
	if _, err := c.rb.Write(p); err != nil {
		c.dropped.Add(uint64(len(p)))
	}

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return n, nil
}

// Sync is a no-op; the Pump owns flushing.
func (c *Channel) Sync() error {
	return nil
}

// Drain moves up to len(p) buffered bytes into p.
func (c *Channel) Drain(p []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.rb.Read(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0
	}
	return n
}

// Len returns the number of buffered bytes.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rb.Length()
}

// Dropped returns the number of bytes discarded so far.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

// Pump copies buffered output to w until ctx is done, then flushes what is
// left. It returns the first write error.
func (c *Channel) Pump(ctx context.Context, w io.Writer) error {
	buf := make([]byte, 4096)
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	flush := func() error {
		for {
			n := c.Drain(buf)
			if n == 0 {
				return nil
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return flush()
		case <-c.notify:
		case <-ticker.C:
		}
		if err := flush(); err != nil {
			return err
		}
	}
}
