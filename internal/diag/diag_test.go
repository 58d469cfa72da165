package diag

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func drainAll(c *Channel) string {
	var sb strings.Builder
	buf := make([]byte, 64)
	for {
		n := c.Drain(buf)
		if n == 0 {
			return sb.String()
		}
		sb.Write(buf[:n])
	}
}

func TestChannelRoundTrip(t *testing.T) {
	c := NewChannel(1024)
	c.Write([]byte("Scanner set up\n"))
	if c.Len() != 15 {
		t.Errorf("Len() = %d, want 15", c.Len())
	}
	if got := drainAll(c); got != "Scanner set up\n" {
		t.Errorf("drained %q", got)
	}
	if c.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", c.Dropped())
	}
}

func TestChannelMinimumSize(t *testing.T) {
	c := NewChannel(10)
	c.Write(bytes.Repeat([]byte("x"), MinBufferSize))
	if c.Dropped() != 0 || c.Len() != MinBufferSize {
		t.Errorf("Len = %d, Dropped = %d", c.Len(), c.Dropped())
	}
}

func TestChannelDropsOldest(t *testing.T) {
	c := NewChannel(256)
	c.Write(bytes.Repeat([]byte("a"), 200))
	n, err := c.Write(bytes.Repeat([]byte("b"), 100))
	if n != 100 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if c.Dropped() != 44 {
		t.Errorf("Dropped() = %d, want 44", c.Dropped())
	}
	want := strings.Repeat("a", 156) + strings.Repeat("b", 100)
	if got := drainAll(c); got != want {
		t.Errorf("buffer holds %d bytes, want the newest 256", len(got))
	}
}

func TestChannelOversizeWriteKeepsTail(t *testing.T) {
	c := NewChannel(256)
	p := []byte(strings.Repeat("x", 100) + strings.Repeat("y", 256))
	if n, _ := c.Write(p); n != len(p) {
		t.Errorf("Write() = %d, want %d", n, len(p))
	}
	if got := drainAll(c); got != strings.Repeat("y", 256) {
		t.Errorf("kept %q...", got[:8])
	}
	if c.Dropped() != 100 {
		t.Errorf("Dropped() = %d, want 100", c.Dropped())
	}
}

func TestChannelContendedWriteDropped(t *testing.T) {
	c := NewChannel(256)
	c.mu.Lock()
	n, err := c.Write([]byte("lost"))
	c.mu.Unlock()
	if n != 4 || err != nil {
		t.Errorf("Write() = %d, %v; want 4, nil", n, err)
	}
	if c.Dropped() != 4 || c.Len() != 0 {
		t.Errorf("Dropped = %d, Len = %d", c.Dropped(), c.Len())
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPump(t *testing.T) {
	c := NewChannel(1024)
	var out lockedBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Pump(ctx, &out) }()

	c.Write([]byte("one\n"))
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "one") {
		if time.Now().After(deadline) {
			t.Fatal("pump did not forward output")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Write([]byte("two\n"))
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Pump() error = %v", err)
	}
	if got := out.String(); got != "one\ntwo\n" {
		t.Errorf("pumped %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(NewChannel(1024), "loud"); err == nil {
		t.Error("NewLogger() accepted an invalid level")
	}

	c := NewChannel(1024)
	logger, err := NewLogger(c, "info")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("burst average", zap.Uint8("avg", 17))

	got := drainAll(c)
	if strings.Contains(got, "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(got, "burst average") || !strings.Contains(got, `"avg": 17`) {
		t.Errorf("log output %q", got)
	}
}
