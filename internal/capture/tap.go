package capture

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"
)

// Tap buffers PCM for a recorder. It only accepts data while armed and never
// blocks the writer: bytes that do not fit are dropped and counted.
type Tap struct {
	mu      sync.Mutex
	buf     *ringbuffer.RingBuffer
	armed   atomic.Bool
	dropped atomic.Uint64
	onDrop  func(n int)
}

// NewTap creates a tap holding up to capacity bytes.
func NewTap(capacity int) *Tap {
	return &Tap{buf: ringbuffer.New(capacity)}
}

// OnDrop registers a callback invoked with the number of bytes dropped on overflow.
func (t *Tap) OnDrop(fn func(n int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDrop = fn
}

// Arm discards stale data and starts accepting writes.
func (t *Tap) Arm() {
	t.mu.Lock()
	t.buf.Reset()
	t.mu.Unlock()
	t.armed.Store(true)
}

// Disarm stops accepting writes. Buffered data stays readable.
func (t *Tap) Disarm() {
	t.armed.Store(false)
}

func (t *Tap) Armed() bool {
	return t.armed.Load()
}

// Write implements the graph side of the tap.
func (t *Tap) Write(p []byte) {
	if !t.armed.Load() || len(p) == 0 {
		return
	}
	t.mu.Lock()
	n, err := t.buf.Write(p)
	onDrop := t.onDrop
	t.mu.Unlock()

	if err != nil && n < len(p) {
		lost := len(p) - n
		t.dropped.Add(uint64(lost))
		if onDrop != nil {
			onDrop(lost)
		}
	}
}

// Drain returns all buffered bytes, or nil when the tap is empty.
func (t *Tap) Drain() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.buf.Length()
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	read, err := t.buf.Read(out)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return nil, err
	}
	return out[:read], nil
}

// Dropped returns the total number of bytes lost to overflow.
func (t *Tap) Dropped() uint64 {
	return t.dropped.Load()
}
