package sink

import (
	"bytes"
	"context"
	"sync"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Buffer accumulates byte chunks. With a positive capacity it applies
// back-pressure once the undrained bytes reach capacity; the chunk that
// crosses the mark is still accepted whole.
type Buffer struct {
	capacity int

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	err    error
	ready  chan struct{}
}

// NewBuffer returns a byte accumulator; capacity <= 0 means unbounded.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity, ready: make(chan struct{}, 1)}
}

func (b *Buffer) Write(_ context.Context, chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.capacity > 0 && b.buf.Len() >= b.capacity {
		return core.ErrBackPressure
	}
	b.buf.Write(chunk)
	return nil
}

func (b *Buffer) Ready() <-chan struct{} { return b.ready }

func (b *Buffer) Close(context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Abort closes the buffer, recording err.
func (b *Buffer) Abort(_ context.Context, err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.err = err
	}
	return nil
}

// Err returns the abort reason, or nil.
func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Bytes returns a copy of the undrained bytes.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// Drain removes and returns the undrained bytes, releasing back-pressure.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	out := bytes.Clone(b.buf.Bytes())
	b.buf.Reset()
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return out
}
