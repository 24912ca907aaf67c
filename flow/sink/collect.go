package sink

import (
	"context"
	"slices"
	"sync"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Collector accumulates chunks up to a capacity. Once full it refuses
// further writes with core.ErrBackPressure until Drain makes room, which is
// how a slow consumer throttles the whole pipeline.
type Collector[T any] struct {
	capacity int

	mu     sync.Mutex
	items  []T
	total  int
	closed bool
	err    error
	ready  chan struct{}
	done   chan struct{}
}

// Collect returns a collector holding at most capacity undrained chunks.
// A capacity of zero or less means unbounded.
func Collect[T any](capacity int) *Collector[T] {
	return &Collector[T]{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (c *Collector[T]) Write(_ context.Context, chunk T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.capacity > 0 && len(c.items) >= c.capacity {
		return core.ErrBackPressure
	}
	c.items = append(c.items, chunk)
	c.total++
	return nil
}

// Ready fires after Drain frees capacity.
func (c *Collector[T]) Ready() <-chan struct{} { return c.ready }

func (c *Collector[T]) Close(context.Context) error {
	return c.finish(nil)
}

// Abort ends the collector with err. Undrained chunks stay readable.
func (c *Collector[T]) Abort(_ context.Context, err error) error {
	return c.finish(err)
}

func (c *Collector[T]) finish(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.err = err
		close(c.done)
	}
	return nil
}

// Err returns the abort reason, or nil after a normal close.
func (c *Collector[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Drain removes and returns the buffered chunks, releasing back-pressure.
func (c *Collector[T]) Drain() []T {
	c.mu.Lock()
	items := c.items
	c.items = nil
	c.mu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
	return items
}

// Items returns a copy of the buffered chunks without draining them.
func (c *Collector[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Len returns the number of undrained chunks.
func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Total returns how many chunks were ever accepted.
func (c *Collector[T]) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Done is closed when the collector is closed or aborted.
func (c *Collector[T]) Done() <-chan struct{} { return c.done }
