// Package sink provides in-memory and callback sinks for pipelines.
package sink

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("sink is closed")

// Concatenator joins string chunks in arrival order.
type Concatenator struct {
	mu     sync.Mutex
	sb     strings.Builder
	chunks int
	closed bool
	err    error
	done   chan struct{}
}

// Concat returns a sink that concatenates string chunks.
func Concat() *Concatenator {
	return &Concatenator{done: make(chan struct{})}
}

func (c *Concatenator) Write(_ context.Context, chunk string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.sb.WriteString(chunk)
	c.chunks++
	return nil
}

func (c *Concatenator) Close(context.Context) error {
	return c.finish(nil)
}

// Abort ends the sink with err; String keeps the partial content.
func (c *Concatenator) Abort(_ context.Context, err error) error {
	return c.finish(err)
}

func (c *Concatenator) finish(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.err = err
		close(c.done)
	}
	return nil
}

// Err returns the reason the sink was aborted, or nil after a normal close.
func (c *Concatenator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// String returns everything written so far.
func (c *Concatenator) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sb.String()
}

// Chunks returns how many chunks were written.
func (c *Concatenator) Chunks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks
}

// Done is closed when the sink is closed or aborted; check Err to tell
// which.
func (c *Concatenator) Done() <-chan struct{} { return c.done }

// Func adapts a write function to a Sink with no completion work.
func Func[T any](fn func(context.Context, T) error) core.Sink[T] {
	return core.SinkFunc[T]{WriteFn: fn}
}

// Discard returns a sink that accepts and drops every chunk.
func Discard[T any]() core.Sink[T] {
	return Func(func(context.Context, T) error { return nil })
}
