package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type gatedSink struct {
	ready    chan struct{}
	refusals int
	written  []int
}

func (s *gatedSink) Write(_ context.Context, n int) error {
	if s.refusals > 0 {
		s.refusals--
		return ErrBackPressure
	}
	s.written = append(s.written, n)
	return nil
}

func (s *gatedSink) Close(context.Context) error { return nil }

func (s *gatedSink) Ready() <-chan struct{} { return s.ready }

func TestDeliverRetriesAfterReady(t *testing.T) {
	sink := &gatedSink{ready: make(chan struct{}), refusals: 2}

	done := make(chan error, 1)
	go func() { done <- Deliver[int](context.Background(), sink, 7) }()

	sink.ready <- struct{}{}
	sink.ready <- struct{}{}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Deliver did not resume after readiness")
	}
	if len(sink.written) != 1 || sink.written[0] != 7 {
		t.Errorf("written = %v, want [7] exactly once", sink.written)
	}
}

func TestDeliverCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &gatedSink{ready: make(chan struct{}), refusals: 1}

	done := make(chan error, 1)
	go func() { done <- Deliver[int](ctx, sink, 1) }()
	cancel()

	err := <-done
	if !IsCancellation(err) {
		t.Errorf("Deliver() = %v, want cancellation", err)
	}
	if len(sink.written) != 0 {
		t.Errorf("chunk written after cancellation: %v", sink.written)
	}
}

func TestDeliverBackPressureWithoutReadiness(t *testing.T) {
	sink := SinkFunc[int]{WriteFn: func(context.Context, int) error { return ErrBackPressure }}
	if err := Deliver[int](context.Background(), sink, 1); !errors.Is(err, ErrBackPressure) {
		t.Errorf("Deliver() = %v, want ErrBackPressure", err)
	}
}

func TestSourceFunc(t *testing.T) {
	closed := false
	src := SourceFunc[int]{
		PullFn:  func(context.Context) (int, error) { return 0, ErrEndOfStream },
		CloseFn: func() error { closed = true; return nil },
	}
	if _, err := src.Pull(context.Background()); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("Pull() = %v", err)
	}
	if err := src.Close(); err != nil || !closed {
		t.Errorf("Close() = %v, closed=%v", err, closed)
	}
	if err := (SourceFunc[int]{}).Close(); err != nil {
		t.Errorf("nil CloseFn returned %v", err)
	}
}
