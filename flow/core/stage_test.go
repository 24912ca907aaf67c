package core

import (
	"errors"
	"sync"
	"testing"
)

func TestStageLifecycle(t *testing.T) {
	s := NewStage("source")
	if s.State() != StateIdle {
		t.Fatalf("new stage state = %v, want idle", s.State())
	}

	var seen []Transition
	s.Observe(func(tr Transition) { seen = append(seen, tr) })

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %v, want completed", s.State())
	}

	if len(seen) != 2 {
		t.Fatalf("observed %d transitions, want 2", len(seen))
	}
	if seen[0].From != StateIdle || seen[0].To != StateActive {
		t.Errorf("first transition = %v -> %v", seen[0].From, seen[0].To)
	}
	if seen[1].To != StateCompleted || seen[1].Stage != "source" {
		t.Errorf("second transition = %+v", seen[1])
	}
}

func TestStageTerminalStatesAreFinal(t *testing.T) {
	tests := []struct {
		name   string
		finish func(*Stage) error
		then   func(*Stage) error
	}{
		{name: "complete then fail", finish: (*Stage).Complete, then: func(s *Stage) error { return s.Fail(errors.New("late")) }},
		{name: "fail then complete", finish: func(s *Stage) error { return s.Fail(errors.New("boom")) }, then: (*Stage).Complete},
		{name: "fail twice", finish: func(s *Stage) error { return s.Fail(errors.New("a")) }, then: func(s *Stage) error { return s.Fail(errors.New("b")) }},
		{name: "restart after completion", finish: (*Stage).Complete, then: (*Stage).Start},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStage("x")
			if err := s.Start(); err != nil {
				t.Fatal(err)
			}
			if err := tt.finish(s); err != nil {
				t.Fatal(err)
			}
			before, beforeErr := s.State(), s.Err()
			if err := tt.then(s); !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("second terminal transition error = %v, want ErrIllegalTransition", err)
			}
			if s.State() != before || s.Err() != beforeErr {
				t.Errorf("terminal state changed to %v (%v)", s.State(), s.Err())
			}
		})
	}
}

func TestStageIdleCanBeCancelled(t *testing.T) {
	s := NewStage("sink")
	if err := s.Fail(nil); err != nil {
		t.Fatalf("Fail from idle: %v", err)
	}
	if s.State() != StateErrored {
		t.Errorf("state = %v, want errored", s.State())
	}
	if !IsCancellation(s.Err()) {
		t.Errorf("Err() = %v, want a cancellation", s.Err())
	}
	if err := s.Complete(); err == nil {
		t.Error("idle -> completed must be rejected")
	}
}

func TestStageExactlyOneTerminalUnderRace(t *testing.T) {
	s := NewStage("racy")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	var terminals int
	var mu sync.Mutex
	s.Observe(func(tr Transition) {
		if tr.To.Terminal() {
			mu.Lock()
			terminals++
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = s.Complete() }()
		go func() { defer wg.Done(); _ = s.Fail(errors.New("x")) }()
	}
	wg.Wait()

	if terminals != 1 {
		t.Errorf("observed %d terminal transitions, want exactly 1", terminals)
	}
}

func TestStageCount(t *testing.T) {
	s := NewStage("count")
	s.Count(2)
	s.Count(3)
	if s.Chunks() != 5 {
		t.Errorf("Chunks() = %d, want 5", s.Chunks())
	}
}
