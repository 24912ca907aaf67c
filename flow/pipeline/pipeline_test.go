package pipeline_test

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/codec"
	"github.com/lguimbarda/chunkflow/flow/core"
	"github.com/lguimbarda/chunkflow/flow/pipeline"
	"github.com/lguimbarda/chunkflow/flow/sink"
)

// recorder is a sink that logs every call it receives.
type recorder struct {
	mu       sync.Mutex
	events   []string
	failOn   string
	writeErr error
	reason   error
}

func (r *recorder) Write(_ context.Context, chunk string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil && chunk == r.failOn {
		return r.writeErr
	}
	r.events = append(r.events, chunk)
	return nil
}

func (r *recorder) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "<close>")
	return nil
}

func (r *recorder) Abort(_ context.Context, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "<abort>")
	r.reason = err
	return nil
}

func (r *recorder) Reason() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func TestUppercaseConcat(t *testing.T) {
	out := sink.Concat()
	report, err := pipeline.From("source", flow.FromSlice([]string{"A", "B", "C"})).
		Through("upper", codec.Uppercase()).
		Into("sink", out).
		Run(context.Background())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "ABC" || out.Err() != nil {
		t.Errorf("sink got %q (%v), want ABC completed", out.String(), out.Err())
	}
	if report.State != core.StateCompleted {
		t.Errorf("report state = %v, want completed", report.State)
	}
	if report.Chunks != 3 {
		t.Errorf("report chunks = %d, want 3", report.Chunks)
	}
	if report.RunID == "" {
		t.Error("report has no run id")
	}
	for _, s := range report.Stages {
		if s.State != core.StateCompleted {
			t.Errorf("stage %s = %v, want completed", s.Name, s.State)
		}
	}
}

func TestNoDropsNoReordering(t *testing.T) {
	const n = 500
	input := make([]string, n)
	for i := range input {
		input[i] = strconv.Itoa(i) + ","
	}

	tests := []struct {
		name   string
		buffer int
	}{
		{name: "synchronous links", buffer: 0},
		{name: "default links", buffer: pipeline.DefaultBufferSize},
		{name: "wide links", buffer: 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := sink.Collect[string](0)
			_, err := pipeline.From("source", flow.FromSlice(input), pipeline.WithBufferSize(tt.buffer)).
				Through("lower", codec.Lowercase()).
				Through("upper", codec.Uppercase()).
				Into("sink", out).
				Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got := out.Items(); !slices.Equal(got, input) {
				t.Errorf("sink received %d chunks, order preserved: %v", len(got), slices.Equal(got, input))
			}
		})
	}
}

func TestSourceFailsAfterFirstChunk(t *testing.T) {
	boom := errors.New("source broke")
	rec := &recorder{}

	report, err := pipeline.From("source", flow.Concat(flow.Once("A"), flow.FromError[string](boom))).
		Through("upper", codec.Uppercase()).
		Into("sink", rec).
		Run(context.Background())

	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want source error", err)
	}
	var se *core.StageError
	if !errors.As(err, &se) || se.Stage != "source" {
		t.Errorf("error not attributed to source: %v", err)
	}
	if got := rec.Events(); !slices.Equal(got, []string{"A", "<abort>"}) {
		t.Errorf("sink events = %v, want [A <abort>]", got)
	}
	if !errors.Is(rec.Reason(), boom) {
		t.Errorf("sink aborted with %v, want source error", rec.Reason())
	}

	if report.State != core.StateErrored {
		t.Errorf("report state = %v, want errored", report.State)
	}
	src, _ := report.Stage("source")
	if src.State != core.StateErrored || !errors.Is(src.Err, boom) {
		t.Errorf("source = %v (%v)", src.State, src.Err)
	}
	for _, name := range []string{"upper", "sink"} {
		s, _ := report.Stage(name)
		if s.State != core.StateErrored || core.KindOf(s.Err) != core.KindPropagated {
			t.Errorf("%s = %v (%v), want errored with propagated kind", name, s.State, core.KindOf(s.Err))
		}
	}
}

func TestFailedRunNeverCompletesConcat(t *testing.T) {
	boom := errors.New("source broke")
	out := sink.Concat()

	_, err := pipeline.From("source", flow.Concat(flow.Once("a"), flow.FromError[string](boom))).
		Through("upper", codec.Uppercase()).
		Into("sink", out).
		Run(context.Background())

	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want source error", err)
	}
	<-out.Done()
	if !errors.Is(out.Err(), boom) {
		t.Errorf("concat finished with %v, want the source error", out.Err())
	}
	if out.String() != "A" {
		t.Errorf("partial content = %q, want A", out.String())
	}
}

func TestTransformErrorAtChunk(t *testing.T) {
	const k = 5
	input := make([]int, 20)
	for i := range input {
		input[i] = i + 1
	}
	failAt := flow.Convert(func(_ context.Context, n int) (int, bool, error) {
		if n == k {
			return 0, false, core.WithKind(errors.New("bad chunk"), core.KindInvalidInput)
		}
		return n, true, nil
	})

	out := sink.Collect[int](0)
	report, err := pipeline.From("source", flow.FromSlice(input)).
		Through("check", failAt).
		Into("sink", out).
		Run(context.Background())

	if err == nil {
		t.Fatal("expected an error")
	}
	if core.KindOf(err) != core.KindInvalidInput {
		t.Errorf("kind = %v, want invalid-input", core.KindOf(err))
	}
	if got := out.Items(); !slices.Equal(got, []int{1, 2, 3, 4}) {
		t.Errorf("sink got %v, want chunks before %d only", got, k)
	}
	for _, s := range report.Stages {
		if !s.State.Terminal() {
			t.Errorf("stage %s left %v", s.Name, s.State)
		}
	}
	if s, _ := report.Stage("check"); s.State != core.StateErrored {
		t.Errorf("check = %v, want errored", s.State)
	}
}

func TestTransformPanicIsInternal(t *testing.T) {
	explode := flow.Map(func(s string) (string, error) { panic("kaboom") })

	_, err := pipeline.From("source", flow.FromSlice([]string{"x"})).
		Through("explode", explode).
		Into("sink", sink.Discard[string]()).
		Run(context.Background())

	if core.KindOf(err) != core.KindInternal {
		t.Errorf("kind = %v (%v), want internal", core.KindOf(err), err)
	}
}

func TestSinkWriteError(t *testing.T) {
	full := errors.New("disk full")
	rec := &recorder{failOn: "B", writeErr: full}

	report, err := pipeline.From("source", flow.FromSlice([]string{"A", "B", "C"})).
		Into("sink", rec).
		Run(context.Background())

	if !errors.Is(err, full) {
		t.Fatalf("Run() = %v, want write error", err)
	}
	var se *core.StageError
	if !errors.As(err, &se) || se.Stage != "sink" {
		t.Errorf("error not attributed to sink: %v", err)
	}
	if got := rec.Events(); !slices.Equal(got, []string{"A", "<abort>"}) {
		t.Errorf("sink events = %v", got)
	}
	if !errors.Is(rec.Reason(), full) {
		t.Errorf("sink aborted with %v, want write error", rec.Reason())
	}
	if report.Chunks != 1 {
		t.Errorf("report chunks = %d, want 1", report.Chunks)
	}
}

func TestCancelBeforeRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	report, err := pipeline.From("source", flow.FromSlice([]string{"A", "B"})).
		Through("upper", codec.Uppercase()).
		Into("sink", rec).
		Run(ctx)

	if !core.IsCancellation(err) {
		t.Fatalf("Run() = %v, want cancellation", err)
	}
	if got := rec.Events(); !slices.Equal(got, []string{"<abort>"}) {
		t.Errorf("sink events = %v, want only abort", got)
	}
	if !core.IsCancellation(rec.Reason()) {
		t.Errorf("sink aborted with %v, want cancellation", rec.Reason())
	}
	if report.Chunks != 0 {
		t.Errorf("report chunks = %d, want 0", report.Chunks)
	}
	for _, s := range report.Stages {
		if s.State != core.StateErrored || !core.IsCancellation(s.Err) {
			t.Errorf("stage %s = %v (%v), want errored by cancellation", s.Name, s.State, s.Err)
		}
	}
}

func TestCancelMidRun(t *testing.T) {
	var n atomic.Int64
	endless := flow.Generate(func() (int64, bool, error) { return n.Add(1), true, nil })

	seen := make(chan struct{}, 1)
	var delivered atomic.Int64
	slow := sink.Func(func(context.Context, int64) error {
		if delivered.Add(1) == 3 {
			seen <- struct{}{}
		}
		return nil
	})

	exec := pipeline.From("source", endless).Into("sink", slow).Start(context.Background())
	select {
	case <-seen:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline never delivered")
	}
	exec.Cancel()

	report, err := exec.Wait()
	if !core.IsCancellation(err) {
		t.Fatalf("Wait() = %v, want cancellation", err)
	}
	if report.State != core.StateErrored {
		t.Errorf("report state = %v", report.State)
	}
	for _, s := range report.Stages {
		if s.State != core.StateErrored || !core.IsCancellation(s.Err) {
			t.Errorf("stage %s = %v (%v)", s.Name, s.State, s.Err)
		}
	}
	select {
	case <-exec.Done():
	default:
		t.Error("Done not closed after Wait")
	}
}

func TestParentDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := pipeline.From("source", flow.Generate(func() (int, bool, error) { return 1, true, nil })).
		Into("sink", sink.Discard[int]()).
		Run(ctx)
	if !core.IsCancellation(err) {
		t.Errorf("Run() = %v, want cancellation", err)
	}
}

func TestBackPressureThrottlesSource(t *testing.T) {
	out := sink.Collect[int](2)
	exec := pipeline.From("source", flow.Generate(func() (int, bool, error) { return 1, true, nil })).
		Into("sink", out).
		Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	src := exec.Stages()[0]
	if got := src.Chunks(); got > 10 {
		t.Errorf("source produced %d chunks against a full sink", got)
	}
	if out.Len() != 2 {
		t.Errorf("sink holds %d chunks, want its capacity 2", out.Len())
	}

	exec.Cancel()
	if _, err := exec.Wait(); !core.IsCancellation(err) {
		t.Errorf("Wait() = %v", err)
	}
}

func TestBackPressureResumes(t *testing.T) {
	const n = 100
	input := make([]int, n)
	for i := range input {
		input[i] = i
	}

	out := sink.Collect[int](3)
	var got []int
	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			got = append(got, out.Drain()...)
			select {
			case <-out.Done():
				got = append(got, out.Drain()...)
				return
			case <-stop:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()

	_, err := pipeline.From("source", flow.FromSlice(input)).Into("sink", out).Run(context.Background())
	if err != nil {
		close(stop)
		t.Fatal(err)
	}
	<-drained

	if !slices.Equal(got, input) {
		t.Errorf("drained %d chunks in order=%v, want %d", len(got), slices.Equal(got, input), n)
	}
}

func TestStageTransitionsObserved(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]core.StageState{}
	observe := pipeline.WithObserver(func(tr core.Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen[tr.Stage] = append(seen[tr.Stage], tr.To)
	})

	_, err := pipeline.From("source", flow.FromSlice([]string{"a"}), observe).
		Through("upper", codec.Uppercase()).
		Into("sink", sink.Concat()).
		Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []core.StageState{core.StateActive, core.StateCompleted}
	for _, name := range []string{"source", "upper", "sink"} {
		if !slices.Equal(seen[name], want) {
			t.Errorf("%s transitions = %v, want %v", name, seen[name], want)
		}
	}
}

type closingSource struct {
	items  []string
	closed atomic.Bool
}

func (s *closingSource) Pull(context.Context) (string, error) {
	if len(s.items) == 0 {
		return "", core.ErrEndOfStream
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item, nil
}

func (s *closingSource) Close() error {
	s.closed.Store(true)
	return nil
}

func TestSourceClosedBeforeTerminal(t *testing.T) {
	tests := []struct {
		name   string
		cancel bool
	}{
		{name: "completed"},
		{name: "cancelled", cancel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &closingSource{items: []string{"a", "b"}}
			var closedAtTerminal atomic.Bool
			observe := pipeline.WithObserver(func(tr core.Transition) {
				if tr.Stage == "source" && tr.To.Terminal() {
					closedAtTerminal.Store(src.closed.Load())
				}
			})

			ctx, cancel := context.WithCancel(context.Background())
			if tt.cancel {
				cancel()
			}
			defer cancel()

			_, _ = pipeline.FromSource[string]("source", src, observe).
				Into("sink", sink.Concat()).
				Run(ctx)

			if !closedAtTerminal.Load() {
				t.Error("source reached a terminal state before it was closed")
			}
		})
	}
}

func TestViaChangesType(t *testing.T) {
	out := sink.NewBuffer(0)
	p := pipeline.From("source", flow.FromSlice([]string{"ab", "cd"}))
	_, err := pipeline.Via(p, "bytes", codec.ToBytes()).
		Through("upper", codec.UppercaseBytes()).
		Into("sink", out).
		Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Bytes()) != "ABCD" {
		t.Errorf("got %q", out.Bytes())
	}
}

func TestRunnableIsReusable(t *testing.T) {
	r := pipeline.From("source", flow.FromSlice([]string{"x"})).Into("sink", sink.Discard[string]())

	first, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.RunID == second.RunID {
		t.Error("runs share a run id")
	}
	if got := r.Names(); !slices.Equal(got, []string{"source", "sink"}) {
		t.Errorf("Names() = %v", got)
	}
}
