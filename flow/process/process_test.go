package process

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/core"
)

func TestRunCollectsOutput(t *testing.T) {
	result, err := Run(context.Background(), Command{Name: "echo", Args: []string{"hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(result.Stdout))
	assert.Equal(t, 0, result.ExitCode)
	assert.True(t, result.Success())
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestRunStdinAndEnv(t *testing.T) {
	result, err := Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", `printf '%s:' "$CHUNKFLOW_GREETING"; cat`},
		Env:   []string{"CHUNKFLOW_GREETING=hi"},
		Stdin: strings.NewReader("there"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hi:there", string(result.Stdout))
}

func TestRunNonZeroExit(t *testing.T) {
	result, err := Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo oops >&2; exit 42"}})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 42, result.ExitCode)
	assert.Equal(t, core.KindResource, core.KindOf(err))
	assert.Contains(t, err.Error(), "exit code 42")
	assert.Contains(t, errors.GetAllDetails(err), "oops")
}

func TestRunMissingName(t *testing.T) {
	_, err := Run(context.Background(), Command{})
	require.ErrorIs(t, err, ErrNoCommand)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
}

func TestRunMissingBinary(t *testing.T) {
	result, err := Run(context.Background(), Command{Name: "chunkflow-no-such-binary"})
	require.Error(t, err)
	assert.Equal(t, -1, result.ExitCode)
	assert.Equal(t, core.KindResource, core.KindOf(err))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, Command{Name: "sleep", Args: []string{"10"}, GracePeriod: time.Second})
	require.Error(t, err)
	assert.True(t, core.IsCancellation(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLines(t *testing.T) {
	lines, err := flow.Slice(context.Background(), Lines(Command{Name: "printf", Args: []string{`a\nb\nc\n`}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestChunksFromStdin(t *testing.T) {
	input := strings.Repeat("chunkflow ", 100)
	chunks, err := flow.Slice(context.Background(), Chunks(Command{Name: "cat", Stdin: strings.NewReader(input)}, 64))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 64)
	}
	assert.Equal(t, input, string(bytes.Join(chunks, nil)))
}

func TestChunksExitErrorAfterOutput(t *testing.T) {
	results := flow.Collect(context.Background(), Chunks(Command{Name: "sh", Args: []string{"-c", "echo A; echo broken >&2; exit 3"}}, 0))

	require.Len(t, results, 2)
	assert.Equal(t, "A\n", string(results[0].Value()))
	require.True(t, results[1].IsError())
	assert.Equal(t, core.KindResource, core.KindOf(results[1].Error()))
	assert.Contains(t, errors.GetAllDetails(results[1].Error()), "broken")
}

func TestStreamIsReplayable(t *testing.T) {
	stream := Lines(Command{Name: "echo", Args: []string{"again"}})
	for range 2 {
		lines, err := flow.Slice(context.Background(), stream)
		require.NoError(t, err)
		assert.Equal(t, []string{"again"}, lines)
	}
}

func TestCancelKillsProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewLineSource(Command{Name: "sh", Args: []string{"-c", "echo ready; sleep 30"}, GracePeriod: time.Second})
	line, err := src.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", line)

	cancel()
	start := time.Now()
	_, err = src.Pull(ctx)
	assert.True(t, core.IsCancellation(err))
	require.NoError(t, src.Close())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotNil(t, src.c.ProcessState)
}

func TestCloseBeforeEndKillsProcess(t *testing.T) {
	src := NewChunkSource(Command{Name: "sh", Args: []string{"-c", "echo first; sleep 30"}}, 0)
	_, err := src.Pull(context.Background())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, src.Close())
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = src.Pull(context.Background())
	assert.Error(t, err)
}

func TestPipe(t *testing.T) {
	ctx := context.Background()
	in := flow.FromSlice([][]byte{[]byte("a"), []byte("b"), []byte("c")})

	got, err := flow.Slice(ctx, flow.Apply(ctx, in, Pipe(Command{Name: "tr", Args: []string{"a-z", "A-Z"}}, 0)))
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(bytes.Join(got, nil)))
}

func TestPipeForwardsUpstreamError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	in := flow.Concat(flow.FromSlice([][]byte{[]byte("a")}), flow.FromError[[]byte](boom))

	results := flow.Collect(ctx, flow.Apply(ctx, in, Pipe(Command{Name: "cat"}, 0)))
	require.NotEmpty(t, results)
	last := results[len(results)-1]
	require.True(t, last.IsError())
	assert.ErrorIs(t, last.Error(), boom)
	for _, r := range results[:len(results)-1] {
		assert.Equal(t, "a", string(r.Value()))
	}
}

func TestPipeExitError(t *testing.T) {
	ctx := context.Background()
	in := flow.FromSlice([][]byte{[]byte("x")})

	_, err := flow.Slice(ctx, flow.Apply(ctx, in, Pipe(Command{Name: "sh", Args: []string{"-c", "cat >/dev/null; exit 5"}}, 0)))
	require.Error(t, err)
	assert.Equal(t, core.KindResource, core.KindOf(err))
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}
