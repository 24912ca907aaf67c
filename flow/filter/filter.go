// Package filter drops or truncates chunks. Errors and sentinels always pass
// through unchanged, so filtering never hides a failure.
package filter

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Where passes through only the chunks matching predicate.
func Where[T any](predicate func(T) bool) core.Transmitter[T, T] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[T]) <-chan core.Result[T] {
		out := make(chan core.Result[T])
		go func() {
			defer close(out)
			for res := range in {
				if res.IsValue() && !predicate(res.Value()) {
					continue
				}
				if !core.Send(ctx, out, res) {
					return
				}
			}
		}()
		return out
	})
}

// Exclude drops the chunks matching predicate. It is the inverse of Where.
func Exclude[T any](predicate func(T) bool) core.Transmitter[T, T] {
	return Where(func(v T) bool { return !predicate(v) })
}

// Glob keeps the paths whose base name matches pattern. A malformed pattern
// fails the first chunk with an invalid-input error.
func Glob(pattern string) core.Converter[string, string] {
	return core.Convert(func(_ context.Context, path string) (string, bool, error) {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err != nil {
			return "", false, core.WithKind(errors.Wrapf(err, "pattern %q", pattern), core.KindInvalidInput)
		}
		return path, matched, nil
	})
}
