package io

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// WriterSink writes byte chunks to w through a buffer that is flushed on
// Close. Abort drops whatever is still buffered. It does not close w.
type WriterSink struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	commit  func() error
	discard func() error
	bytes   int64
	closed  bool
}

// NewWriterSink returns a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

// FileSink returns a sink that writes to a temporary file next to path and
// renames it over path on Close. An aborted sink removes the temporary file
// and leaves path untouched.
func FileSink(path string) (*WriterSink, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, core.WithKind(errors.Wrapf(err, "open %s", path), core.KindResource)
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, core.WithKind(errors.Wrapf(err, "open %s", path), core.KindResource)
	}
	tmp := f.Name()
	return &WriterSink{
		w:       bufio.NewWriter(f),
		closer:  f,
		commit:  func() error { return os.Rename(tmp, path) },
		discard: func() error { return os.Remove(tmp) },
	}, nil
}

// AppendSink returns a sink appending to the file at path. An abort drops
// unflushed bytes but cannot take back what was already appended.
func AppendSink(path string) (*WriterSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, core.WithKind(errors.Wrapf(err, "open %s", path), core.KindResource)
	}
	return &WriterSink{w: bufio.NewWriter(f), closer: f}, nil
}

func (s *WriterSink) Write(_ context.Context, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("write to closed sink")
	}
	n, err := s.w.Write(chunk)
	s.bytes += int64(n)
	if err != nil {
		return core.WithKind(errors.Wrap(err, "write"), core.KindResource)
	}
	return nil
}

// Close flushes buffered bytes and closes the underlying file, if any.
func (s *WriterSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	if err == nil && s.commit != nil {
		err = s.commit()
	}
	if err != nil {
		if s.discard != nil {
			s.discard()
		}
		return core.WithKind(errors.Wrap(err, "flush"), core.KindResource)
	}
	return nil
}

// Abort discards buffered bytes and releases the file without publishing it.
func (s *WriterSink) Abort(context.Context, error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.w.Reset(io.Discard)
	var err error
	if s.closer != nil {
		err = s.closer.Close()
	}
	if s.discard != nil {
		if derr := s.discard(); err == nil {
			err = derr
		}
	}
	if err != nil {
		return core.WithKind(errors.Wrap(err, "abort"), core.KindResource)
	}
	return nil
}

// Bytes returns how many bytes were accepted.
func (s *WriterSink) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// LineSink writes string chunks to w, one per line.
func LineSink(w io.Writer) core.Sink[string] {
	ws := NewWriterSink(w)
	return core.SinkFunc[string]{
		WriteFn: func(ctx context.Context, line string) error {
			return ws.Write(ctx, []byte(line+"\n"))
		},
		CloseFn: ws.Close,
		AbortFn: ws.Abort,
	}
}

// WriteLines creates a Transformer that writes each string to a file, one per line.
// The file is created if it doesn't exist, or truncated if it does.
// Chunks pass through unchanged after being written.
func WriteLines(path string) core.Transformer[string, string] {
	return WriteLinesWithOptions(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

// AppendLines creates a Transformer that appends each string to a file, one per line.
func AppendLines(path string) core.Transformer[string, string] {
	return WriteLinesWithOptions(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// WriteLinesWithOptions creates a Transformer that writes lines with custom file options.
// A write failure is reported in place of the chunk.
func WriteLinesWithOptions(path string, flag int, perm os.FileMode) core.Transformer[string, string] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[string]) <-chan core.Result[string] {
		out := make(chan core.Result[string], core.DefaultBufferSize)

		go func() {
			defer close(out)

			file, err := os.OpenFile(path, flag, perm)
			if err != nil {
				core.Send(ctx, out, core.Err[string](errors.Wrapf(err, "open %s", path)))
				return
			}
			defer file.Close()

			writer := bufio.NewWriter(file)
			defer writer.Flush()

			for res := range in {
				if ctx.Err() != nil {
					return
				}
				if res.IsValue() {
					if _, err := writer.WriteString(res.Value() + "\n"); err != nil {
						res = core.Err[string](core.WithKind(err, core.KindResource))
					}
				}
				if !core.Send(ctx, out, res) {
					return
				}
			}
		}()

		return out
	})
}
