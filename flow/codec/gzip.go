package codec

import (
	"bytes"
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// Compression levels accepted by Gzip.
const (
	DefaultCompression = gzip.DefaultCompression
	BestSpeed          = gzip.BestSpeed
	BestCompression    = gzip.BestCompression
)

// readSize bounds the chunks emitted by Gunzip.
const readSize = 32 * 1024

// Gzip compresses a stream of byte chunks into one gzip member. Output chunks
// do not line up with input chunks: nothing may be emitted until the encoder
// flushes, and the trailer follows the end of the input.
func Gzip(level int) core.Transmitter[[]byte, []byte] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[[]byte]) <-chan core.Result[[]byte] {
		out := make(chan core.Result[[]byte])
		go func() {
			defer close(out)

			var buf bytes.Buffer
			zw, err := gzip.NewWriterLevel(&buf, level)
			if err != nil {
				core.Send(ctx, out, core.Err[[]byte](core.WithKind(err, core.KindInvalidInput)))
				return
			}
			flush := func() bool {
				if buf.Len() == 0 {
					return true
				}
				chunk := bytes.Clone(buf.Bytes())
				buf.Reset()
				return core.Send(ctx, out, core.Ok(chunk))
			}

			for res := range in {
				switch {
				case res.IsError():
					core.Send(ctx, out, res)
					return
				case res.IsValue():
					if _, err := zw.Write(res.Value()); err != nil {
						core.Send(ctx, out, core.Err[[]byte](errors.Wrap(err, "gzip write")))
						return
					}
					if !flush() {
						return
					}
				}
			}
			if ctx.Err() != nil {
				return
			}
			if err := zw.Close(); err != nil {
				core.Send(ctx, out, core.Err[[]byte](errors.Wrap(err, "gzip close")))
				return
			}
			flush()
		}()
		return out
	})
}

var errUpstream = errors.New("upstream failed")

// Gunzip decompresses a gzip stream split across byte chunks. An empty input
// yields an empty output.
func Gunzip() core.Transmitter[[]byte, []byte] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[[]byte]) <-chan core.Result[[]byte] {
		out := make(chan core.Result[[]byte])
		go func() {
			defer close(out)

			pr, pw := io.Pipe()
			defer pr.Close()

			upstream := make(chan error, 1)
			go func() {
				var failed error
				defer func() { upstream <- failed }()
				for res := range in {
					switch {
					case res.IsError():
						failed = res.Error()
						pw.CloseWithError(errUpstream)
						return
					case res.IsValue():
						if _, err := pw.Write(res.Value()); err != nil {
							return
						}
					}
				}
				pw.Close()
			}()

			report := func(err error) {
				if errors.Is(err, errUpstream) {
					pr.Close()
					err = <-upstream
				}
				core.Send(ctx, out, core.Err[[]byte](err))
			}

			zr, err := gzip.NewReader(pr)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				report(core.WithKind(errors.Wrap(err, "gunzip"), core.KindInvalidInput))
				return
			}
			defer zr.Close()

			for {
				buf := make([]byte, readSize)
				n, err := zr.Read(buf)
				if n > 0 && !core.Send(ctx, out, core.Ok(buf[:n])) {
					return
				}
				if errors.Is(err, io.EOF) {
					return
				}
				if err != nil {
					if !errors.Is(err, errUpstream) {
						err = core.WithKind(errors.Wrap(err, "gunzip"), core.KindInvalidInput)
					}
					report(err)
					return
				}
			}
		}()
		return out
	})
}
