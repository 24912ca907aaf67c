// Package codec holds the chunk transforms shipped with chunkflow: case
// conversion, compression, text encodings and key derivation.
package codec

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// ErrNotString is reported for a non-string chunk given to a string transform.
var ErrNotString = core.WithKind(errors.New("must be a string"), core.KindInvalidInput)

// Uppercase converts string chunks to upper case.
func Uppercase() core.Converter[string, string] {
	return core.Convert(func(_ context.Context, s string) (string, bool, error) {
		return strings.ToUpper(s), true, nil
	})
}

// Lowercase converts string chunks to lower case.
func Lowercase() core.Converter[string, string] {
	return core.Convert(func(_ context.Context, s string) (string, bool, error) {
		return strings.ToLower(s), true, nil
	})
}

// UppercaseStrict upper-cases chunks of unknown type, failing on anything
// that is not a string.
func UppercaseStrict() core.Converter[any, string] {
	return core.Convert(func(_ context.Context, v any) (string, bool, error) {
		s, ok := v.(string)
		if !ok {
			return "", false, errors.Wrapf(ErrNotString, "got %T", v)
		}
		return strings.ToUpper(s), true, nil
	})
}

// UppercaseBytes upper-cases UTF-8 byte chunks. The output never aliases the
// input.
func UppercaseBytes() core.Transmitter[[]byte, []byte] {
	return runeAligned(bytes.ToUpper)
}

// LowercaseBytes lower-cases UTF-8 byte chunks.
func LowercaseBytes() core.Transmitter[[]byte, []byte] {
	return runeAligned(bytes.ToLower)
}

// runeAligned applies fn to byte chunks cut on rune boundaries. The leading
// bytes of a rune split across chunks are held back and joined to the next
// chunk; a truncated rune left at the end of the input is emitted unchanged.
func runeAligned(fn func([]byte) []byte) core.Transmitter[[]byte, []byte] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[[]byte]) <-chan core.Result[[]byte] {
		out := make(chan core.Result[[]byte])
		go func() {
			defer close(out)

			var pending []byte
			for res := range in {
				if res.IsError() {
					core.Send(ctx, out, res)
					return
				}
				if !res.IsValue() {
					continue
				}
				chunk := res.Value()
				if len(pending) > 0 {
					chunk = append(pending, chunk...)
					pending = nil
				}
				cut := completeRunes(chunk)
				if cut < len(chunk) {
					pending = bytes.Clone(chunk[cut:])
				}
				if cut == 0 {
					continue
				}
				if !core.Send(ctx, out, core.Ok(fn(chunk[:cut]))) {
					return
				}
			}
			if ctx.Err() != nil || len(pending) == 0 {
				return
			}
			core.Send(ctx, out, core.Ok(pending))
		}()
		return out
	})
}

// completeRunes returns the length of b without a trailing incomplete rune.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

// ToString turns byte chunks into strings.
func ToString() core.Converter[[]byte, string] {
	return core.Convert(func(_ context.Context, b []byte) (string, bool, error) {
		return string(b), true, nil
	})
}

// ToBytes turns string chunks into byte slices.
func ToBytes() core.Converter[string, []byte] {
	return core.Convert(func(_ context.Context, s string) ([]byte, bool, error) {
		return []byte(s), true, nil
	})
}
