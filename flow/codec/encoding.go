package codec

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// HexEncode renders byte chunks as lower-case hex strings.
func HexEncode() core.Converter[[]byte, string] {
	return core.Convert(func(_ context.Context, b []byte) (string, bool, error) {
		return hex.EncodeToString(b), true, nil
	})
}

// HexDecode reverses HexEncode.
func HexDecode() core.Converter[string, []byte] {
	return core.Convert(func(_ context.Context, s string) ([]byte, bool, error) {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, false, core.WithKind(errors.Wrap(err, "decode hex chunk"), core.KindInvalidInput)
		}
		return b, true, nil
	})
}

// Base64Encode renders byte chunks as standard base64.
func Base64Encode() core.Converter[[]byte, string] {
	return core.Convert(func(_ context.Context, b []byte) (string, bool, error) {
		return base64.StdEncoding.EncodeToString(b), true, nil
	})
}

// Base64Decode reverses Base64Encode.
func Base64Decode() core.Converter[string, []byte] {
	return core.Convert(func(_ context.Context, s string) ([]byte, bool, error) {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, false, core.WithKind(errors.Wrap(err, "decode base64 chunk"), core.KindInvalidInput)
		}
		return b, true, nil
	})
}

// BufferJSON is the JSON shape of a byte chunk: {"type":"Buffer","data":[...]}.
type BufferJSON struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// JSONBytes encodes each byte chunk as a BufferJSON document.
func JSONBytes() core.Converter[[]byte, []byte] {
	return core.Convert(func(_ context.Context, b []byte) ([]byte, bool, error) {
		doc := BufferJSON{Type: "Buffer", Data: make([]int, len(b))}
		for i, c := range b {
			doc.Data[i] = int(c)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, false, errors.Wrap(err, "encode buffer json")
		}
		return out, true, nil
	})
}

// FromJSONBytes decodes BufferJSON documents back into byte chunks.
func FromJSONBytes() core.Converter[[]byte, []byte] {
	return core.Convert(func(_ context.Context, raw []byte) ([]byte, bool, error) {
		var doc BufferJSON
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, false, core.WithKind(errors.Wrap(err, "decode buffer json"), core.KindInvalidInput)
		}
		if doc.Type != "Buffer" {
			return nil, false, core.WithKind(errors.Newf("unexpected type %q", doc.Type), core.KindInvalidInput)
		}
		out := make([]byte, len(doc.Data))
		for i, v := range doc.Data {
			if v < 0 || v > 255 {
				return nil, false, core.WithKind(errors.Newf("byte %d out of range: %d", i, v), core.KindInvalidInput)
			}
			out[i] = byte(v)
		}
		return out, true, nil
	})
}
