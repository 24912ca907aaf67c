package codec

import (
	"context"
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/scrypt"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// scrypt cost parameters.
const (
	ScryptN = 1 << 14
	ScryptR = 8
	ScryptP = 1
)

// DefaultKeyLen is the derived key length used when none is configured.
const DefaultKeyLen = 32

// DeriveKey derives a keyLen-byte scrypt key from each chunk.
// The derivation is abandoned between chunks once ctx is cancelled.
func DeriveKey(salt []byte, keyLen int) core.Converter[[]byte, []byte] {
	if keyLen <= 0 {
		keyLen = DefaultKeyLen
	}
	return core.Convert(func(ctx context.Context, chunk []byte) ([]byte, bool, error) {
		if err := ctx.Err(); err != nil {
			return nil, false, core.WithKind(err, core.KindCancelled)
		}
		key, err := scrypt.Key(chunk, salt, ScryptN, ScryptR, ScryptP, keyLen)
		if err != nil {
			return nil, false, errors.Wrap(err, "derive key")
		}
		return key, true, nil
	})
}

// DeriveKeyHex derives a key from each string chunk and emits it hex encoded.
func DeriveKeyHex(salt []byte, keyLen int) core.Converter[string, string] {
	derive := DeriveKey(salt, keyLen)
	return core.Convert(func(ctx context.Context, s string) (string, bool, error) {
		key, ok, err := derive(ctx, []byte(s))
		if err != nil || !ok {
			return "", ok, err
		}
		return hex.EncodeToString(key), true, nil
	})
}
