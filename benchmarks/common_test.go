// Package benchmarks compares chunkflow's stream stages against popular Go
// stream and slice processing libraries on chunk-shaped workloads.
package benchmarks

import (
	"bytes"
	"context"
	"crypto/sha256"
	"strconv"
)

// Input sizes, in chunks.
const (
	SmallSize  = 100
	MediumSize = 1_000
	LargeSize  = 10_000
)

var ctx = context.Background()

// generateChunks creates n small text chunks.
func generateChunks(n int) [][]byte {
	data := make([][]byte, n)
	for i := range data {
		data[i] = []byte("chunk-" + strconv.Itoa(i))
	}
	return data
}

func upper(chunk []byte) []byte {
	return bytes.ToUpper(chunk)
}

// upperWithErr is upper in the signature chunkflow and rill map with.
func upperWithErr(chunk []byte) ([]byte, error) {
	return upper(chunk), nil
}

// digest stands in for an expensive per-chunk conversion.
func digest(chunk []byte) []byte {
	sum := chunk
	for range 64 {
		s := sha256.Sum256(sum)
		sum = s[:]
	}
	return sum
}

func evenTail(chunk []byte) bool {
	return len(chunk) > 0 && chunk[len(chunk)-1]%2 == 0
}
