package quant

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/omendb/omen/internal/kernel"
)

// binaryQuantizer implements Binary1: one bit per dimension, packed into
// 64-bit words. Bit i is 1 iff dimension i exceeds the vector's own mean.
type binaryQuantizer struct {
	dimension int
	words     int
	trained   bool
}

// NewBinary1 returns a Binary1 quantizer for the given dimension.
func NewBinary1(dimension int) Quantizer {
	return &binaryQuantizer{dimension: dimension, words: (dimension + 63) / 64}
}

func (q *binaryQuantizer) Fit(ctx context.Context, samples [][]float32, rng *rand.Rand) error {
	if len(samples) > 0 {
		q.dimension = len(samples[0])
		q.words = (q.dimension + 63) / 64
	}
	q.trained = true
	return nil
}

func (q *binaryQuantizer) Trained() bool { return q.trained }
func (q *binaryQuantizer) CodeSize() int { return q.words * 8 }

func (q *binaryQuantizer) Encode(vec []float32) ([]byte, error) {
	if len(vec) != q.dimension {
		return nil, fmt.Errorf("quant: binary1 expected dimension %d, got %d", q.dimension, len(vec))
	}
	mean := meanOf(vec)
	packed := make([]uint64, q.words)
	constant := allEqual(vec)
	for i, v := range vec {
		var bit bool
		if constant {
			// Alternate bits so Hamming distance stays non-degenerate (§4.B).
			bit = i%2 == 0
		} else {
			bit = v > mean
		}
		if bit {
			packed[i/64] |= 1 << uint(i%64)
		}
	}
	out := make([]byte, q.CodeSize())
	for i, w := range packed {
		putUint64(out[i*8:], w)
	}
	return out, nil
}

func meanOf(vec []float32) float32 {
	var sum float32
	for _, v := range vec {
		sum += v
	}
	return sum / float32(len(vec))
}

func (q *binaryQuantizer) Decode(code []byte) ([]float32, error) {
	if len(code) != q.CodeSize() {
		return nil, fmt.Errorf("quant: binary1 code size mismatch")
	}
	vec := make([]float32, q.dimension)
	for i := range vec {
		word := getUint64(code[(i/64)*8:])
		if word&(1<<uint(i%64)) != 0 {
			vec[i] = 1
		} else {
			vec[i] = -1
		}
	}
	return vec, nil
}

// BuildQueryTable encodes the query once; Table.queryWords holds the packed
// bits so Distance never needs quantizer-side mutable state (queries run
// concurrently with no shared mutation, per the concurrency model).
func (q *binaryQuantizer) BuildQueryTable(query []float32) (*Table, error) {
	code, err := q.Encode(query)
	if err != nil {
		return nil, err
	}
	return &Table{queryWords: unpackWords(code)}, nil
}

func (q *binaryQuantizer) Distance(code []byte, table *Table) (float32, error) {
	if len(code) != q.CodeSize() {
		return 0, fmt.Errorf("quant: binary1 code size mismatch")
	}
	codeWords := unpackWords(code)
	return float32(kernel.HammingPacked(table.queryWords, codeWords)), nil
}

func unpackWords(b []byte) []uint64 {
	n := len(b) / 8
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = getUint64(b[i*8:])
	}
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
