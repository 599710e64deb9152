package quant

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/omendb/omen/internal/kernel"
)

// scalarQuantizer implements Scalar8: a per-vector 8-bit linear quantizer.
// Unlike a per-dimension scheme, scale and offset are derived from each
// vector's own min/max, so training is a no-op beyond recording dimension.
type scalarQuantizer struct {
	dimension int
	trained   bool
}

// NewScalar8 returns a Scalar8 quantizer for the given dimension.
func NewScalar8(dimension int) Quantizer {
	return &scalarQuantizer{dimension: dimension}
}

func (q *scalarQuantizer) Fit(ctx context.Context, samples [][]float32, rng *rand.Rand) error {
	if len(samples) > 0 {
		q.dimension = len(samples[0])
	}
	q.trained = true
	return nil
}

func (q *scalarQuantizer) Trained() bool { return q.trained }
func (q *scalarQuantizer) CodeSize() int { return q.dimension + 8 } // codes + scale(4) + offset(4)

// scalar8Params returns per-vector scale/offset per §4.B: scale=(max-min)/255,
// offset=min. A constant vector degenerates to scale=1, all codes zero.
func scalar8Params(vec []float32) (scale, offset float32) {
	min, max := vec[0], vec[0]
	for _, v := range vec[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		return 1, min
	}
	return (max - min) / 255, min
}

func (q *scalarQuantizer) Encode(vec []float32) ([]byte, error) {
	if len(vec) != q.dimension {
		return nil, fmt.Errorf("quant: scalar8 expected dimension %d, got %d", q.dimension, len(vec))
	}
	scale, offset := scalar8Params(vec)
	out := make([]byte, q.CodeSize())
	putFloat32(out[0:4], scale)
	putFloat32(out[4:8], offset)
	codes := out[8:]
	if allEqual(vec) {
		// degenerate constant vector: codes stay zero.
		return out, nil
	}
	for i, v := range vec {
		norm := (v - offset) / scale
		code := int32(norm + 0.5)
		if code < 0 {
			code = 0
		} else if code > 255 {
			code = 255
		}
		codes[i] = byte(code)
	}
	return out, nil
}

func allEqual(vec []float32) bool {
	for _, v := range vec[1:] {
		if v != vec[0] {
			return false
		}
	}
	return true
}

func (q *scalarQuantizer) Decode(code []byte) ([]float32, error) {
	if len(code) != q.CodeSize() {
		return nil, fmt.Errorf("quant: scalar8 code size mismatch: got %d want %d", len(code), q.CodeSize())
	}
	scale := getFloat32(code[0:4])
	offset := getFloat32(code[4:8])
	codes := code[8:]
	vec := make([]float32, q.dimension)
	for i, c := range codes {
		vec[i] = offset + scale*float32(c)
	}
	return vec, nil
}

func (q *scalarQuantizer) BuildQueryTable(query []float32) (*Table, error) {
	return &Table{values: append([]float32(nil), query...)}, nil
}

// Distance approximates squared L2 between the encoded vector and the query that
// produced table, scaling the code-space difference by the code's own scale
// (§4.B: "multiplied by scale_a*scale_b"; here scale_b is implicitly 1 since
// the query side is unquantized).
func (q *scalarQuantizer) Distance(code []byte, table *Table) (float32, error) {
	if len(code) != q.CodeSize() {
		return 0, fmt.Errorf("quant: scalar8 code size mismatch")
	}
	scale := getFloat32(code[0:4])
	offset := getFloat32(code[4:8])
	return kernel.L2SqScalar8(table.values, code[8:], scale, offset), nil
}

func putFloat32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func getFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}
