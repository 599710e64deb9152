// Package quant implements the three vector compression strategies: Scalar8
// (per-vector linear quantization), Binary1 (per-vector sign quantization),
// and Product (subspace k-means). All three satisfy the same Quantizer
// contract so the graph and buffer can treat compression as a tagged variant
// rather than a virtual dispatch in the hot distance path.
package quant

import (
	"context"
	"fmt"
	"math/rand"
)

// Type identifies a quantization strategy.
type Type int

const (
	None Type = iota
	Scalar8
	Binary1
	PQ
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Scalar8:
		return "scalar8"
	case Binary1:
		return "binary1"
	case PQ:
		return "pq"
	default:
		return "unknown"
	}
}

// Config configures a quantizer. Subspaces/Centroids only apply to PQ.
type Config struct {
	Type       Type
	Subspaces  int // M_sub: number of PQ subspaces; dimension must divide evenly
	Centroids  int // K: centroids per subspace, defaults to 256
	Iterations int // Lloyd iterations; 20 when zero or negative
	Seed       int64
}

// Validate checks the configuration against the spec's closed constraint set.
func (c *Config) Validate(dimension int) error {
	switch c.Type {
	case None, Scalar8, Binary1:
		return nil
	case PQ:
		if c.Subspaces <= 0 {
			return fmt.Errorf("quant: pq subspaces must be positive, got %d", c.Subspaces)
		}
		if dimension%c.Subspaces != 0 {
			return fmt.Errorf("quant: dimension %d not divisible by subspaces %d", dimension, c.Subspaces)
		}
		return nil
	default:
		return fmt.Errorf("quant: unsupported type %v", c.Type)
	}
}

// DefaultConfig fills in the spec's defaults for a given type.
func DefaultConfig(t Type) *Config {
	switch t {
	case PQ:
		return &Config{Type: PQ, Subspaces: 8, Centroids: 256, Iterations: 20, Seed: 0}
	default:
		return &Config{Type: t}
	}
}

// Table is a precomputed asymmetric-distance lookup table built from a query
// vector, used by PQ's Distance path to avoid decoding codes back to floats.
type Table struct {
	subspaces  int
	centroids  int
	values     []float32 // subspaces * centroids, row-major by subspace; Scalar8 stores the raw query here
	queryWords []uint64  // Binary1's packed query bits
}

func (t *Table) lookup(subspace int, code byte) float32 {
	return t.values[subspace*t.centroids+int(code)]
}

// Quantizer is the shared contract for Scalar8, Binary1, and Product.
type Quantizer interface {
	// Fit trains quantizer parameters from a sample of vectors. No-op for
	// Scalar8 and Binary1 beyond recording the dimension; PQ runs k-means.
	Fit(ctx context.Context, samples [][]float32, rng *rand.Rand) error

	// Encode compresses a vector into its code representation.
	Encode(vec []float32) ([]byte, error)

	// Decode decompresses a code back into a (lossy) vector.
	Decode(code []byte) ([]float32, error)

	// BuildQueryTable precomputes whatever per-query state Distance needs.
	BuildQueryTable(query []float32) (*Table, error)

	// Distance returns the approximate distance from a code to the query
	// that produced table, without fully decoding the code.
	Distance(code []byte, table *Table) (float32, error)

	// CodeSize returns the encoded byte length for one vector.
	CodeSize() int

	// Trained reports whether Fit has completed successfully.
	Trained() bool
}

// Select implements the strategy-selection utility (§4.B): given dimension,
// count, and a memory budget in bytes, choose the cheapest quantization that
// fits, preferring no compression when the budget allows it.
func Select(dimension, count int, budgetBytes int64) Type {
	rawBytes := int64(dimension*4) * int64(count)
	if rawBytes <= budgetBytes {
		return None
	}
	scalarBytes := int64(dimension) * int64(count)
	if scalarBytes <= budgetBytes {
		return Scalar8
	}
	binaryBytes := int64((dimension+7)/8) * int64(count)
	if binaryBytes <= budgetBytes {
		return Binary1
	}
	return PQ
}
