package coordinator

import (
	"runtime"
	"time"

	"github.com/omendb/omen/internal/hnsw"
	"github.com/omendb/omen/internal/kernel"
	"github.com/omendb/omen/internal/quant"
)

// Config holds every open-time parameter of the host API's `open(config)`
// (§6), flattened into direct fields rather than the teacher's many
// functional options — the spec's host API is a plain config struct, and a
// closed set of open-time knobs has no need for the extensibility a
// functional-options API buys.
type Config struct {
	Dimension int
	Metric    kernel.Metric

	M              int
	Mmax0          int
	EfConstruction int
	EfSearch       int
	Seed           int64

	BufferCapacity int
	Quantization   quant.Config

	DrainBatch       int
	DrainInterval    time.Duration
	WorkerThreads    int
	SegmentThreshold int
	SegmentSize      int

	Path string
}

// DefaultConfig fills in every default named in §6.
func DefaultConfig(dimension int) Config {
	m := 16
	return Config{
		Dimension:        dimension,
		Metric:           kernel.Cosine,
		M:                m,
		Mmax0:            2 * m,
		EfConstruction:   200,
		EfSearch:         50,
		Seed:             0,
		BufferCapacity:   100000,
		Quantization:     quant.Config{Type: quant.None},
		DrainBatch:       1000,
		DrainInterval:    100 * time.Millisecond,
		WorkerThreads:    runtime.NumCPU(),
		SegmentThreshold: 10000,
		SegmentSize:      1000,
	}
}

// Validate checks the config per §7's ConfigInvalid cases.
func (c Config) Validate() error {
	if c.Dimension < 1 || c.Dimension > 65535 {
		return newError(ConfigInvalid, "dimension %d out of range [1,65535]", c.Dimension)
	}
	if c.M < 2 {
		return newError(ConfigInvalid, "M must be >= 2, got %d", c.M)
	}
	if c.BufferCapacity < 1024 {
		return newError(ConfigInvalid, "buffer_capacity must be >= 1024, got %d", c.BufferCapacity)
	}
	if err := (&c.Quantization).Validate(c.Dimension); err != nil {
		return newError(ConfigInvalid, "%v", err)
	}
	return nil
}

func (c Config) hnswConfig() hnsw.Config {
	return hnsw.Config{
		M:              c.M,
		Mmax0:          c.Mmax0,
		EfConstruction: c.EfConstruction,
		EfSearch:       c.EfSearch,
		Seed:           c.Seed,
		Alpha:          1.2,
		Metric:         c.Metric,
	}
}
