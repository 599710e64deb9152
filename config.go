package omen

import (
	"github.com/omendb/omen/internal/coordinator"
	"github.com/omendb/omen/internal/kernel"
	"github.com/omendb/omen/internal/quant"
)

// Metric selects the distance function used for both graph construction and
// search (§6 `open` "metric").
type Metric = kernel.Metric

const (
	L2     = kernel.L2
	Cosine = kernel.Cosine
	Dot    = kernel.Dot
)

// QuantType selects a compression strategy (§4.B); None stores vectors
// uncompressed.
type QuantType = quant.Type

const (
	NoQuantization = quant.None
	Scalar8        = quant.Scalar8
	Binary1        = quant.Binary1
	PQ             = quant.PQ
)

// Quantization configures QuantType; Subspaces and Centroids only apply to
// PQ (§4.B).
type Quantization = quant.Config

// Config holds every open-time parameter named in §6 `open(config)`.
type Config = coordinator.Config

// Result is one search hit: an external id and its distance to the query.
type Result = coordinator.Result

// Stats mirrors §6 `stats(handle)`.
type Stats = coordinator.Stats

// DefaultConfig fills in every default §6 names, for the given dimension
// (the one required field with no default).
func DefaultConfig(dimension int) Config {
	return coordinator.DefaultConfig(dimension)
}
