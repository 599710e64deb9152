package omen

import "github.com/omendb/omen/internal/coordinator"

// Kind is the closed set of error kinds a caller can act on (§7).
type Kind = coordinator.Kind

const (
	ConfigInvalid     = coordinator.ConfigInvalid
	DimensionMismatch = coordinator.DimensionMismatch
	DuplicateId       = coordinator.DuplicateId
	NotFound          = coordinator.NotFound
	BufferFull        = coordinator.BufferFull
	CapacityExhausted = coordinator.CapacityExhausted
	CorruptedState    = coordinator.CorruptedState
	IOFailed          = coordinator.IOFailed
	Cancelled         = coordinator.Cancelled
)

// Error is the tagged error representation required by §6 ("Error
// representation: Tagged: { kind: enum, message: str }").
type Error = coordinator.Error

// Sentinel errors, one per Kind, for errors.Is(err, omen.ErrNotFound) style
// comparisons instead of a type assertion plus a Kind switch.
var (
	ErrConfigInvalid     = coordinator.ErrConfigInvalid
	ErrDimensionMismatch = coordinator.ErrDimensionMismatch
	ErrDuplicateId       = coordinator.ErrDuplicateId
	ErrNotFound          = coordinator.ErrNotFound
	ErrBufferFull        = coordinator.ErrBufferFull
	ErrCapacityExhausted = coordinator.ErrCapacityExhausted
	ErrCorruptedState    = coordinator.ErrCorruptedState
	ErrIOFailed          = coordinator.ErrIOFailed
	ErrCancelled         = coordinator.ErrCancelled
)
