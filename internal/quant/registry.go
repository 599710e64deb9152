package quant

import "fmt"

// New builds the quantizer named by cfg.Type for vectors of the given
// dimension. This replaces the teacher's runtime factory-registry dispatch:
// the three variants are a closed, statically-known set (§9 "tagged variant
// rather than virtual dispatch in the hot path"), so construction is a direct
// switch instead of an interface-typed plugin registry.
func New(dimension int, cfg *Config) (Quantizer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("quant: config cannot be nil")
	}
	if err := cfg.Validate(dimension); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case None:
		return nil, nil
	case Scalar8:
		return NewScalar8(dimension), nil
	case Binary1:
		return NewBinary1(dimension), nil
	case PQ:
		return NewProduct(dimension, cfg)
	default:
		return nil, fmt.Errorf("quant: unsupported type %v", cfg.Type)
	}
}
