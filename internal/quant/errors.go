package quant

import "fmt"

// Error reports a quantization failure tied to a specific stage, so callers
// can distinguish "not trained yet" from a genuine dimension mismatch without
// string-matching error text.
type Error struct {
	Stage   string // "fit", "encode", "decode", "distance"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("quant: %s: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("quant: %s: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }
