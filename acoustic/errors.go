package acoustic

import "github.com/pkg/errors"

var (
	// ErrDimensionMismatch is a fatal configuration error: a feature vector or
	// density does not match the model dimensionality.
	ErrDimensionMismatch = errors.New("acoustic: feature dimension mismatch")
	// ErrCorruptModel reports a structurally invalid model.
	ErrCorruptModel = errors.New("acoustic: corrupt model")
)
