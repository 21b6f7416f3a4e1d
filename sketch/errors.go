package sketch

import (
	"errors"
	"fmt"
)

var (
	// ErrCannotUpsample is returned when a downsample call asks for a finer
	// resolution than the sketch already has. Downsampling only ever discards.
	ErrCannotUpsample = errors.New("sketch: cannot downsample to a finer resolution")

	// ErrNoContainment is returned when containment is requested for a num
	// sketch. Containment is only meaningful for the deterministic modulo
	// filter of scaled sketches.
	ErrNoContainment = errors.New("sketch: containment is not defined for num sketches")

	// ErrNoScaled is returned when an operation requires a scaled sketch but
	// got a fixed-size num sketch.
	ErrNoScaled = errors.New("sketch: operation requires a scaled sketch")
)

// ErrIncompatible indicates that two sketches (or a sketch and a database)
// cannot be compared or combined because a parameter differs.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrIncompatible struct {
	Param string // which parameter differs: "ksize", "molecule", "seed", "mode"
	A, B  string // the two conflicting values, rendered
	cause error
}

func (e *ErrIncompatible) Error() string {
	return fmt.Sprintf("incompatible sketches: %s mismatch (%s vs %s)", e.Param, e.A, e.B)
}

func (e *ErrIncompatible) Unwrap() error { return e.cause }
