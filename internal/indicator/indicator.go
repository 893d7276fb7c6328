// Package indicator provides streaming technical indicator kernels and the
// closed registry of indicator kinds.
//
// Kernels consume one float64 input per Update and expose the current value.
// They hold no reference to bars or series; the dataset package binds them to
// a series and handles recomputation.
package indicator

import "math"

// Kernel is the interface for single-input streaming indicators.
type Kernel interface {
	// Update feeds the next input value.
	Update(v float64)

	// Value returns the current value, or NaN while not Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears all state for reuse.
	Reset()
}

// Unavailable is the kernel value before the look-back has filled.
var Unavailable = math.NaN()
