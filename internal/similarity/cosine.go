// Package similarity scores pairs of sparse feature vectors.
package similarity

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput is returned for vectors the score is undefined for
	ErrInvalidInput = errors.New("invalid input")

	// ErrZeroMagnitude is returned when either vector has no length.
	// It wraps ErrInvalidInput.
	ErrZeroMagnitude = fmt.Errorf("%w: zero-magnitude vector", ErrInvalidInput)
)

// Vector is a sparse vector: feature key to weight. A missing key has weight 0;
// an explicit 0 is kept and contributes nothing.
type Vector map[string]float64

// Func scores two vectors, higher meaning more similar
type Func func(a, b Vector) (float64, error)

// Cosine returns dot(a, b) / (|a| * |b|).
// Vectors with zero magnitude are rejected with ErrZeroMagnitude rather than
// producing NaN. The result is clamped to [-1, 1] to absorb rounding.
func Cosine(a, b Vector) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	magA, magB := Magnitude(a), Magnitude(b)
	if magA == 0 || magB == 0 {
		return 0, ErrZeroMagnitude
	}

	score := Dot(a, b) / (magA * magB)
	if math.IsNaN(score) {
		// weights large enough to overflow the norms
		return 0, fmt.Errorf("%w: similarity overflowed", ErrInvalidInput)
	}
	return math.Max(-1, math.Min(1, score)), nil
}

// Dot sums a[k]*b[k] over the keys present in both vectors
func Dot(a, b Vector) float64 {
	// iterate the smaller side; keys missing from the other contribute 0
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for k, wa := range a {
		if wb, ok := b[k]; ok {
			sum += wa * wb
		}
	}
	return sum
}

// Magnitude returns the Euclidean norm over all of v's keys
func Magnitude(v Vector) float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Validate rejects NaN and infinite weights
func (v Vector) Validate() error {
	for k, w := range v {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: feature %q has weight %v", ErrInvalidInput, k, w)
		}
	}
	return nil
}

// IsZero reports whether v has zero magnitude
func (v Vector) IsZero() bool {
	for _, w := range v {
		if w != 0 {
			return false
		}
	}
	return true
}

// Clone returns a copy of v
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, w := range v {
		out[k] = w
	}
	return out
}
