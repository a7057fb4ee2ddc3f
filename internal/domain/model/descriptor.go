// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
)

// Descriptor is a fixed-length face signature produced by the embedding model.
// All descriptors in one deployment share the same length.
type Descriptor []float64

// Len returns the number of components.
func (d Descriptor) Len() int { return len(d) }

// Clone returns an independent copy of d.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Validate reports ErrInvalidDescriptor for empty vectors or non-finite components.
func (d Descriptor) Validate() error {
	if len(d) == 0 {
		return fmt.Errorf("%w: empty descriptor", ErrInvalidDescriptor)
	}
	for i, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrInvalidDescriptor, i)
		}
	}
	return nil
}

// Mean returns the coordinate-wise arithmetic mean of samples.
// Every sample must be valid and share the same length.
func Mean(samples []Descriptor) (Descriptor, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrInvalidDescriptor)
	}
	dim := samples[0].Len()
	sum := make(Descriptor, dim)
	for i, s := range samples {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if s.Len() != dim {
			return nil, fmt.Errorf("%w: sample %d has length %d, want %d", ErrInvalidDescriptor, i, s.Len(), dim)
		}
		for j, v := range s {
			sum[j] += v
		}
	}
	n := float64(len(samples))
	for j := range sum {
		sum[j] /= n
	}
	return sum, nil
}

// Entry is one gallery row as seen by the matcher.
type Entry struct {
	IdentityID int64
	Descriptor Descriptor
}
