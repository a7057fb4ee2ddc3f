package model

import (
	"errors"
	"fmt"
)

// Sentinel kinds shared by the capture, matching and recognition layers.
var (
	// ErrNoFaceDetected means the frame held no usable face. Callers may retry.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrMultipleFaces is reported where exactly one face is required.
	// It matches ErrNoFaceDetected under errors.Is.
	ErrMultipleFaces = fmt.Errorf("multiple faces detected: %w", ErrNoFaceDetected)
	// ErrInvalidDescriptor flags a malformed vector or a length mismatch.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)
