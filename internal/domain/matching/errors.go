package matching

import "errors"

// Sentinel kinds for matching errors.
var (
	// ErrAmbiguousMatch means two or more identities tied at the minimum distance
	// below the threshold. The probe is treated as unrecognized.
	ErrAmbiguousMatch = errors.New("ambiguous match")

	ErrUnknownMetric    = errors.New("unknown distance metric")
	ErrInvalidThreshold = errors.New("invalid match threshold")
)
