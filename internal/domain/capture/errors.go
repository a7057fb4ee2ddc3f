package capture

import "errors"

// Sentinel kinds for enrollment errors.
var (
	ErrSessionIncomplete   = errors.New("enrollment session incomplete")
	ErrSessionClosed       = errors.New("enrollment session closed")
	ErrInconsistentSamples = errors.New("enrollment samples inconsistent")
	ErrNoPoses             = errors.New("at least one pose is required")
)
