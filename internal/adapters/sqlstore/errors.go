package sqlstore

import "errors"

// Sentinel kinds for journal errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrClosed            = errors.New("journal closed")
)
