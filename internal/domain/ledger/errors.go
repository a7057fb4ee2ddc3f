package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrInvalidMark = errors.New("invalid attendance mark")
)
