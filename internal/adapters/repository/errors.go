package repository

import "errors"

// Sentinel kinds for gallery errors.
var (
	ErrNotFound  = errors.New("identity not found")
	ErrInvalidID = errors.New("invalid identity id")
)
