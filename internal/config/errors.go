package config

import "errors"

var (
	// ErrInvalidConfig reports values that fail Validate.
	ErrInvalidConfig = errors.New("invalid rollcall config")
	// ErrLoadConfig reports an unreadable config file or environment.
	ErrLoadConfig = errors.New("load rollcall config")
)
