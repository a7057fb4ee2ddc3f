package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrSessionNotFound = errors.New("enrollment session not found")
	ErrBackpressure    = errors.New("frame queue full")
)
