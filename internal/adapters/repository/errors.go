package repository

import "errors"

// Sentinel kinds for catalog errors.
var (
	ErrNotFound     = errors.New("event not found")
	ErrInvalidEvent = errors.New("invalid event document")
	ErrInvalidDelta = errors.New("invalid delta")
)
