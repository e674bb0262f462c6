package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrQueueFull    = errors.New("delta queue is full")
	ErrQueueClosed  = errors.New("delta queue is closed")
	ErrInvalidDelta = errors.New("invalid delta")
)
