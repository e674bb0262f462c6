package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrCorruptIndex = errors.New("cache dependency index corrupted")
)
