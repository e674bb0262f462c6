package query

import "errors"

// Sentinel kinds for query validation errors.
var (
	ErrInvalidQuery = errors.New("invalid query")
)
