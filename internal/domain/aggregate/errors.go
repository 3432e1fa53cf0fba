package aggregate

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrInvalidPolicy = errors.New("invalid aggregation policy")
	ErrForeignScore  = errors.New("pair score does not belong to subject")
)
