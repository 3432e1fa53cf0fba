package timelayer

import "errors"

// Sentinel kinds for decomposition errors.
var (
	ErrIncompleteInput  = errors.New("incomplete input")
	ErrInvalidHierarchy = errors.New("invalid layer hierarchy")
)
