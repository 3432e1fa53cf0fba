package composite

import "errors"

var (
	ErrMalformedWeightVector = errors.New("malformed weight vector")
	ErrMissingSubscore       = errors.New("missing subscore")
	ErrSubscoreOutOfRange    = errors.New("subscore out of range")
	ErrInvalidBands          = errors.New("invalid bands")
	ErrVersionExists         = errors.New("weight version already exists")
	ErrEmptyVersion          = errors.New("weight version is empty")
	ErrVersionNotFound       = errors.New("weight version not found")
)
