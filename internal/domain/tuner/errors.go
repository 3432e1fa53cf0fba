package tuner

import "errors"

var (
	ErrNoExamples          = errors.New("no labeled examples")
	ErrInvalidGrid         = errors.New("invalid weight grid")
	ErrSearchSpaceTooLarge = errors.New("search space too large")
)
