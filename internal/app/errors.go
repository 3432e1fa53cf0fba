package service

import "errors"

// Service errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrUnknownSubject   = errors.New("unknown subject")
	ErrUnknownEngine    = errors.New("unknown engine kind")
	ErrRebuildCancelled = errors.New("rebuild cancelled")
)
