package repository

import "errors"

// Sentinel errors for score persistence and leaderboard reads.
var (
	ErrNotFound     = errors.New("subject not ranked")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrInvalidPair  = errors.New("invalid pair key")

	// ErrStoreUnavailable means retries were exhausted for one call; callers defer the item.
	ErrStoreUnavailable = errors.New("score store unavailable")
	// ErrCircuitOpen means the store is failing as a whole; callers abort the batch.
	ErrCircuitOpen = errors.New("score store circuit open")
)
