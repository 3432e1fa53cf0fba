package resonance

import (
	"errors"

	"github.com/okian/kairos/internal/domain/timelayer"
)

// Sentinel kinds for scoring errors.
var (
	// ErrIncompleteInput is shared with timelayer so callers check one sentinel.
	ErrIncompleteInput   = timelayer.ErrIncompleteInput
	ErrInvalidDepthTable = errors.New("invalid depth score table")
)
