package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/kairos/internal/adapters/repository"
	service "github.com/okian/kairos/internal/app"
	"github.com/okian/kairos/internal/domain/composite"
	"github.com/okian/kairos/internal/domain/timelayer"
	"github.com/okian/kairos/internal/domain/tuner"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")

	errInvalidLimit   = errors.New("limit must be a positive integer")
	errLimitExceeded  = errors.New("limit exceeds the configured maximum")
	errMissingSubject = errors.New("missing subject")
)

// badRequest wraps err as a client error for op.
func badRequest(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err)
}

// classify maps an upstream error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrUnknownEngine),
		errors.Is(err, timelayer.ErrIncompleteInput),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, composite.ErrMalformedWeightVector),
		errors.Is(err, composite.ErrMissingSubscore),
		errors.Is(err, composite.ErrSubscoreOutOfRange),
		errors.Is(err, tuner.ErrNoExamples):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrUnknownSubject), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrCircuitOpen), errors.Is(err, repository.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case errors.Is(err, service.ErrRebuildCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
