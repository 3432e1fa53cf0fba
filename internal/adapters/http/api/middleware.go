package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

const requestIDHeader = "X-Request-ID"

// instrument tags the request with an id, records request metrics under
// endpoint and classifies error responses.
func instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	log := logger.Get().Named("http")
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		took := time.Since(start)
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(took.Microseconds())/1000)

		if rec.status >= http.StatusBadRequest {
			kind, severity := errorClass(rec.status)
			metrics.RecordErrorByComponent("http_"+endpoint, kind)
			metrics.RecordErrorByType(kind, severity)
		}
		log.Debug(r.Context(), "request",
			logger.String("id", id),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("took", took),
		)
	}
}

// errorClass maps an error status to a metric type and severity.
func errorClass(status int) (kind, severity string) {
	switch {
	case status == http.StatusServiceUnavailable:
		return "unavailable", "high"
	case status >= http.StatusInternalServerError:
		return "server_error", "high"
	case status == http.StatusNotFound:
		return "not_found", "medium"
	case status == http.StatusMethodNotAllowed:
		return "method_not_allowed", "low"
	default:
		return "client_error", "medium"
	}
}

// statusRecorder remembers the status a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
