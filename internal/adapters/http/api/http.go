// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	service "github.com/okian/kairos/internal/app"
	"github.com/okian/kairos/internal/domain/composite"
	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	SubjectDependencies
	JobDependencies
	LeaderboardDependencies
	AffinityDependencies
	WeightDependencies
	StatsProvider
}

// Server wires HTTP routes for the ops API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	subjectsHandler    *SubjectsHandler
	jobsHandler        *JobsHandler
	leaderboardHandler *LeaderboardHandler
	affinityHandler    *AffinityHandler
	weightsHandler     *WeightsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		subjectsHandler:    NewSubjectsHandler(deps),
		jobsHandler:        NewJobsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		affinityHandler:    NewAffinityHandler(deps),
		weightsHandler:     NewWeightsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", instrument("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("GET /stats", instrument("stats", s.statsHandler.HandleStats))
	mux.HandleFunc("POST /subjects", instrument("subjects", s.subjectsHandler.HandlePostSubjects))
	mux.HandleFunc("POST /jobs/score", instrument("jobs_score", s.jobsHandler.HandleScore))
	mux.HandleFunc("POST /jobs/rebuild", instrument("jobs_rebuild", s.jobsHandler.HandleRebuild))
	mux.HandleFunc("GET /leaderboard", instrument("leaderboard", s.leaderboardHandler.HandleGetLeaderboard))
	mux.HandleFunc("GET /affinity/{subject}", instrument("affinity", s.affinityHandler.HandleGetAffinity))
	mux.HandleFunc("GET /weights", instrument("weights", s.weightsHandler.HandleGetWeights))
}

// Compile-time check that the service satisfies the handler contracts.
var _ Dependencies = (*service.Service)(nil)

// aggregateResponse is the read shape of one subject aggregate.
type aggregateResponse struct {
	Rank        int     `json:"rank,omitempty"`
	SubjectID   string  `json:"subject_id"`
	Engine      string  `json:"engine"`
	Affinity    float64 `json:"affinity"`
	RawAffinity float64 `json:"raw_affinity"`
	PeakScore   float64 `json:"peak_score"`
	SampleCount int     `json:"sample_count"`
	Decayed     bool    `json:"decayed"`
	Capped      bool    `json:"capped"`
	AsOf        string  `json:"as_of,omitempty"`
}

func toAggregateResponse(agg model.SubjectAggregate) aggregateResponse {
	out := aggregateResponse{
		Rank:        agg.Rank,
		SubjectID:   agg.SubjectID,
		Engine:      string(agg.Engine),
		Affinity:    agg.FinalAffinity,
		RawAffinity: agg.RawAffinity,
		PeakScore:   agg.PeakScore,
		SampleCount: agg.SampleCount,
		Decayed:     agg.Decayed,
		Capped:      agg.Capped,
	}
	if !agg.AsOf.IsZero() {
		out.AsOf = agg.AsOf.UTC().Format(time.RFC3339)
	}
	return out
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure classifies err, logs server-side failures and writes the response.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

// decodeBody reads a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// Narrow contracts used by the handlers.
type (
	// SubjectDependencies takes subjects in.
	SubjectDependencies interface {
		IntakeMany(ctx context.Context, subs []service.Submission) ([]model.TimeRecord, error)
	}
	// JobDependencies runs scoring batches and rebuilds.
	JobDependencies interface {
		ScorePairs(ctx context.Context, engine model.EngineKind, pairs []service.Pair) (service.BatchReport, error)
		ScoreAll(ctx context.Context, engine model.EngineKind) (service.BatchReport, error)
		Rebuild(ctx context.Context, engine model.EngineKind) (service.RebuildReport, error)
	}
	// LeaderboardDependencies reads the ranked projection.
	LeaderboardDependencies interface {
		TopN(ctx context.Context, engine model.EngineKind, n int) ([]model.SubjectAggregate, error)
	}
	// AffinityDependencies recomputes one subject on read.
	AffinityDependencies interface {
		Affinity(ctx context.Context, engine model.EngineKind, subject string) (model.SubjectAggregate, error)
	}
	// WeightDependencies exposes the weight registry.
	WeightDependencies interface {
		ActiveWeights() (composite.WeightVector, error)
		WeightVersions() ([]string, error)
		Bands() []composite.Band
	}
)
