package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/kairos/internal/app"
	"github.com/okian/kairos/internal/domain/timelayer"
)

// SubjectsHandler handles subject intake.
type SubjectsHandler struct {
	deps SubjectDependencies
}

// NewSubjectsHandler creates a new subjects handler.
func NewSubjectsHandler(deps SubjectDependencies) *SubjectsHandler {
	return &SubjectsHandler{deps: deps}
}

// subjectRequest is one subject timestamp. Timestamp is RFC3339 and is
// decomposed in its own offset. Precise defaults to true; set it to false
// when the source only knew the minute.
type subjectRequest struct {
	SubjectID string `json:"subject_id"`
	Timestamp string `json:"timestamp"`
	Precise   *bool  `json:"precise,omitempty"`
}

// intakeRequest accepts one inline subject or a list under "subjects".
type intakeRequest struct {
	SubjectID string           `json:"subject_id"`
	Timestamp string           `json:"timestamp"`
	Precise   *bool            `json:"precise,omitempty"`
	Subjects  []subjectRequest `json:"subjects"`
}

func (s subjectRequest) submission() (service.Submission, error) {
	if strings.TrimSpace(s.SubjectID) == "" {
		return service.Submission{}, errors.New("missing subject_id")
	}
	if strings.TrimSpace(s.Timestamp) == "" {
		return service.Submission{}, fmt.Errorf("subject %q: missing timestamp", s.SubjectID)
	}
	t, err := time.Parse(time.RFC3339, s.Timestamp)
	if err != nil {
		return service.Submission{}, fmt.Errorf("subject %q: invalid timestamp; must be RFC3339", s.SubjectID)
	}
	precise := s.Precise == nil || *s.Precise
	return service.Submission{SubjectID: s.SubjectID, Timestamp: timelayer.FromTime(t, precise)}, nil
}

type subjectResponse struct {
	SubjectID string `json:"subject_id"`
	Layers    []int  `json:"layers"`
	Precise   bool   `json:"precise"`
}

// HandlePostSubjects handles POST /subjects. The body is either one subject
// or {"subjects": [...]}; a batch is stored all or nothing.
func (h *SubjectsHandler) HandlePostSubjects(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_subjects"

	var req intakeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, err))
		return
	}

	reqs := req.Subjects
	if len(reqs) == 0 {
		reqs = []subjectRequest{{SubjectID: req.SubjectID, Timestamp: req.Timestamp, Precise: req.Precise}}
	}
	subs := make([]service.Submission, 0, len(reqs))
	for _, req := range reqs {
		sub, err := req.submission()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, err))
			return
		}
		subs = append(subs, sub)
	}

	recs, err := h.deps.IntakeMany(r.Context(), subs)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	out := make([]subjectResponse, len(recs))
	for i, rec := range recs {
		out[i] = subjectResponse{SubjectID: rec.SubjectID, Layers: rec.Layers, Precise: rec.Precise}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"subjects": out})
}
