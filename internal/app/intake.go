package service

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/internal/domain/timelayer"
	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

// Submission is one subject timestamp offered for intake.
type Submission struct {
	SubjectID string
	Timestamp timelayer.Timestamp
}

// Intake decomposes ts and stores it as the subject's time record, replacing
// any earlier record. Existing pair scores are only refreshed by the next batch.
func (s *Service) Intake(ctx context.Context, subject string, ts timelayer.Timestamp) (model.TimeRecord, error) {
	if _, err := s.running(); err != nil {
		return model.TimeRecord{}, err
	}
	rec, err := s.decomposer.Decompose(subject, ts)
	if err != nil {
		metrics.RecordErrorByComponent("service", "intake_rejected")
		s.logger.Warn(ctx, "rejecting subject", logger.String("subject", subject), logger.Error(err))
		return model.TimeRecord{}, err
	}
	s.put(ctx, rec)
	return rec.Clone(), nil
}

// IntakeMany decomposes every submission in parallel. Either all records are
// stored or, on the first invalid submission, none are.
func (s *Service) IntakeMany(ctx context.Context, subs []Submission) ([]model.TimeRecord, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}

	out := make([]model.TimeRecord, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount)
	for i, sub := range subs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := s.decomposer.Decompose(sub.SubjectID, sub.Timestamp)
			if err != nil {
				return fmt.Errorf("submission %d (%q): %w", i, sub.SubjectID, err)
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordErrorByComponent("service", "intake_rejected")
		s.logger.Warn(ctx, "rejecting intake batch", logger.Int("size", len(subs)), logger.Error(err))
		return nil, err
	}

	for _, rec := range out {
		s.put(ctx, rec)
	}
	return out, nil
}

func (s *Service) put(ctx context.Context, rec model.TimeRecord) {
	s.subjectsMu.Lock()
	_, replaced := s.subjects[rec.SubjectID]
	s.subjects[rec.SubjectID] = rec.Clone()
	n := len(s.subjects)
	s.subjectsMu.Unlock()

	metrics.UpdateSubjectsTotal(n)
	s.logger.Debug(ctx, "subject recorded",
		logger.String("subject", rec.SubjectID),
		logger.Bool("precise", rec.Precise),
		logger.Bool("replaced", replaced),
	)
}

// Record returns the stored time record of subject.
func (s *Service) Record(subject string) (model.TimeRecord, error) {
	s.subjectsMu.RLock()
	defer s.subjectsMu.RUnlock()
	rec, ok := s.subjects[subject]
	if !ok {
		return model.TimeRecord{}, fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}
	return rec.Clone(), nil
}

// Subjects returns every known subject id in ascending order.
func (s *Service) Subjects() []string {
	s.subjectsMu.RLock()
	out := make([]string, 0, len(s.subjects))
	for id := range s.subjects {
		out = append(out, id)
	}
	s.subjectsMu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Service) lookup(subject string) (model.TimeRecord, bool) {
	s.subjectsMu.RLock()
	defer s.subjectsMu.RUnlock()
	rec, ok := s.subjects[subject]
	return rec, ok
}

func (s *Service) subjectCount() int {
	s.subjectsMu.RLock()
	defer s.subjectsMu.RUnlock()
	return len(s.subjects)
}
