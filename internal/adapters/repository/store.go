// Package repository persists pair scores and projects subject aggregates
// into a ranked leaderboard.
package repository

import (
	"context"

	"github.com/okian/kairos/internal/domain/model"
)

// ScoreStore is the persistence contract for pair scores.
// Every row is read and written atomically; (A,B) and (B,A) address the same row.
type ScoreStore interface {
	// UpsertScore writes ps under its canonical key. It reports false, and
	// writes nothing, when the stored row already has the same score and depth.
	UpsertScore(ctx context.Context, ps model.PairScore) (bool, error)

	// FetchScoresFor returns every row of engine that involves subject.
	FetchScoresFor(ctx context.Context, subject string, engine model.EngineKind) ([]model.PairScore, error)

	// DeleteEngine removes all rows of engine and returns how many were removed.
	DeleteEngine(ctx context.Context, engine model.EngineKind) (int, error)
}

func canonical(ps model.PairScore) (model.PairScore, error) {
	key := model.NewPairKey(ps.Key.A, ps.Key.B, ps.Key.Engine)
	if !key.Valid() {
		return model.PairScore{}, ErrInvalidPair
	}
	ps.Key = key
	return ps, nil
}
