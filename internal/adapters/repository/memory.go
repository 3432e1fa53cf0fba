package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/kairos/internal/domain/model"
)

// MemoryStore keeps pair scores in process memory with a per-subject index.
type MemoryStore struct {
	mu        sync.RWMutex
	rows      map[model.PairKey]model.PairScore
	bySubject map[model.EngineKind]map[string]map[model.PairKey]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:      make(map[model.PairKey]model.PairScore),
		bySubject: make(map[model.EngineKind]map[string]map[model.PairKey]struct{}),
	}
}

func (s *MemoryStore) UpsertScore(ctx context.Context, ps model.PairScore) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ps, err := canonical(ps)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.rows[ps.Key]; ok && old.SameResult(ps) {
		return false, nil
	}
	s.rows[ps.Key] = ps

	idx, ok := s.bySubject[ps.Key.Engine]
	if !ok {
		idx = make(map[string]map[model.PairKey]struct{})
		s.bySubject[ps.Key.Engine] = idx
	}
	for _, id := range []string{ps.Key.A, ps.Key.B} {
		if idx[id] == nil {
			idx[id] = make(map[model.PairKey]struct{})
		}
		idx[id][ps.Key] = struct{}{}
	}
	return true, nil
}

func (s *MemoryStore) FetchScoresFor(ctx context.Context, subject string, engine model.EngineKind) ([]model.PairScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	keys := s.bySubject[engine][subject]
	out := make([]model.PairScore, 0, len(keys))
	for k := range keys {
		out = append(out, s.rows[k])
	}
	s.mu.RUnlock()

	sortScores(out)
	return out, nil
}

func (s *MemoryStore) DeleteEngine(ctx context.Context, engine model.EngineKind) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.rows {
		if k.Engine == engine {
			delete(s.rows, k)
			n++
		}
	}
	delete(s.bySubject, engine)
	return n, nil
}

// Len returns the number of stored rows across engines.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// sortScores orders rows by canonical key so fetches are deterministic.
func sortScores(rows []model.PairScore) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Key.A != rows[j].Key.A {
			return rows[i].Key.A < rows[j].Key.A
		}
		return rows[i].Key.B < rows[j].Key.B
	})
}
