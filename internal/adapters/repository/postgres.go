package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/okian/kairos/internal/domain/model"
)

const defaultTable = "pair_scores"

// PostgresStore persists pair scores in one table keyed by (engine_kind, subject_a, subject_b).
type PostgresStore struct {
	db    *sql.DB
	table string

	upsertSQL string
	fetchSQL  string
	deleteSQL string
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTable overrides the table name.
func WithTable(name string) PostgresOption {
	return func(s *PostgresStore) {
		if name != "" {
			s.table = name
		}
	}
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(s)
	}
	t := pq.QuoteIdentifier(s.table)
	s.upsertSQL = fmt.Sprintf(`
INSERT INTO %[1]s AS cur (engine_kind, subject_a, subject_b, score, matched_depth, scored_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (engine_kind, subject_a, subject_b) DO UPDATE
SET score = EXCLUDED.score, matched_depth = EXCLUDED.matched_depth, scored_at = EXCLUDED.scored_at
WHERE cur.score IS DISTINCT FROM EXCLUDED.score OR cur.matched_depth IS DISTINCT FROM EXCLUDED.matched_depth`, t)
	s.fetchSQL = fmt.Sprintf(`
SELECT subject_a, subject_b, score, matched_depth, scored_at FROM %s
WHERE engine_kind = $1 AND (subject_a = $2 OR subject_b = $2)`, t)
	s.deleteSQL = fmt.Sprintf(`DELETE FROM %s WHERE engine_kind = $1`, t)
	return s
}

// OpenPostgres connects with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return NewPostgresStore(db, opts...), nil
}

// EnsureSchema creates the table and the reverse-lookup index. Subject columns
// use the C collation so the ordering CHECK agrees with canonical pair keys.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	t := pq.QuoteIdentifier(s.table)
	idx := pq.QuoteIdentifier(s.table + "_b_idx")
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	engine_kind   TEXT NOT NULL,
	subject_a     TEXT COLLATE "C" NOT NULL,
	subject_b     TEXT COLLATE "C" NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	matched_depth INTEGER NOT NULL,
	scored_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (engine_kind, subject_a, subject_b),
	CHECK (subject_a < subject_b)
)`, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (engine_kind, subject_b)`, idx, t),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertScore(ctx context.Context, ps model.PairScore) (bool, error) {
	ps, err := canonical(ps)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.upsertSQL,
		string(ps.Key.Engine), ps.Key.A, ps.Key.B, ps.Score, ps.MatchedDepth, ps.ScoredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("postgres upsert %s: %w", ps.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres upsert %s: %w", ps.Key, err)
	}
	return n > 0, nil
}

func (s *PostgresStore) FetchScoresFor(ctx context.Context, subject string, engine model.EngineKind) ([]model.PairScore, error) {
	rows, err := s.db.QueryContext(ctx, s.fetchSQL, string(engine), subject)
	if err != nil {
		return nil, fmt.Errorf("postgres fetch %s: %w", subject, err)
	}
	defer rows.Close()

	out := []model.PairScore{}
	for rows.Next() {
		ps := model.PairScore{Key: model.PairKey{Engine: engine}}
		if err := rows.Scan(&ps.Key.A, &ps.Key.B, &ps.Score, &ps.MatchedDepth, &ps.ScoredAt); err != nil {
			return nil, fmt.Errorf("postgres scan: %w", err)
		}
		ps.ScoredAt = ps.ScoredAt.UTC()
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres fetch %s: %w", subject, err)
	}
	sortScores(out)
	return out, nil
}

func (s *PostgresStore) DeleteEngine(ctx context.Context, engine model.EngineKind) (int, error) {
	res, err := s.db.ExecContext(ctx, s.deleteSQL, string(engine))
	if err != nil {
		return 0, fmt.Errorf("postgres delete %s: %w", engine, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres delete %s: %w", engine, err)
	}
	return int(n), nil
}

// Close releases the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
