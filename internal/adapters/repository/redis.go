package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/okian/kairos/internal/domain/model"
)

const defaultRedisPrefix = "kairos"

// Keys share the {engine} hash tag so one upsert touches a single cluster slot.
//
//	<prefix>:pairs:{engine}            hash  len(A):A|B -> JSON row
//	<prefix>:subject:{engine}:<id>     set   of fields touching id

// upsertScript writes the row and both index entries unless the stored row
// already has the same score and depth. Returns 1 when written.
var upsertScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur then
  local row = cjson.decode(cur)
  if tonumber(row.score) == tonumber(ARGV[3]) and tonumber(row.depth) == tonumber(ARGV[4]) then
    return 0
  end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[1])
return 1
`)

type redisRow struct {
	A        string    `json:"a"`
	B        string    `json:"b"`
	Score    float64   `json:"score"`
	Depth    int       `json:"depth"`
	ScoredAt time.Time `json:"scored_at"`
}

// RedisStore persists pair scores in Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenRedis connects to url and verifies the connection.
func OpenRedis(ctx context.Context, url string, opts ...RedisOption) (*RedisStore, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(ro)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStore(client, opts...), nil
}

func (s *RedisStore) pairsKey(engine model.EngineKind) string {
	return fmt.Sprintf("%s:pairs:{%s}", s.prefix, engine)
}

func (s *RedisStore) subjectKey(engine model.EngineKind, id string) string {
	return fmt.Sprintf("%s:subject:{%s}:%s", s.prefix, engine, id)
}

// field length-prefixes A so ids containing the separator cannot collide.
func field(k model.PairKey) string {
	return strconv.Itoa(len(k.A)) + ":" + k.A + "|" + k.B
}

func (s *RedisStore) UpsertScore(ctx context.Context, ps model.PairScore) (bool, error) {
	ps, err := canonical(ps)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(redisRow{
		A:        ps.Key.A,
		B:        ps.Key.B,
		Score:    ps.Score,
		Depth:    ps.MatchedDepth,
		ScoredAt: ps.ScoredAt.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("encode pair score: %w", err)
	}

	keys := []string{
		s.pairsKey(ps.Key.Engine),
		s.subjectKey(ps.Key.Engine, ps.Key.A),
		s.subjectKey(ps.Key.Engine, ps.Key.B),
	}
	n, err := upsertScript.Run(ctx, s.client, keys,
		field(ps.Key), payload,
		strconv.FormatFloat(ps.Score, 'g', -1, 64),
		strconv.Itoa(ps.MatchedDepth),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis upsert %s: %w", ps.Key, err)
	}
	return n == 1, nil
}

func (s *RedisStore) FetchScoresFor(ctx context.Context, subject string, engine model.EngineKind) ([]model.PairScore, error) {
	fields, err := s.client.SMembers(ctx, s.subjectKey(engine, subject)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index %s: %w", subject, err)
	}
	if len(fields) == 0 {
		return []model.PairScore{}, nil
	}

	vals, err := s.client.HMGet(ctx, s.pairsKey(engine), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rows %s: %w", subject, err)
	}

	out := make([]model.PairScore, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// index entry outlived its row
			continue
		}
		var row redisRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("decode pair score: %w", err)
		}
		out = append(out, model.PairScore{
			Key:          model.PairKey{A: row.A, B: row.B, Engine: engine},
			Score:        row.Score,
			MatchedDepth: row.Depth,
			ScoredAt:     row.ScoredAt,
		})
	}
	sortScores(out)
	return out, nil
}

func (s *RedisStore) DeleteEngine(ctx context.Context, engine model.EngineKind) (int, error) {
	pairs := s.pairsKey(engine)
	n, err := s.client.HLen(ctx, pairs).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis count %s: %w", engine, err)
	}

	pattern := escapeGlob(s.subjectKey(engine, "")) + "*"
	iter := s.client.Scan(ctx, 0, pattern, 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return 0, fmt.Errorf("redis delete index: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	batch = append(batch, pairs)
	if err := s.client.Del(ctx, batch...).Err(); err != nil {
		return 0, fmt.Errorf("redis delete rows: %w", err)
	}
	return int(n), nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
