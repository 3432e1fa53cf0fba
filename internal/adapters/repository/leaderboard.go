package repository

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/pkg/metrics"
)

// Leaderboard is a treap-backed projection of subject aggregates, one tree per
// engine kind. It is a cache over the score store and can be rebuilt at any time.
//
// Ordering: affinity DESC, then subject id ASC. "less" means ranks earlier, so
// in-order traversal yields the leaderboard from best to worst.

// affinityScale controls fixed-point scaling of affinities in [0,1].
const affinityScale = 1_000_000_000_000

type affinityFP int64

func toFixedPoint(x float64) affinityFP {
	if math.IsNaN(x) {
		return 0
	}
	return affinityFP(math.Round(math.Min(1, math.Max(0, x)) * affinityScale))
}

// node carries subtree aggregates: size, the best and worst affinity (its
// leftmost and rightmost keys) and the number of distinct affinities.
type node struct {
	id       string
	score    affinityFP
	prio     uint64
	left     *node
	right    *node
	size     int
	hi, lo   affinityFP
	distinct int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n == nil {
		return
	}
	n.size = 1 + nsize(n.left) + nsize(n.right)
	n.hi, n.lo, n.distinct = n.score, n.score, 1
	if l := n.left; l != nil {
		n.hi = l.hi
		n.distinct += l.distinct
		if l.lo == n.score {
			n.distinct--
		}
	}
	if r := n.right; r != nil {
		n.lo = r.lo
		n.distinct += r.distinct
		if r.hi == n.score {
			n.distinct--
		}
	}
}

func less(aScore affinityFP, aID string, bScore affinityFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// priority hashes the subject id so tree shape does not depend on insertion order.
func priority(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func insert(n *node, id string, score affinityFP) *node {
	if n == nil {
		leaf := &node{id: id, score: score, prio: priority(id)}
		fix(leaf)
		return leaf
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score affinityFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// collect appends up to limit nodes in rank order.
func collect(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collect(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collect(n.right, limit, out)
	}
}

type entry struct {
	score affinityFP
	agg   model.SubjectAggregate
}

type board struct {
	root *node
	byID map[string]entry
}

// Leaderboard ranks subjects per engine kind.
type Leaderboard struct {
	mu     sync.RWMutex
	boards map[model.EngineKind]*board
}

// NewLeaderboard returns an empty projection.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{boards: make(map[model.EngineKind]*board)}
}

// Put replaces the subject's aggregate. Aggregates without data are removed
// rather than ranked. It reports whether the subject is ranked afterwards.
func (l *Leaderboard) Put(_ context.Context, agg model.SubjectAggregate) bool {
	fp := toFixedPoint(agg.FinalAffinity)

	l.mu.Lock()
	b, ok := l.boards[agg.Engine]
	if !ok {
		b = &board{byID: make(map[string]entry)}
		l.boards[agg.Engine] = b
	}
	if old, ok := b.byID[agg.SubjectID]; ok {
		b.root = deleteNode(b.root, agg.SubjectID, old.score)
		delete(b.byID, agg.SubjectID)
	}
	ranked := agg.HasData()
	if ranked {
		agg.Rank = 0
		b.byID[agg.SubjectID] = entry{score: fp, agg: agg}
		b.root = insert(b.root, agg.SubjectID, fp)
	}
	size := len(b.byID)
	l.mu.Unlock()

	metrics.UpdateLeaderboardSize(string(agg.Engine), size)
	return ranked
}

// TopN returns the best n aggregates of engine with dense tie-aware ranks:
// equal affinities share a rank and the next distinct affinity takes the next rank.
func (l *Leaderboard) TopN(_ context.Context, engine model.EngineKind, n int) ([]model.SubjectAggregate, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.boards[engine]
	if !ok {
		return []model.SubjectAggregate{}, nil
	}
	nodes := make([]*node, 0, min(n, len(b.byID)))
	collect(b.root, n, &nodes)

	out := make([]model.SubjectAggregate, len(nodes))
	rank := 0
	for i, nd := range nodes {
		if i == 0 || nd.score != nodes[i-1].score {
			rank++
		}
		out[i] = b.byID[nd.id].agg
		out[i].Rank = rank
	}
	return out, nil
}

// Rank returns the subject's aggregate with its dense rank.
func (l *Leaderboard) Rank(_ context.Context, engine model.EngineKind, subject string) (model.SubjectAggregate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.boards[engine]
	if !ok {
		return model.SubjectAggregate{}, ErrNotFound
	}
	e, ok := b.byID[subject]
	if !ok {
		return model.SubjectAggregate{}, ErrNotFound
	}

	// dense rank: one plus the number of distinct affinities above this one
	agg := e.agg
	agg.Rank = distinctAbove(b.root, e.score) + 1
	return agg, nil
}

// distinctAbove counts distinct affinities strictly greater than score along
// one root-to-leaf path.
func distinctAbove(n *node, score affinityFP) int {
	if n == nil {
		return 0
	}
	if n.score <= score {
		return distinctAbove(n.left, score)
	}
	d := 1 + distinctAbove(n.right, score)
	if r := n.right; r != nil && r.hi == n.score {
		d--
	}
	if l := n.left; l != nil {
		d += l.distinct
		if l.lo == n.score {
			d--
		}
	}
	return d
}

// Count returns the number of ranked subjects for engine.
func (l *Leaderboard) Count(_ context.Context, engine model.EngineKind) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.boards[engine]; ok {
		return len(b.byID)
	}
	return 0
}

// Reset drops every ranked subject of engine.
func (l *Leaderboard) Reset(_ context.Context, engine model.EngineKind) {
	l.mu.Lock()
	delete(l.boards, engine)
	l.mu.Unlock()
	metrics.UpdateLeaderboardSize(string(engine), 0)
}

// Engines lists engine kinds with at least one ranked subject.
func (l *Leaderboard) Engines() []model.EngineKind {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.EngineKind, 0, len(l.boards))
	for k, b := range l.boards {
		if len(b.byID) > 0 {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
