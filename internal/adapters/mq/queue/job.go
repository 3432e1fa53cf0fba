package queue

import "github.com/okian/kairos/internal/domain/model"

// Outcome is what happened to one pair-scoring job.
type Outcome int

// Job outcomes.
const (
	// OutcomeScored: a new or changed score was written.
	OutcomeScored Outcome = iota
	// OutcomeUnchanged: the stored row already had this result.
	OutcomeUnchanged
	// OutcomeSkipped: a record was incomplete; no score was emitted.
	OutcomeSkipped
	// OutcomeDeferred: the store failed for this pair; retry in a later run.
	OutcomeDeferred
	// OutcomeAborted: the batch stopped before this pair was handled.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeScored:
		return "scored"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Sink collects the outcomes of one batch.
type Sink interface {
	// Aborted reports whether the batch has stopped; remaining jobs are not scored.
	Aborted() bool
	// Record is called exactly once per job.
	Record(job Job, outcome Outcome, err error)
}

// Job asks a worker to score one pair and persist the result.
type Job struct {
	Key  model.PairKey
	A, B model.TimeRecord
	Sink Sink
}
