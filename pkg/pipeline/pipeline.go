package pipeline

import (
	"encoding/json"
	"errors"
	"time"
)

// Stage names one waiting area in the durable queue store. A chunk
// enqueued for a stage is processed by that stage's worker loop.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageBoundary Stage = "boundary"
	StageAtomize  Stage = "atomize"
	StageExtract  Stage = "extract"
	StageEnrich   Stage = "enrich"
	StageMerge    Stage = "merge"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageResolve,
	StageBoundary,
	StageAtomize,
	StageExtract,
	StageEnrich,
	StageMerge,
}

// Outcome records how a stage finished a chunk.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

var (
	// ErrStorageUnavailable means the queue store is unreachable. Fatal to
	// the current poll cycle only; the loop retries next iteration.
	ErrStorageUnavailable = errors.New("queue store unavailable")

	// ErrOracleFailed means an oracle call failed or returned malformed
	// output. The affected chunk is marked failed and skipped.
	ErrOracleFailed = errors.New("oracle call failed")

	// ErrMergeConflict means two concurrent writers targeted the same
	// node. Resolved by bounded optimistic retry.
	ErrMergeConflict = errors.New("concurrent node write conflict")
)

// Chunk is one unit of work in a stage's waiting area: an opaque payload
// plus a monotonically increasing sequence position and a batch
// identifier.
type Chunk struct {
	ID         string          `json:"id"`
	Stage      Stage           `json:"stage"`
	Seq        int64           `json:"seq"`
	BatchID    string          `json:"batch_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Bind unmarshals the chunk payload into out.
func (c Chunk) Bind(out any) error {
	return json.Unmarshal(c.Payload, out)
}

// Output is a payload a stage hands to a downstream stage's queue when
// completing a chunk.
type Output struct {
	Stage   Stage
	BatchID string
	Payload any
}
