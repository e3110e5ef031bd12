package oracle

import (
	"context"
	"fmt"
)

// TaskType identifies one judgment the pipeline delegates to the oracle.
type TaskType string

const (
	TaskResolveReferences TaskType = "resolve_references"
	TaskDetectBoundary    TaskType = "detect_boundary"
	TaskParseStatements   TaskType = "parse_statements"
	TaskExtractFacts      TaskType = "extract_facts"
	TaskEnrichMetadata    TaskType = "enrich_metadata"
	TaskDecideMerge       TaskType = "decide_merge"
	TaskCombineData       TaskType = "combine_data"
	TaskClassifyNode      TaskType = "classify_node"
)

// Client is the Decision Oracle port. Judge fills out with the structured
// result for the given task, or returns an *Error when the call failed or
// produced malformed output. Implementations must be safe for concurrent
// use.
type Client interface {
	Judge(ctx context.Context, task TaskType, in any, out any) error
}

// Error wraps a failed oracle call with the task that failed. Stages map
// it to a per-chunk failure rather than stopping their loop.
type Error struct {
	Task TaskType
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle task %s: %v", e.Task, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError wraps err into an *Error for the given task. Returns nil for a
// nil err.
func WrapError(task TaskType, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Task: task, Err: err}
}
