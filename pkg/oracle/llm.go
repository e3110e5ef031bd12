package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chronicler-ai/chronicler/internal/util"
	"github.com/chronicler-ai/chronicler/pkg/ai"
)

// Transient model failures (timeouts, malformed output) get one more
// attempt before the chunk is marked failed. Safe to repeat: every task
// is idempotent and the deterministic tasks run at temperature 0.
const judgeAttempts = 2

type taskSpec struct {
	prompt      string
	description string
	temperature float64
}

// Temperature 0 on decide_merge, combine_data and classify_node keeps the
// verdicts reproducible across retries of the same chunk.
var taskSpecs = map[TaskType]taskSpec{
	TaskResolveReferences: {resolvePrompt, "Resolved statements for a window of log entries", 0.1},
	TaskDetectBoundary:    {boundaryPrompt, "Conversation boundary verdict for a statement window", 0.1},
	TaskParseStatements:   {parsePrompt, "Ordered atomic sentences of a conversation", 0.1},
	TaskExtractFacts:      {extractPrompt, "Candidate nodes and edges for one atomic sentence", 0.1},
	TaskEnrichMetadata:    {enrichPrompt, "Temporal and scoring metadata for extracted candidates", 0.1},
	TaskDecideMerge:       {decideMergePrompt, "Merge-or-create verdict for a candidate node", 0},
	TaskCombineData:       {combinePrompt, "Reconciled attribute set for a merged node", 0},
	TaskClassifyNode:      {classifyPrompt, "Taxonomy category for a node", 0},
}

// LLMOracle implements Client by delegating every judgment to a language
// model through an ai.Client with schema-constrained output.
type LLMOracle struct {
	client ai.Client
	model  string
}

// NewLLMOracle creates an oracle backed by the given model client. An empty
// model keeps the client's default.
func NewLLMOracle(client ai.Client, model string) *LLMOracle {
	return &LLMOracle{
		client: client,
		model:  model,
	}
}

// Judge renders the task's prompt with the JSON-encoded input, requests a
// schema-constrained completion, and unmarshals the result into out.
func (o *LLMOracle) Judge(ctx context.Context, task TaskType, in any, out any) error {
	spec, ok := taskSpecs[task]
	if !ok {
		return WrapError(task, fmt.Errorf("unknown task type"))
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return WrapError(task, fmt.Errorf("failed to encode input: %w", err))
	}

	prompt := fmt.Sprintf(spec.prompt, string(payload))

	opts := []ai.GenerateOption{
		ai.WithTemperature(spec.temperature),
	}
	if o.model != "" {
		opts = append(opts, ai.WithModel(o.model))
	}

	err = util.RetryErrWithContext(ctx, judgeAttempts, func(ctx context.Context) error {
		return o.client.GenerateCompletionWithFormat(
			ctx,
			string(task),
			spec.description,
			prompt,
			out,
			opts...,
		)
	})
	if err != nil {
		return WrapError(task, err)
	}

	return nil
}
