package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/worker"
)

func statementChunks(t *testing.T, n int, enqueuedAt time.Time) []pipeline.Chunk {
	t.Helper()
	chunks := make([]pipeline.Chunk, 0, n)
	for i := 0; i < n; i++ {
		payload, err := json.Marshal(StatementPayload{Statement: common.ResolvedStatement{
			ID:        fmt.Sprintf("st-%d", i),
			Text:      fmt.Sprintf("statement %d", i),
			Timestamp: enqueuedAt,
			Role:      common.RoleUser,
			Source:    "test",
		}})
		if err != nil {
			t.Fatal(err)
		}
		chunks = append(chunks, pipeline.Chunk{
			ID:         fmt.Sprintf("chunk-%d", i),
			Stage:      pipeline.StageBoundary,
			Seq:        int64(i),
			BatchID:    "batch-1",
			Payload:    payload,
			EnqueuedAt: enqueuedAt,
		})
	}
	return chunks
}

func countResults(results []worker.Result) (succeeded, released, failed int) {
	for _, r := range results {
		switch {
		case r.Release:
			released++
		case r.Outcome == pipeline.OutcomeFailure:
			failed++
		case r.Outcome == pipeline.OutcomeSuccess:
			succeeded++
		}
	}
	return
}

func TestSegmenterCutsFullWindowAtBoundary(t *testing.T) {
	stub := oracle.NewStub()
	stub.Handle(oracle.TaskDetectBoundary, func(in any, out any) error {
		req := in.(oracle.BoundaryRequest)
		if len(req.Statements) != 20 {
			t.Errorf("expected 20 statements in request, got %d", len(req.Statements))
		}
		resp := out.(*oracle.BoundaryResponse)
		resp.HasBoundary = true
		resp.Index = 15
		return nil
	})

	seg := NewSegmenter(stub, BoundaryConfig{WindowSize: 20})
	chunks := statementChunks(t, 20, time.Now())

	results, err := seg.Process(context.Background(), chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	succeeded, released, failed := countResults(results)
	if succeeded != 15 || released != 5 || failed != 0 {
		t.Errorf("expected 15 succeeded, 5 released, got %d/%d/%d", succeeded, released, failed)
	}

	// The conversation output rides on the first chunk only.
	var outputs int
	for i, r := range results {
		outputs += len(r.Outputs)
		if i == 0 {
			if len(r.Outputs) != 1 {
				t.Fatalf("expected conversation output on first chunk, got %d", len(r.Outputs))
			}
			conv := r.Outputs[0].Payload.(ConversationPayload)
			if r.Outputs[0].Stage != pipeline.StageAtomize {
				t.Errorf("expected atomize output, got %s", r.Outputs[0].Stage)
			}
			if len(conv.Statements) != 15 {
				t.Errorf("expected 15 statements in conversation, got %d", len(conv.Statements))
			}
			if conv.ConversationID == "" {
				t.Error("expected a conversation id")
			}
		}
	}
	if outputs != 1 {
		t.Errorf("expected exactly one output across all results, got %d", outputs)
	}
}

func TestSegmenterTreatsInvalidBoundaryAsNoBoundary(t *testing.T) {
	cases := []struct {
		name string
		resp oracle.BoundaryResponse
	}{
		{"absent", oracle.BoundaryResponse{HasBoundary: false}},
		{"below threshold", oracle.BoundaryResponse{HasBoundary: true, Index: 3}},
		{"past window", oracle.BoundaryResponse{HasBoundary: true, Index: 20}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := oracle.NewStub()
			stub.Handle(oracle.TaskDetectBoundary, func(in any, out any) error {
				*out.(*oracle.BoundaryResponse) = tc.resp
				return nil
			})

			seg := NewSegmenter(stub, BoundaryConfig{WindowSize: 20})
			results, err := seg.Process(context.Background(), statementChunks(t, 20, time.Now()))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			succeeded, released, _ := countResults(results)
			if succeeded != 20 || released != 0 {
				t.Errorf("expected whole window as one conversation, got %d succeeded, %d released", succeeded, released)
			}
		})
	}
}

func TestSegmenterReleasesFreshPartialWindow(t *testing.T) {
	stub := oracle.NewStub()

	seg := NewSegmenter(stub, BoundaryConfig{WindowSize: 20, FlushAfter: 10 * time.Minute})
	results, err := seg.Process(context.Background(), statementChunks(t, 7, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, released, _ := countResults(results)
	if released != 7 {
		t.Errorf("expected all 7 chunks released, got %d", released)
	}
	if stub.Calls(oracle.TaskDetectBoundary) != 0 {
		t.Error("partial window must not consult the oracle")
	}
}

func TestSegmenterFlushesStalePartialWindow(t *testing.T) {
	stub := oracle.NewStub()

	seg := NewSegmenter(stub, BoundaryConfig{WindowSize: 20, FlushAfter: 10 * time.Minute})
	stale := time.Now().Add(-30 * time.Minute)
	results, err := seg.Process(context.Background(), statementChunks(t, 7, stale))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	succeeded, released, _ := countResults(results)
	if succeeded != 7 || released != 0 {
		t.Errorf("expected flushed window as one conversation, got %d succeeded, %d released", succeeded, released)
	}
	if stub.Calls(oracle.TaskDetectBoundary) != 0 {
		t.Error("flushed window must not consult the oracle")
	}
	conv := results[0].Outputs[0].Payload.(ConversationPayload)
	if len(conv.Statements) != 7 {
		t.Errorf("expected all 7 statements in flushed conversation, got %d", len(conv.Statements))
	}
}

func TestSegmenterFailsWholeWindowOnOracleError(t *testing.T) {
	stub := oracle.NewStub()
	stub.Handle(oracle.TaskDetectBoundary, func(in any, out any) error {
		return errors.New("model unavailable")
	})

	seg := NewSegmenter(stub, BoundaryConfig{WindowSize: 20})
	results, err := seg.Process(context.Background(), statementChunks(t, 20, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, failed := countResults(results)
	if failed != 20 {
		t.Errorf("expected all 20 chunks failed, got %d", failed)
	}
	var oerr *oracle.Error
	if !errors.As(results[0].Err, &oerr) || oerr.Task != oracle.TaskDetectBoundary {
		t.Errorf("expected boundary oracle error, got %v", results[0].Err)
	}
}
