package stages

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
)

func sentencesChunk(t *testing.T, payload SentencesPayload) pipeline.Chunk {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return pipeline.Chunk{
		ID:         "chunk-1",
		Stage:      pipeline.StageExtract,
		BatchID:    "batch-1",
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}
}

func TestExtractorAccumulatesPrecedingContext(t *testing.T) {
	stub := oracle.NewStub()
	var seen [][]string
	stub.Handle(oracle.TaskExtractFacts, func(in any, out any) error {
		req := in.(oracle.ExtractRequest)
		seen = append(seen, append([]string(nil), req.Preceding...))
		resp := out.(*oracle.ExtractResponse)
		resp.Nodes = []oracle.ExtractedNode{
			{Label: req.Sentence, Type: string(common.NodeTypeEvent), Description: "d"},
		}
		return nil
	})

	handler := NewExtractor(stub, ExtractorConfig{CanonicalUser: "Dana"})
	payload := SentencesPayload{
		ConversationID: "conv-1",
		ReferenceTime:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Sentences: []common.AtomicStatement{
			{ID: "s1", Text: "Dana met Sam.", Role: common.RoleUser, Source: "voice"},
			{ID: "s2", Text: "Sam confirmed 3pm.", Role: common.RoleUser, Source: "voice"},
			{ID: "s3", Text: "Dana agreed.", Role: common.RoleUser, Source: "voice"},
		},
	}

	results, err := handler.Process(context.Background(), []pipeline.Chunk{sentencesChunk(t, payload)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 oracle calls, got %d", len(seen))
	}
	if len(seen[0]) != 0 {
		t.Errorf("first sentence must have no preceding context, got %v", seen[0])
	}
	if len(seen[2]) != 2 || seen[2][1] != "Sam confirmed 3pm." {
		t.Errorf("unexpected preceding context for third sentence: %v", seen[2])
	}

	set := results[0].Outputs[0].Payload.(CandidateSet)
	if len(set.Nodes) != 3 {
		t.Fatalf("expected 3 candidate nodes, got %d", len(set.Nodes))
	}
	if set.Nodes[1].Provenance.StatementID != "s2" || set.Nodes[1].Provenance.Sentence != "Sam confirmed 3pm." {
		t.Errorf("unexpected provenance: %+v", set.Nodes[1].Provenance)
	}
}

func TestExtractorDropsInvalidCandidates(t *testing.T) {
	stub := oracle.NewStub()
	stub.Handle(oracle.TaskExtractFacts, func(in any, out any) error {
		resp := out.(*oracle.ExtractResponse)
		resp.Nodes = []oracle.ExtractedNode{
			{Label: "Sam", Type: "Entity"},
			{Label: "thing", Type: "Widget"},
		}
		resp.Edges = []oracle.ExtractedEdge{
			{SourceLabel: "Dana", TargetLabel: "Sam", Relation: "knows"},
			{SourceLabel: "Dana", TargetLabel: "", Relation: "knows"},
		}
		return nil
	})

	handler := NewExtractor(stub, ExtractorConfig{})
	payload := SentencesPayload{
		ConversationID: "conv-1",
		ReferenceTime:  time.Now(),
		Sentences: []common.AtomicStatement{
			{ID: "s1", Text: "Dana knows Sam.", Role: common.RoleUser},
		},
	}

	results, err := handler.Process(context.Background(), []pipeline.Chunk{sentencesChunk(t, payload)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	set := results[0].Outputs[0].Payload.(CandidateSet)
	if len(set.Nodes) != 1 || set.Nodes[0].Label != "Sam" {
		t.Errorf("expected only the valid node, got %+v", set.Nodes)
	}
	if len(set.Edges) != 1 {
		t.Errorf("expected only the complete edge, got %+v", set.Edges)
	}
}

func TestExtractorSkipsEmptyConversation(t *testing.T) {
	stub := oracle.NewStub()
	handler := NewExtractor(stub, ExtractorConfig{})

	payload := SentencesPayload{ConversationID: "conv-1", ReferenceTime: time.Now()}
	results, err := handler.Process(context.Background(), []pipeline.Chunk{sentencesChunk(t, payload)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results[0].Outputs) != 0 {
		t.Errorf("expected no outputs, got %d", len(results[0].Outputs))
	}
	if stub.Calls(oracle.TaskExtractFacts) != 0 {
		t.Error("empty conversation must not consult the oracle")
	}
}
