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

func candidateChunk(t *testing.T, set CandidateSet) pipeline.Chunk {
	t.Helper()
	payload, err := json.Marshal(set)
	if err != nil {
		t.Fatal(err)
	}
	return pipeline.Chunk{
		ID:         "chunk-1",
		Stage:      pipeline.StageEnrich,
		BatchID:    "batch-1",
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
}

func TestEnricherAppliesMetadataPositionally(t *testing.T) {
	stub := oracle.NewStub()
	stub.Handle(oracle.TaskEnrichMetadata, func(in any, out any) error {
		req := in.(oracle.EnrichRequest)
		if len(req.Items) != 3 {
			t.Fatalf("expected 3 items (2 nodes + 1 edge), got %d", len(req.Items))
		}
		if req.Items[0].Kind != "node" || req.Items[2].Kind != "edge" {
			t.Errorf("expected nodes before edges, got %s/%s", req.Items[0].Kind, req.Items[2].Kind)
		}
		resp := out.(*oracle.EnrichResponse)
		resp.Items = []oracle.Enrichment{
			{ValidFrom: "2026-03-14T15:00:00Z", ValidFromConfidence: 0.9, Confidence: 0.8, Importance: 0.7, Category: "appointment"},
			{Recurrence: "weekly", Confidence: 0.95, Importance: 0.4, Category: "person"},
			{Confidence: 1.4, Importance: -0.2},
		}
		return nil
	})

	handler := NewEnricher(stub)
	set := CandidateSet{
		ConversationID: "conv-1",
		ReferenceTime:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Nodes: []common.CandidateNode{
			{Label: "dentist appointment", Type: common.NodeTypeEvent, Provenance: common.Provenance{Sentence: "Dana has a dentist appointment at 3pm."}},
			{Label: "Sam", Type: common.NodeTypeEntity, Provenance: common.Provenance{Sentence: "Dana meets Sam every week."}},
		},
		Edges: []common.CandidateEdge{
			{SourceLabel: "Dana", TargetLabel: "Sam", Relation: "meets"},
		},
	}

	results, err := handler.Process(context.Background(), []pipeline.Chunk{candidateChunk(t, set)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || len(results[0].Outputs) != 1 {
		t.Fatalf("expected one merge output, got %+v", results)
	}
	out := results[0].Outputs[0]
	if out.Stage != pipeline.StageMerge {
		t.Errorf("expected merge output, got %s", out.Stage)
	}

	enriched := out.Payload.(CandidateSet)
	n0 := enriched.Nodes[0]
	want := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	if !n0.ValidFrom.Time.Equal(want) || n0.ValidFrom.Confidence != 0.9 {
		t.Errorf("unexpected valid_from: %+v", n0.ValidFrom)
	}
	if n0.Category != "appointment" {
		t.Errorf("unexpected category: %s", n0.Category)
	}
	if enriched.Nodes[1].Recurrence != "weekly" {
		t.Errorf("unexpected recurrence: %s", enriched.Nodes[1].Recurrence)
	}
	// Out-of-range scores are clamped into [0,1].
	e0 := enriched.Edges[0]
	if e0.Confidence != 1 || e0.Importance != 0 {
		t.Errorf("expected clamped edge scores, got %v/%v", e0.Confidence, e0.Importance)
	}
}

func TestEnricherFailsOnCountMismatch(t *testing.T) {
	stub := oracle.NewStub()
	stub.Handle(oracle.TaskEnrichMetadata, func(in any, out any) error {
		resp := out.(*oracle.EnrichResponse)
		resp.Items = []oracle.Enrichment{{Confidence: 0.5}}
		return nil
	})

	handler := NewEnricher(stub)
	set := CandidateSet{
		ConversationID: "conv-1",
		ReferenceTime:  time.Now(),
		Nodes: []common.CandidateNode{
			{Label: "a", Type: common.NodeTypeEntity},
			{Label: "b", Type: common.NodeTypeEntity},
		},
	}

	results, err := handler.Process(context.Background(), []pipeline.Chunk{candidateChunk(t, set)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Outcome != pipeline.OutcomeFailure {
		t.Errorf("expected failure outcome, got %s", results[0].Outcome)
	}
}

func TestEnricherSkipsEmptySet(t *testing.T) {
	stub := oracle.NewStub()
	handler := NewEnricher(stub)

	results, err := handler.Process(context.Background(), []pipeline.Chunk{candidateChunk(t, CandidateSet{ConversationID: "conv-1", ReferenceTime: time.Now()})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Outcome != pipeline.OutcomeSuccess || len(results[0].Outputs) != 0 {
		t.Errorf("expected empty success, got %+v", results[0])
	}
	if stub.Calls(oracle.TaskEnrichMetadata) != 0 {
		t.Error("empty candidate set must not consult the oracle")
	}
}

func TestParseTimeBound(t *testing.T) {
	cases := []struct {
		name  string
		value string
		conf  float64
		want  time.Time
	}{
		{"rfc3339", "2026-03-14T15:00:00Z", 0.9, time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)},
		{"date only", "2026-03-14", 0.5, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"empty", "", 0.9, time.Time{}},
		{"garbage", "soonish", 0.9, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseTimeBound(tc.value, tc.conf)
			if !got.Time.Equal(tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got.Time)
			}
			if !tc.want.IsZero() && got.Confidence != tc.conf {
				t.Errorf("expected confidence %v, got %v", tc.conf, got.Confidence)
			}
		})
	}
}
