package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/worker"
)

// Enricher is Stage 4: it attaches validity timestamps, recurrence,
// confidence, and importance to still-provisional candidates. It never
// decides identity; that stays with the merge engine.
type Enricher struct {
	oracle oracle.Client
}

// NewEnricher creates the metadata enrichment stage handler.
func NewEnricher(o oracle.Client) worker.Handler {
	e := &Enricher{oracle: o}
	return worker.PerChunk(e.processCandidates)
}

func (e *Enricher) processCandidates(ctx context.Context, chunk pipeline.Chunk) ([]pipeline.Output, error) {
	var set CandidateSet
	if err := chunk.Bind(&set); err != nil {
		return nil, fmt.Errorf("failed to decode candidate payload: %w", err)
	}

	if len(set.Nodes) == 0 && len(set.Edges) == 0 {
		return nil, nil
	}

	// Nodes first, then edges; the response is matched positionally.
	req := oracle.EnrichRequest{
		ReferenceTime: set.ReferenceTime.Format(time.RFC3339),
	}
	for _, n := range set.Nodes {
		req.Items = append(req.Items, oracle.EnrichItem{
			Kind:        "node",
			Label:       n.Label,
			Description: n.Description,
			Sentence:    n.Provenance.Sentence,
		})
	}
	for _, ed := range set.Edges {
		req.Items = append(req.Items, oracle.EnrichItem{
			Kind:        "edge",
			Label:       ed.Relation,
			Description: ed.Descriptor,
			Sentence:    ed.Provenance.Sentence,
		})
	}

	var resp oracle.EnrichResponse
	if err := e.oracle.Judge(ctx, oracle.TaskEnrichMetadata, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) != len(req.Items) {
		return nil, oracle.WrapError(oracle.TaskEnrichMetadata,
			fmt.Errorf("enrichment count mismatch: got %d want %d", len(resp.Items), len(req.Items)))
	}

	for i := range set.Nodes {
		applyNodeEnrichment(&set.Nodes[i], resp.Items[i])
	}
	for i := range set.Edges {
		en := resp.Items[len(set.Nodes)+i]
		set.Edges[i].Confidence = clampScore(en.Confidence)
		set.Edges[i].Importance = clampScore(en.Importance)
	}

	logger.Debug("[Enrich] Candidates enriched",
		"conversation", set.ConversationID, "items", len(resp.Items))

	return []pipeline.Output{{
		Stage:   pipeline.StageMerge,
		BatchID: chunk.BatchID,
		Payload: set,
	}}, nil
}

func applyNodeEnrichment(node *common.CandidateNode, en oracle.Enrichment) {
	node.ValidFrom = parseTimeBound(en.ValidFrom, en.ValidFromConfidence)
	node.ValidUntil = parseTimeBound(en.ValidUntil, en.ValidUntilConfidence)
	node.Recurrence = en.Recurrence
	node.Confidence = clampScore(en.Confidence)
	node.Importance = clampScore(en.Importance)
	node.Category = en.Category
}

func parseTimeBound(value string, confidence float64) common.TimeBound {
	if value == "" {
		return common.TimeBound{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t, err = time.Parse("2006-01-02", value)
		if err != nil {
			return common.TimeBound{}
		}
	}
	return common.TimeBound{Time: t, Confidence: clampScore(confidence)}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
