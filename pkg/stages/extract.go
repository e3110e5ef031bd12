package stages

import (
	"context"
	"fmt"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/worker"
)

// ExtractorConfig carries the canonical singleton labels so extraction
// names the user and assistant consistently.
type ExtractorConfig struct {
	CanonicalUser      string
	CanonicalAssistant string
}

// Extractor is Stage 3: for each atomic sentence, in conversation
// order, it derives candidate nodes and edges with the literal sentence
// as provenance. All identity decisions are deferred to the merge
// engine.
type Extractor struct {
	oracle oracle.Client
	cfg    ExtractorConfig
}

// NewExtractor creates the fact extraction stage handler.
func NewExtractor(o oracle.Client, cfg ExtractorConfig) worker.Handler {
	e := &Extractor{oracle: o, cfg: cfg}
	return worker.PerChunk(e.processSentences)
}

func (e *Extractor) processSentences(ctx context.Context, chunk pipeline.Chunk) ([]pipeline.Output, error) {
	var payload SentencesPayload
	if err := chunk.Bind(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode sentences payload: %w", err)
	}

	set := CandidateSet{
		ConversationID: payload.ConversationID,
		ReferenceTime:  payload.ReferenceTime,
	}

	// Sentences are processed strictly in order; later sentences rely
	// on earlier ones as context.
	preceding := make([]string, 0, len(payload.Sentences))
	for _, sentence := range payload.Sentences {
		req := oracle.ExtractRequest{
			Sentence:           sentence.Text,
			Preceding:          preceding,
			CanonicalUser:      e.cfg.CanonicalUser,
			CanonicalAssistant: e.cfg.CanonicalAssistant,
		}

		var resp oracle.ExtractResponse
		if err := e.oracle.Judge(ctx, oracle.TaskExtractFacts, req, &resp); err != nil {
			return nil, err
		}
		preceding = append(preceding, sentence.Text)

		prov := common.Provenance{
			Source:      sentence.Source,
			StatementID: sentence.ID,
			Sentence:    sentence.Text,
		}

		for _, n := range resp.Nodes {
			nodeType := common.NodeType(n.Type)
			if !common.ValidNodeType(nodeType) {
				logger.Warn("[Extract] Dropping candidate with unknown type",
					"label", n.Label, "type", n.Type)
				continue
			}
			set.Nodes = append(set.Nodes, common.CandidateNode{
				Label:       n.Label,
				Type:        nodeType,
				Description: n.Description,
				Aliases:     n.Aliases,
				Provenance:  prov,
			})
		}
		for _, ed := range resp.Edges {
			if ed.SourceLabel == "" || ed.TargetLabel == "" || ed.Relation == "" {
				continue
			}
			set.Edges = append(set.Edges, common.CandidateEdge{
				SourceLabel: ed.SourceLabel,
				TargetLabel: ed.TargetLabel,
				Relation:    ed.Relation,
				Descriptor:  ed.Descriptor,
				Provenance:  prov,
			})
		}
	}

	logger.Debug("[Extract] Conversation extracted",
		"conversation", payload.ConversationID,
		"sentences", len(payload.Sentences),
		"nodes", len(set.Nodes),
		"edges", len(set.Edges))

	if len(set.Nodes) == 0 && len(set.Edges) == 0 {
		return nil, nil
	}

	return []pipeline.Output{{
		Stage:   pipeline.StageEnrich,
		BatchID: chunk.BatchID,
		Payload: set,
	}}, nil
}
