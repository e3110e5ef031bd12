package stages

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/logger"
	"github.com/chronicler-ai/chronicler/pkg/oracle"
	"github.com/chronicler-ai/chronicler/pkg/pipeline"
	"github.com/chronicler-ai/chronicler/pkg/pipeline/worker"
)

// Atomizer is Stage 2: it decomposes each conversation into atomic
// statements, minimal units expressing exactly one proposition, which
// bounds the complexity of every downstream extraction call.
type Atomizer struct {
	oracle oracle.Client
}

// NewAtomizer creates the atomic parsing stage handler.
func NewAtomizer(o oracle.Client) worker.Handler {
	a := &Atomizer{oracle: o}
	return worker.PerChunk(a.processConversation)
}

func (a *Atomizer) processConversation(ctx context.Context, chunk pipeline.Chunk) ([]pipeline.Output, error) {
	var conv ConversationPayload
	if err := chunk.Bind(&conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation payload: %w", err)
	}

	if len(conv.Statements) == 0 {
		return nil, nil
	}

	req := oracle.ParseRequest{}
	for _, st := range conv.Statements {
		req.Statements = append(req.Statements, oracle.ParseStatement{
			Role:      string(st.Role),
			Timestamp: st.Timestamp.Format(time.RFC3339),
			Text:      st.Text,
		})
	}

	var resp oracle.ParseResponse
	if err := a.oracle.Judge(ctx, oracle.TaskParseStatements, req, &resp); err != nil {
		return nil, err
	}

	// The earliest statement anchors relative temporal expressions for
	// the whole conversation.
	referenceTime := conv.Statements[0].Timestamp
	for _, st := range conv.Statements[1:] {
		if st.Timestamp.Before(referenceTime) {
			referenceTime = st.Timestamp
		}
	}
	source := conv.Statements[0].Source

	sentences := make([]common.AtomicStatement, 0, len(resp.Sentences))
	for i, s := range resp.Sentences {
		if s.Text == "" {
			continue
		}
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		sentences = append(sentences, common.AtomicStatement{
			ID:             id,
			ConversationID: conv.ConversationID,
			Position:       i,
			Text:           s.Text,
			Timestamp:      referenceTime,
			Role:           common.Role(s.Role),
			Source:         source,
		})
	}

	logger.Debug("[Atomize] Conversation parsed",
		"conversation", conv.ConversationID, "statements", len(conv.Statements), "sentences", len(sentences))

	if len(sentences) == 0 {
		return nil, nil
	}

	return []pipeline.Output{{
		Stage:   pipeline.StageExtract,
		BatchID: chunk.BatchID,
		Payload: SentencesPayload{
			ConversationID: conv.ConversationID,
			ReferenceTime:  referenceTime,
			Sentences:      sentences,
		},
	}}, nil
}
