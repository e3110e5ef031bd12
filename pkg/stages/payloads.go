// Package stages implements the six pipeline stages as handlers for the
// shared worker runtime, plus the windower feeding the first stage.
package stages

import (
	"time"

	"github.com/chronicler-ai/chronicler/pkg/common"
)

// StatementPayload is the boundary queue's chunk payload: one resolved
// statement.
type StatementPayload struct {
	Statement common.ResolvedStatement `json:"statement"`
}

// ConversationPayload is the atomize queue's chunk payload: one detected
// conversation with its ordered statements.
type ConversationPayload struct {
	ConversationID string                     `json:"conversation_id"`
	Statements     []common.ResolvedStatement `json:"statements"`
}

// SentencesPayload is the extract queue's chunk payload: a conversation
// decomposed into ordered atomic statements. ReferenceTime anchors
// relative temporal expressions downstream.
type SentencesPayload struct {
	ConversationID string                   `json:"conversation_id"`
	ReferenceTime  time.Time                `json:"reference_time"`
	Sentences      []common.AtomicStatement `json:"sentences"`
}

// CandidateSet is the payload flowing from extraction to enrichment and
// on to the merge engine: all candidates of one conversation. Extraction
// leaves the enrichment fields zero; enrichment fills them in.
type CandidateSet struct {
	ConversationID string                 `json:"conversation_id"`
	ReferenceTime  time.Time              `json:"reference_time"`
	Nodes          []common.CandidateNode `json:"nodes"`
	Edges          []common.CandidateEdge `json:"edges"`
}
