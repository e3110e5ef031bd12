package common

import "time"

// Role identifies the speaker of a log entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// NodeType classifies a graph node into one of the fixed categories the
// pipeline recognizes.
type NodeType string

const (
	NodeTypeEntity   NodeType = "Entity"
	NodeTypeEvent    NodeType = "Event"
	NodeTypeState    NodeType = "State"
	NodeTypeGoal     NodeType = "Goal"
	NodeTypeConcept  NodeType = "Concept"
	NodeTypeProperty NodeType = "Property"
)

// NodeTypes lists every valid node type. Used for validation and for
// constraining structured oracle output.
var NodeTypes = []NodeType{
	NodeTypeEntity,
	NodeTypeEvent,
	NodeTypeState,
	NodeTypeGoal,
	NodeTypeConcept,
	NodeTypeProperty,
}

// ValidNodeType reports whether t is one of the fixed node types.
func ValidNodeType(t NodeType) bool {
	for _, nt := range NodeTypes {
		if t == nt {
			return true
		}
	}
	return false
}

// LogEntry is one raw utterance from any source channel (chat, mail,
// platform adapter). Entries are immutable once appended; only the
// processed flag mutates, and only the resolution windower flips it.
type LogEntry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Source    string    `json:"source"`
	Processed bool      `json:"processed"`
}

// ResolvedStatement is the entity-resolution output for one LogEntry:
// the same text with ambiguous references rewritten to canonical names,
// plus the rationale for the rewrite.
type ResolvedStatement struct {
	ID         string    `json:"id"`
	LogEntryID string    `json:"log_entry_id"`
	Text       string    `json:"text"`
	Rationale  string    `json:"rationale"`
	Timestamp  time.Time `json:"timestamp"`
	Role       Role      `json:"role"`
	Source     string    `json:"source"`
}

// Conversation is a maximal contiguous run of resolved statements that
// the boundary stage judged topically and temporally coherent.
type Conversation struct {
	ID         string              `json:"id"`
	Statements []ResolvedStatement `json:"statements"`
}

// AtomicStatement is a minimal unit expressing exactly one proposition,
// produced by decomposing a conversation. Position preserves the original
// sequence order within the conversation.
type AtomicStatement struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Position       int       `json:"position"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	Role           Role      `json:"role"`
	Source         string    `json:"source"`
}

// Provenance links a graph element back to the raw data it was derived
// from.
type Provenance struct {
	Source      string `json:"source"`
	LogEntryID  string `json:"log_entry_id"`
	StatementID string `json:"statement_id"`
	Sentence    string `json:"sentence"`
}

// TimeBound is a validity timestamp with its own confidence. Zero Time
// means the bound is unknown.
type TimeBound struct {
	Time       time.Time `json:"time"`
	Confidence float64   `json:"confidence"`
}

// CandidateNode is a provisional node extracted from one atomic
// statement. It stays provisional until the merge engine decides whether
// it denotes a new node or an update to an existing one.
type CandidateNode struct {
	Label       string     `json:"label"`
	Type        NodeType   `json:"type"`
	Description string     `json:"description"`
	Aliases     []string   `json:"aliases"`
	ValidFrom   TimeBound  `json:"valid_from"`
	ValidUntil  TimeBound  `json:"valid_until"`
	Recurrence  string     `json:"recurrence"`
	Confidence  float64    `json:"confidence"`
	Importance  float64    `json:"importance"`
	Category    string     `json:"category"`
	Provenance  Provenance `json:"provenance"`
}

// CandidateEdge is a provisional directed relationship between two
// candidate labels, extracted from one atomic statement.
type CandidateEdge struct {
	SourceLabel string     `json:"source_label"`
	TargetLabel string     `json:"target_label"`
	Relation    string     `json:"relation"`
	Descriptor  string     `json:"descriptor"`
	Confidence  float64    `json:"confidence"`
	Importance  float64    `json:"importance"`
	Provenance  Provenance `json:"provenance"`
}

// Node is a persisted graph entity. The merge engine is the only writer;
// Version increments on every update and guards optimistic writes.
type Node struct {
	ID            string     `json:"id"`
	Label         string     `json:"label"`
	SemanticLabel string     `json:"semantic_label"`
	Type          NodeType   `json:"type"`
	Aliases       []string   `json:"aliases"`
	Description   string     `json:"description"`
	ValidFrom     TimeBound  `json:"valid_from"`
	ValidUntil    TimeBound  `json:"valid_until"`
	Recurrence    string     `json:"recurrence"`
	Confidence    float64    `json:"confidence"`
	Importance    float64    `json:"importance"`
	Provenance    Provenance `json:"provenance"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Edge is a persisted directed relationship between two nodes.
type Edge struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"source_id"`
	TargetID   string     `json:"target_id"`
	Relation   string     `json:"relation"`
	Descriptor string     `json:"descriptor"`
	Sentence   string     `json:"sentence"`
	Confidence float64    `json:"confidence"`
	Importance float64    `json:"importance"`
	Provenance Provenance `json:"provenance"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TaxonomyLink is a weighted, many-valued classification of a node
// against an external taxonomy category. Uniqueness on (node, category):
// repeated classification increments Count and refreshes LastSeen.
type TaxonomyLink struct {
	NodeID     string    `json:"node_id"`
	Category   string    `json:"category"`
	Count      int       `json:"count"`
	Confidence float64   `json:"confidence"`
	LastSeen   time.Time `json:"last_seen"`
}
