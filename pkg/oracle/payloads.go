package oracle

// WindowEntry is one log entry presented to the resolution task.
type WindowEntry struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// ResolveRequest carries an overlapping window of raw log entries. The
// canonical labels let the oracle rewrite first/second-person references
// to stable names.
type ResolveRequest struct {
	Entries            []WindowEntry `json:"entries"`
	CanonicalUser      string        `json:"canonical_user"`
	CanonicalAssistant string        `json:"canonical_assistant"`
}

// ResolvedEntry is the rewritten form of one window entry.
type ResolvedEntry struct {
	LogEntryID string `json:"log_entry_id" jsonschema_description:"Identifier of the input entry this statement resolves"`
	Text       string `json:"text" jsonschema_description:"Entry text with all ambiguous references rewritten to canonical names"`
	Rationale  string `json:"rationale" jsonschema_description:"Short explanation of the rewrites made, empty if none"`
}

// ResolveResponse lists one resolved statement per resolvable input entry.
type ResolveResponse struct {
	Statements []ResolvedEntry `json:"statements"`
}

// BoundaryStatement is one resolved statement presented to the boundary
// task, indexed by its position in the window.
type BoundaryStatement struct {
	Index     int    `json:"index"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// BoundaryRequest carries a sliding window of resolved statements and the
// threshold position the scan starts from.
type BoundaryRequest struct {
	Statements []BoundaryStatement `json:"statements"`
	Threshold  int                 `json:"threshold"`
}

// BoundaryResponse reports the best conversation boundary at or after the
// threshold, if any.
type BoundaryResponse struct {
	HasBoundary bool   `json:"has_boundary" jsonschema_description:"True when a topical or temporal break exists at or after the threshold index"`
	Index       int    `json:"index" jsonschema_description:"Index of the first statement belonging to the next conversation; ignored when has_boundary is false"`
	Rationale   string `json:"rationale" jsonschema_description:"Short explanation of the chosen boundary"`
}

// ParseStatement is one conversation statement presented to the atomic
// parsing task.
type ParseStatement struct {
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// ParseRequest carries one full conversation to decompose.
type ParseRequest struct {
	Statements []ParseStatement `json:"statements"`
}

// AtomicSentence is one minimal proposition from the conversation, in
// original order.
type AtomicSentence struct {
	Text string `json:"text" jsonschema_description:"A standalone sentence expressing exactly one proposition"`
	Role string `json:"role" jsonschema_description:"Role of the speaker the proposition originates from: user, assistant or system"`
}

// ParseResponse lists the atomic sentences in conversation order.
type ParseResponse struct {
	Sentences []AtomicSentence `json:"sentences"`
}

// ExtractRequest carries one atomic sentence plus the sentences that
// preceded it in the same conversation.
type ExtractRequest struct {
	Sentence           string   `json:"sentence"`
	Preceding          []string `json:"preceding"`
	CanonicalUser      string   `json:"canonical_user"`
	CanonicalAssistant string   `json:"canonical_assistant"`
}

// ExtractedNode is a provisional node proposed by the extraction task.
type ExtractedNode struct {
	Label       string   `json:"label" jsonschema_description:"Canonical name of the entity, event, state, goal, concept or property"`
	Type        string   `json:"type" jsonschema_description:"One of: Entity, Event, State, Goal, Concept, Property"`
	Description string   `json:"description" jsonschema_description:"What the sentence states about this node"`
	Aliases     []string `json:"aliases" jsonschema_description:"Alternative names the sentence uses for this node"`
}

// ExtractedEdge is a provisional relationship proposed by the extraction
// task, referring to extracted node labels.
type ExtractedEdge struct {
	SourceLabel string `json:"source_label" jsonschema_description:"Label of the node the relationship starts from"`
	TargetLabel string `json:"target_label" jsonschema_description:"Label of the node the relationship points to"`
	Relation    string `json:"relation" jsonschema_description:"Short relationship type, snake_case, e.g. meets_with"`
	Descriptor  string `json:"descriptor" jsonschema_description:"Natural-language description of the relationship"`
}

// ExtractResponse lists candidate nodes and edges for one sentence. Both
// lists may be empty.
type ExtractResponse struct {
	Nodes []ExtractedNode `json:"nodes"`
	Edges []ExtractedEdge `json:"edges"`
}

// EnrichItem is one candidate node or edge to enrich, together with its
// source sentence.
type EnrichItem struct {
	Kind        string `json:"kind"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Sentence    string `json:"sentence"`
}

// EnrichRequest batches a conversation's candidates for one enrichment
// call. ReferenceTime anchors relative expressions like "tomorrow".
type EnrichRequest struct {
	ReferenceTime string       `json:"reference_time"`
	Items         []EnrichItem `json:"items"`
}

// Enrichment carries temporal and scoring attributes for one candidate,
// positionally matched to the request items.
type Enrichment struct {
	ValidFrom            string  `json:"valid_from" jsonschema_description:"ISO 8601 start of validity, empty when unknown"`
	ValidFromConfidence  float64 `json:"valid_from_confidence" jsonschema_description:"Confidence in valid_from, 0 to 1"`
	ValidUntil           string  `json:"valid_until" jsonschema_description:"ISO 8601 end of validity, empty when unknown or open-ended"`
	ValidUntilConfidence float64 `json:"valid_until_confidence" jsonschema_description:"Confidence in valid_until, 0 to 1"`
	Recurrence           string  `json:"recurrence" jsonschema_description:"Recurrence qualifier such as once, daily, weekly; empty for point-in-time facts"`
	Confidence           float64 `json:"confidence" jsonschema_description:"Extraction certainty, 0 to 1"`
	Importance           float64 `json:"importance" jsonschema_description:"Salience of the fact, 0 to 1"`
	Category             string  `json:"category" jsonschema_description:"Suggested taxonomy category for node items, empty for edges"`
}

// EnrichResponse lists one enrichment per request item, in order.
type EnrichResponse struct {
	Items []Enrichment `json:"items"`
}

// MergeCandidate is the enriched candidate node presented to the merge
// decision task.
type MergeCandidate struct {
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
	Sentence    string   `json:"sentence"`
}

// MergeMatch is one existing node that resembles the candidate, with its
// immediate neighborhood for context.
type MergeMatch struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Aliases      []string `json:"aliases"`
	Neighborhood []string `json:"neighborhood"`
}

// DecideMergeRequest asks whether the candidate denotes one of the
// matching existing nodes.
type DecideMergeRequest struct {
	Candidate MergeCandidate `json:"candidate"`
	Matches   []MergeMatch   `json:"matches"`
}

// DecideMergeResponse is the merge verdict.
type DecideMergeResponse struct {
	Merge       bool   `json:"merge" jsonschema_description:"True when the candidate denotes an existing node"`
	MergeIntoID string `json:"merge_into_id" jsonschema_description:"Identifier of the existing node to merge into; ignored when merge is false"`
	Rationale   string `json:"rationale" jsonschema_description:"Short explanation of the verdict"`
}

// NodeData is the attribute set exchanged with the combination task.
type NodeData struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
	Recurrence  string   `json:"recurrence"`
	Confidence  float64  `json:"confidence" jsonschema_description:"Combined certainty reflecting both prior and new evidence, 0 to 1"`
	Importance  float64  `json:"importance" jsonschema_description:"Combined salience, 0 to 1"`
}

// CombineRequest carries the existing node's attributes and the incoming
// candidate's attributes. The response must be a deterministic function of
// this input.
type CombineRequest struct {
	Existing NodeData `json:"existing"`
	Incoming NodeData `json:"incoming"`
}

// CombineResponse is the reconciled attribute set.
type CombineResponse struct {
	Combined NodeData `json:"combined"`
}

// ClassifyRequest asks for a taxonomy category for one node.
type ClassifyRequest struct {
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
}

// ClassifyResponse names the best-fitting category.
type ClassifyResponse struct {
	Category   string  `json:"category" jsonschema_description:"The best-fitting category identifier from the provided list"`
	Confidence float64 `json:"confidence" jsonschema_description:"Confidence in the classification, 0 to 1"`
}
