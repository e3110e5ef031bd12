package oracle

const resolvePrompt = `
# Task Context
You are a helpful assistant specialized in coreference resolution for conversational logs. You will be provided with a window of consecutive log entries.

# Background Data
%s

# Detailed Task Description & Rules
- Rewrite each entry so that every pronoun and ambiguous reference is replaced with the canonical name it refers to.
- References to the speaker in first person ("I", "me", "my") in user entries refer to the canonical user; in assistant entries to the canonical assistant.
- Second-person references ("you", "your") refer to the other party of the exchange.
- Third-person references ("he", "she", "they", "it", "there") must be resolved using earlier entries in the window.
- Do not invent referents: when a reference cannot be resolved from the window, leave it unchanged and say so in the rationale.
- Do not summarize, merge, or reorder entries. Output exactly one resolved statement per input entry that carries resolvable content.
- Entries that are pure noise (markup fragments, raw search results, empty text) may be omitted from the output.

# Immediate Task Description or Request
Return the resolved statements for this window, each referencing the input entry it was derived from.

# Output Formatting
Return a JSON object with a "statements" array. Each element has "log_entry_id", "text" (the rewritten entry) and "rationale" (a short note on the rewrites made). Output must be valid JSON only.
`

const boundaryPrompt = `
# Task Context
You are a helpful assistant that segments a stream of resolved conversational statements into discrete conversations.

# Background Data
%s

# Detailed Task Description & Rules
- A conversation boundary is a point where the topic changes or a clear temporal gap separates the statements.
- Only consider boundary positions at or after the given threshold index.
- The boundary index is the index of the FIRST statement of the next conversation.
- Prefer the strongest topical break; a long time gap between timestamps is also a strong signal.
- If every statement from the threshold to the end continues the same conversation, report that no boundary exists.

# Immediate Task Description or Request
Identify the best conversation boundary at or after the threshold index, or report that none exists.

# Output Formatting
Return a JSON object with "has_boundary" (boolean), "index" (integer) and "rationale" (string). Output must be valid JSON only.
`

const parsePrompt = `
# Task Context
You are a helpful assistant that decomposes a conversation into atomic statements: minimal sentences expressing exactly one proposition each.

# Background Data
%s

# Detailed Task Description & Rules
- Split compound sentences so that each output sentence states exactly one fact, event, preference, goal, or property.
- Preserve the original order of information; later sentences may depend on earlier ones for context.
- Keep the canonical names from the input; never reintroduce pronouns.
- Carry the speaker role of the source statement into each atomic sentence.
- Skip filler with no factual content (greetings, acknowledgements, politeness).
- Keep dates, quantities and qualifiers attached to the proposition they belong to.

# Immediate Task Description or Request
Return the ordered list of atomic sentences for this conversation.

# Output Formatting
Return a JSON object with a "sentences" array. Each element has "text" and "role". Output must be valid JSON only.
`

const extractPrompt = `
# Task Context
You are a helpful assistant that extracts knowledge-graph candidates from a single atomic sentence.

# Background Data
%s

# Detailed Task Description & Rules
- Extract zero or more candidate nodes and zero or more candidate edges from the sentence.
- Node "type" must be exactly one of: Entity, Event, State, Goal, Concept, Property.
- Use the canonical user and assistant names exactly as given when the sentence refers to them.
- The preceding sentences are context only: extract facts stated by the current sentence, not by the context.
- Every edge must connect two labels that appear in the "nodes" list of this response, or the canonical user/assistant names.
- "relation" is a short snake_case type (e.g. meets_with, works_at, prefers); "descriptor" is a full natural-language description.
- A sentence with no extractable facts yields empty lists; that is a valid answer.

# Examples
Sentence: "Alex is meeting Sam tomorrow at 3pm."
Output nodes: Alex (Entity), Sam (Entity), Meeting with Sam (Event).
Output edges: Alex -meets_with-> Sam; Alex -participates_in-> Meeting with Sam.

# Immediate Task Description or Request
Extract the candidate nodes and edges for this sentence.

# Output Formatting
Return a JSON object with "nodes" and "edges" arrays as specified. Output must be valid JSON only.
`

const enrichPrompt = `
# Task Context
You are a helpful assistant that attaches temporal validity, confidence, and importance metadata to extracted knowledge-graph candidates.

# Background Data
%s

# Detailed Task Description & Rules
- Produce exactly one enrichment per input item, in the same order.
- Resolve relative time expressions ("tomorrow", "next week", "since May") against the given reference time; output ISO 8601 timestamps.
- Leave valid_from or valid_until empty when the sentence gives no temporal anchor, and set the matching confidence to 0.
- "recurrence" captures repetition ("every Monday" -> weekly); use an empty string for one-off facts.
- "confidence" reflects how certain the extraction is given the sentence wording (hedged statements score lower).
- "importance" reflects how salient the fact is for a long-term memory of the user (core biographical facts score high, passing remarks low).
- All scores are between 0 and 1.
- For node items, suggest the best-fitting taxonomy "category"; leave it empty for edge items.

# Immediate Task Description or Request
Enrich every item in the batch.

# Output Formatting
Return a JSON object with an "items" array of enrichments, one per input item, in input order. Output must be valid JSON only.
`

const decideMergePrompt = `
# Task Context
You are a helpful assistant that decides whether a newly extracted candidate node denotes the same real-world referent as an existing knowledge-graph node.

# Background Data
%s

# Detailed Task Description & Rules
- Compare the candidate against each match using label, aliases, type, description, and the match's neighborhood.
- Consider nodes the same referent despite naming differences (nicknames, abbreviations, case, added surnames).
- Be careful: similarly named but distinct referents must NOT be merged (two different people named Sam; a company vs. its product).
- Type mismatches are a strong signal against merging unless the descriptions clearly describe the same referent.
- When several matches qualify, pick the one whose description and neighborhood agree most with the candidate.
- When in doubt, prefer creating a new node; wrong merges are much harder to undo than duplicates.

# Immediate Task Description or Request
Decide whether to merge the candidate into one of the matches or create a new node.

# Output Formatting
Return a JSON object with "merge" (boolean), "merge_into_id" (string, empty when not merging) and "rationale". Output must be valid JSON only.
`

const combinePrompt = `
# Task Context
You are a helpful assistant that reconciles the attributes of an existing knowledge-graph node with a newly observed candidate describing the same referent.

# Background Data
%s

# Detailed Task Description & Rules
- Keep the existing label unless the incoming label is clearly more complete or more canonical.
- The combined description must integrate all information from both descriptions without losing existing detail; resolve contradictions in favor of the newer observation and note superseded facts as past state.
- The combined aliases are the union of both alias lists plus any label not chosen as the combined label, without duplicates.
- Combined confidence must reflect both prior and new evidence: repeated consistent observations raise it, contradictions lower it.
- Combined importance is at least the maximum of the two inputs.
- Keep the incoming recurrence when it is more specific than the existing one.
- This decision must be deterministic: identical inputs must always produce the identical output.

# Immediate Task Description or Request
Return the reconciled attribute set.

# Output Formatting
Return a JSON object with a "combined" object holding "label", "description", "aliases", "recurrence", "confidence" and "importance". Output must be valid JSON only.
`

const classifyPrompt = `
# Task Context
You are a helpful assistant that classifies a knowledge-graph node against a fixed external taxonomy.

# Background Data
%s

# Detailed Task Description & Rules
- Choose exactly one category from the provided list; never invent a category.
- Base the choice on the node's label, type, and description together.
- "confidence" reflects how unambiguous the fit is (a node fitting several categories about equally scores low).

# Immediate Task Description or Request
Classify the node.

# Output Formatting
Return a JSON object with "category" and "confidence". Output must be valid JSON only.
`
