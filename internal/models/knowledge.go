package models

// KnowledgeSection is one expert-authored documentation section from the
// pre-built index. Read-only at analysis time.
type KnowledgeSection struct {
	ID             string   `json:"id"`
	SourceDocument string   `json:"source_document"`
	PageStart      int      `json:"page_start"`
	PageEnd        int      `json:"page_end"`
	ComponentTags  []string `json:"component_tags"`
	IssueTypeTags  []string `json:"issue_type_tags"`
	Keywords       []string `json:"keywords"`
	Text           string   `json:"text"`
}

// SectionMatch pairs a retrieved section with its relevance score in [0,1].
type SectionMatch struct {
	Section KnowledgeSection `json:"section"`
	Score   float64          `json:"score"`
}

// RetrievalResult holds the ranked matches for one generated query.
// Transient; exists only for the duration of one analysis.
type RetrievalResult struct {
	Query   string         `json:"query"`
	Matches []SectionMatch `json:"matches"`
}
