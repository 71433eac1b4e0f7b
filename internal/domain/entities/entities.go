// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import "time"

// KnowledgeEntry is one immutable reference Q&A record with provenance metadata.
// A single entry may be indexed under several surface phrasings (the main
// question plus AltQuestions), all sharing the entry's ID and Answer.
type KnowledgeEntry struct {
	ID           string
	Question     string
	Answer       string
	Category     string
	Tags         []string
	AltQuestions []string
	Source       string
	Author       string
	BookTitle    string
	Page         string
	SourceURL    string
}

// RetrievalResult is a read-only projection of one knowledge neighbor.
// It is returned by context search and never persisted.
type RetrievalResult struct {
	Question   string // the indexed surface phrasing that matched
	Answer     string
	Similarity float64 // in [0,1], higher is closer
	Source     string
	Category   string
	Author     string
	BookTitle  string
	Page       string
	SourceURL  string
}

// CacheHit is a memoized answer served for a semantically similar question.
type CacheHit struct {
	Answer          string
	Sources         string
	MatchedQuestion string
	Similarity      float64
}

// ParsedResponse is the structured form of one raw model completion.
// OffTopic and Uncertain are independent; both may be true.
// Suggestions holds at most three follow-up questions.
type ParsedResponse struct {
	Answer       string
	OffTopic     bool
	Uncertain    bool
	Suggestions  []string
	FromFallback bool // suggestions were recovered without the section marker
}

// Turn is one message of a conversation, oldest-first when in a slice.
type Turn struct {
	Role      string // "user" or "assistant"
	Text      string
	CreatedAt time.Time
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AskResult is the outcome of one full question pipeline run.
// An empty Answer means no answer was available (model down or empty
// completion); callers render their own apology text for that case.
type AskResult struct {
	Answer      string
	Sources     []string
	SourceURLs  []string
	OffTopic    bool
	Uncertain   bool
	Suggestions []string
	FromCache   bool
	Similarity  float64
}

// Answered reports whether the pipeline produced an answer.
func (r *AskResult) Answered() bool {
	return r != nil && r.Answer != ""
}
