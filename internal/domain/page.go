package domain

import "time"

// Page is one crawled URL belonging to a Site. (DomainID, URL) is unique.
type Page struct {
	ID            string
	DomainID      string
	URL           string
	Title         *string
	Status        *int
	ContentHash   string
	LastCrawledAt time.Time
}

// Chunk is an ordered window of a page's text. A nil Embedding means the
// vector could not be produced; such chunks are stored but never ranked.
type Chunk struct {
	ID        string
	PageID    string
	Ord       int
	Text      string
	Embedding []float32
}

// HasEmbedding reports whether the chunk carries a vector.
func (c Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// RecommendationEvent is an append-only record of a served recommendation.
type RecommendationEvent struct {
	DomainID   string
	RequestURL string
	Referrer   string
	Results    []RecommendationResult
	LatencyMs  int64
}

// RecommendationResult is a single ranked hit.
type RecommendationResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score"`
}

// IndexPageInput is one visited page and its freshly built chunk set.
type IndexPageInput struct {
	DomainID    string
	URL         string
	Title       *string
	Status      *int
	ContentHash string
	Chunks      []Chunk
}

// IndexPageResult reports what was stored for a page.
type IndexPageResult struct {
	PageID        string
	Stored        int
	WithoutVector int
	Skipped       int
}
