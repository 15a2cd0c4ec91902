package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const (
	fallbackQuery = "not found"

	enrichMaxTokens      = 40
	defaultEnrichTimeout = 5 * time.Second

	enrichSystemPrompt = "You transform URL paths into a concise, typo-corrected search query that captures user intent for internal search. Output only the query, no quotes."
)

var pathSeparators = strings.NewReplacer("-", " ", "_", " ")

// BuildQuery turns the path of a dead URL into search text. Segments are
// joined with spaces and dashes and underscores become spaces.
func BuildQuery(deadURL string) string {
	u, err := url.Parse(deadURL)
	if err != nil {
		return fallbackQuery
	}

	var tokens []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "" {
			continue
		}
		tokens = append(tokens, pathSeparators.Replace(seg))
	}

	query := strings.Join(tokens, " ")
	if query == "" {
		return fallbackQuery
	}
	return query
}

// QueryBuilder produces the text embedded for a recommendation lookup.
type QueryBuilder struct {
	llm     Completer
	timeout time.Duration
}

// NewQueryBuilder returns a builder that enriches queries through llm. A nil
// llm disables enrichment.
func NewQueryBuilder(llm Completer, timeout time.Duration) *QueryBuilder {
	if timeout <= 0 {
		timeout = defaultEnrichTimeout
	}
	return &QueryBuilder{llm: llm, timeout: timeout}
}

// Build returns the rewritten query, or the plain path query when the rewrite
// fails or comes back empty.
func (b *QueryBuilder) Build(ctx context.Context, deadURL, referrer string) string {
	base := BuildQuery(deadURL)
	if b == nil || b.llm == nil {
		return base
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.llm.Complete(ctx, enrichSystemPrompt, enrichUserPrompt(deadURL, base, referrer), enrichMaxTokens)
	if err != nil {
		slog.Debug("query enrichment failed", "url", deadURL, "error", err)
		return base
	}

	out = strings.Trim(strings.TrimSpace(out), `"'`)
	if out == "" {
		return base
	}
	return out
}

func enrichUserPrompt(deadURL, tokens, referrer string) string {
	if referrer == "" {
		referrer = "n/a"
	}
	return fmt.Sprintf(
		"URL: %s\nPath tokens: %s\nReferrer: %s\nTask: Produce a short search query (3-10 words) correcting typos and expanding likely synonyms.",
		deadURL, tokens, referrer,
	)
}
