package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	cleanMaxInputRunes  = 12000
	cleanMaxTokens      = 1200
	defaultCleanTimeout = 60 * time.Second

	cleanSystemPrompt = "You rewrite webpage text into concise, structured Markdown. Keep headings and lists. Remove nav/footer fluff."
)

// Cleaner rewrites extracted page text into compact Markdown.
type Cleaner struct {
	llm     Completer
	timeout time.Duration
}

// NewCleaner returns a cleaner backed by llm. A nil llm makes Clean a no-op.
func NewCleaner(llm Completer, timeout time.Duration) *Cleaner {
	if timeout <= 0 {
		timeout = defaultCleanTimeout
	}
	return &Cleaner{llm: llm, timeout: timeout}
}

// Clean returns the rewritten text, or text unchanged if the rewrite fails
// or is empty.
func (c *Cleaner) Clean(ctx context.Context, pageURL, title, text string) string {
	if c == nil || c.llm == nil || strings.TrimSpace(text) == "" {
		return text
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user := fmt.Sprintf("Rewrite into concise Markdown, preserving key headings:\nURL: %s\nTITLE: %s\nTEXT:\n%s",
		pageURL, title, truncateRunes(text, cleanMaxInputRunes))

	out, err := c.llm.Complete(ctx, cleanSystemPrompt, user, cleanMaxTokens)
	if err != nil {
		slog.Debug("text cleanup failed", "url", pageURL, "error", err)
		return text
	}
	if strings.TrimSpace(out) == "" {
		return text
	}
	return out
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
