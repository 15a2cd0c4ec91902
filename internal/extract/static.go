package extract

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxPageBytes   = 10 << 20
	strippedTags   = "script, style, noscript, nav, footer, header"
	blockSelectors = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th, dt, dd"
)

// StaticExtractor fetches raw HTML over HTTP without running scripts.
type StaticExtractor struct {
	opts   options
	client *http.Client
}

func NewStaticExtractor(opts ...Option) *StaticExtractor {
	return &StaticExtractor{
		opts:   buildOptions(opts),
		client: &http.Client{},
	}
}

// Extract fetches url and reads its title and block text.
func (e *StaticExtractor) Extract(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.navTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Page{}, nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		slog.Warn("fetch failed", "url", url, "error", err)
		return &Page{}, nil
	}
	defer resp.Body.Close()

	page := &Page{Status: intPtr(resp.StatusCode)}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		slog.Warn("html parse failed", "url", url, "error", err)
		return page, nil
	}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.Text = documentText(doc)
	return page, nil
}

func (e *StaticExtractor) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func documentText(doc *goquery.Document) string {
	doc.Find(strippedTags).Remove()

	var blocks []string
	doc.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are read through their outermost match.
		if s.ParentsFiltered(blockSelectors).Length() > 0 {
			return
		}
		if text := collapseWhitespace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})

	return chooseText(strings.Join(blocks, "\n"), doc.Find("body").Text())
}
