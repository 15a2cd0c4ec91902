// Package extract turns a page URL into its title, HTTP status and visible
// text.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultNavigationTimeout bounds one page load.
	DefaultNavigationTimeout = 45 * time.Second

	// minPrimaryTextLen is the length the primary text must exceed before the
	// whole-document fallback is skipped.
	minPrimaryTextLen = 200

	userAgent = "Mozilla/5.0 (compatible; better404-indexer/1.0; +https://better404.dev)"
)

// Page is the result of visiting one URL. Status is nil when the page could
// not be loaded.
type Page struct {
	Title  string
	Status *int
	Text   string
}

// Extractor loads a URL and returns its content. A failed navigation yields
// an empty Page rather than an error.
type Extractor interface {
	Extract(ctx context.Context, url string) (*Page, error)
	Close() error
}

// Renderer names an Extractor implementation.
type Renderer string

const (
	RendererChrome Renderer = "chrome"
	RendererHTTP   Renderer = "http"
)

// New builds the extractor selected by renderer.
func New(renderer Renderer, timeout time.Duration) (Extractor, error) {
	switch renderer {
	case RendererChrome, "":
		return NewChromeExtractor(WithNavigationTimeout(timeout))
	case RendererHTTP:
		return NewStaticExtractor(WithNavigationTimeout(timeout)), nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", renderer)
	}
}

type options struct {
	navTimeout time.Duration
}

type Option func(*options)

// WithNavigationTimeout sets the per-page load timeout. Zero keeps the default.
func WithNavigationTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.navTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{navTimeout: DefaultNavigationTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// chooseText keeps primary when it is long enough, otherwise returns the
// whitespace-collapsed fallback.
func chooseText(primary, fallback string) string {
	primary = strings.TrimSpace(primary)
	if utf8.RuneCountInString(primary) > minPrimaryTextLen {
		return primary
	}
	return collapseWhitespace(fallback)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func intPtr(v int) *int {
	return &v
}
