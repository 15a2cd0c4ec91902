// Package sitemap discovers the page URLs of a site from its sitemap tree.
package sitemap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/better404/better404/internal/domain"
)

const (
	DefaultMaxDepth     = 3
	DefaultPageLimit    = 10000
	DefaultFetchTimeout = 15 * time.Second

	maxBodyBytes = 50 << 20
)

var (
	locPattern     = regexp.MustCompile(`(?is)<loc>\s*([^<\s]+)\s*</loc>`)
	robotsSitemap  = regexp.MustCompile(`(?i)^\s*Sitemap:\s*(\S+)`)
	candidatePaths = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap-index.xml", "/sitemap1.xml"}
)

// SeedPolicy decides how many seed sitemaps are scanned.
type SeedPolicy int

const (
	// FirstNonEmpty stops after the first seed that yields any page.
	FirstNonEmpty SeedPolicy = iota
	// All scans every seed and unions the results.
	All
)

// ParseSeedPolicy maps "first" and "all" to a SeedPolicy.
func ParseSeedPolicy(s string) (SeedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return FirstNonEmpty, nil
	case "all":
		return All, nil
	default:
		return FirstNonEmpty, fmt.Errorf("unknown seed policy %q", s)
	}
}

// Resolver walks robots.txt and sitemap documents for a domain.
type Resolver struct {
	client       *http.Client
	fetchTimeout time.Duration
	maxDepth     int
	pageLimit    int
	policy       SeedPolicy
	baseURL      func(domain string) string
	userAgent    string
}

type Option func(*Resolver)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.fetchTimeout = d }
}

func WithSeedPolicy(p SeedPolicy) Option {
	return func(r *Resolver) { r.policy = p }
}

func WithPageLimit(n int) Option {
	return func(r *Resolver) { r.pageLimit = n }
}

func WithMaxDepth(n int) Option {
	return func(r *Resolver) { r.maxDepth = n }
}

// WithBaseURL overrides how a domain maps to the origin seeds are resolved
// against. The default is https://<domain>.
func WithBaseURL(fn func(domain string) string) Option {
	return func(r *Resolver) { r.baseURL = fn }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client:       &http.Client{},
		fetchTimeout: DefaultFetchTimeout,
		maxDepth:     DefaultMaxDepth,
		pageLimit:    DefaultPageLimit,
		policy:       FirstNonEmpty,
		baseURL:      func(d string) string { return "https://" + d },
		userAgent:    "better404-indexer/1.0",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover returns the deduplicated page URLs listed in the domain's sitemaps.
// When no sitemap yields a page it returns the site's base URL alone. Fetch
// failures are logged and skipped.
func (r *Resolver) Discover(ctx context.Context, siteName string) []string {
	base := r.baseURL(siteName)
	baseURL, err := url.Parse(base)
	if err != nil {
		return []string{base}
	}
	host := domain.NormalizeHost(baseURL.Hostname())

	w := &walk{
		r:       r,
		host:    host,
		visited: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}

	for _, seed := range r.seeds(ctx, baseURL) {
		if ctx.Err() != nil {
			break
		}
		w.sitemap(ctx, seed, 0)
		if r.policy == FirstNonEmpty && len(w.pages) > 0 {
			break
		}
	}

	if len(w.pages) == 0 {
		return []string{base}
	}

	slog.Debug("sitemap discovery finished", "domain", siteName, "pages", len(w.pages))
	return w.pages
}

func (r *Resolver) seeds(ctx context.Context, base *url.URL) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(ref string) {
		u, err := base.Parse(ref)
		if err != nil {
			return
		}
		s := u.String()
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, p := range candidatePaths {
		add(p)
	}

	robotsURL, _ := base.Parse("/robots.txt")
	if body := r.fetch(ctx, robotsURL.String()); body != "" {
		for _, ref := range robotsSitemaps(body) {
			add(ref)
		}
	}

	return out
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) string {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Debug("sitemap fetch failed", "url", rawURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ""
	}
	return string(body)
}

// walk is the state of one Discover call.
type walk struct {
	r       *Resolver
	host    string
	visited map[string]struct{}
	seen    map[string]struct{}
	pages   []string
}

func (w *walk) full() bool {
	return len(w.pages) >= w.r.pageLimit
}

func (w *walk) addPage(u string) {
	if w.full() {
		return
	}
	if _, ok := w.seen[u]; ok {
		return
	}
	w.seen[u] = struct{}{}
	w.pages = append(w.pages, u)
}

// sameHost resolves loc against ref and reports whether it stays on the site.
func (w *walk) sameHost(ref *url.URL, loc string) (string, bool) {
	u, err := ref.Parse(loc)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	if domain.NormalizeHost(u.Hostname()) != w.host {
		return "", false
	}
	return u.String(), true
}

func (w *walk) sitemap(ctx context.Context, sitemapURL string, depth int) {
	if depth > w.r.maxDepth || w.full() || ctx.Err() != nil {
		return
	}
	if _, ok := w.visited[sitemapURL]; ok {
		return
	}
	w.visited[sitemapURL] = struct{}{}

	body := w.r.fetch(ctx, sitemapURL)
	if body == "" {
		return
	}
	ref, err := url.Parse(sitemapURL)
	if err != nil {
		return
	}

	kind := classify(body)
	for _, loc := range extractLocs(body) {
		if w.full() {
			return
		}
		abs, ok := w.sameHost(ref, loc)
		if !ok {
			continue
		}

		switch kind {
		case kindIndex:
			w.sitemap(ctx, abs, depth+1)
		case kindURLSet:
			w.addPage(abs)
		default:
			w.probe(ctx, abs, depth)
		}
	}
}

// probe fetches a loc from an unclassified document and treats it as a
// sitemap index or url set depending on what comes back.
func (w *walk) probe(ctx context.Context, childURL string, depth int) {
	body := w.r.fetch(ctx, childURL)
	if body == "" {
		return
	}
	ref, err := url.Parse(childURL)
	if err != nil {
		return
	}

	kind := classify(body)
	if kind == kindUnknown {
		return
	}
	for _, loc := range extractLocs(body) {
		if w.full() {
			return
		}
		abs, ok := w.sameHost(ref, loc)
		if !ok {
			continue
		}
		if kind == kindIndex {
			w.sitemap(ctx, abs, depth+1)
		} else {
			w.addPage(abs)
		}
	}
}

type docKind int

const (
	kindUnknown docKind = iota
	kindIndex
	kindURLSet
)

func classify(body string) docKind {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "<sitemapindex"):
		return kindIndex
	case strings.Contains(lower, "<urlset"):
		return kindURLSet
	default:
		return kindUnknown
	}
}

func extractLocs(body string) []string {
	matches := locPattern.FindAllStringSubmatch(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func robotsSitemaps(body string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if m := robotsSitemap.FindStringSubmatch(sc.Text()); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}
