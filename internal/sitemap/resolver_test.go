package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const siteHost = "127.0.0.1"

func urlset(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, l := range locs {
		fmt.Fprintf(&b, "<url><loc>%s</loc></url>", l)
	}
	b.WriteString("</urlset>")
	return b.String()
}

func sitemapIndex(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><SitemapIndex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, l := range locs {
		fmt.Fprintf(&b, "<sitemap><LOC>\n  %s\n</LOC></sitemap>", l)
	}
	b.WriteString("</SitemapIndex>")
	return b.String()
}

// newSite serves the given path->body map and returns a resolver pointed at it.
func newSite(t *testing.T, routes map[string]func(base string) string, opts ...Option) (*Resolver, string) {
	t.Helper()
	var base string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(fn(base)))
	}))
	t.Cleanup(srv.Close)
	base = srv.URL

	opts = append([]Option{WithBaseURL(func(string) string { return base })}, opts...)
	return NewResolver(opts...), base
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestDiscover_URLSet(t *testing.T) {
	r, base := newSite(t, map[string]func(string) string{
		"/sitemap.xml": func(b string) string {
			return urlset(b+"/a", b+"/b", b+"/a", "https://other.example/c")
		},
	})

	pages := r.Discover(context.Background(), siteHost)

	assert.Equal(t, []string{base + "/a", base + "/b"}, sorted(pages))
}

func TestDiscover_SitemapIndexRecursion(t *testing.T) {
	r, base := newSite(t, map[string]func(string) string{
		"/sitemap.xml":       func(b string) string { return sitemapIndex(b+"/posts.xml", b+"/pages.xml") },
		"/posts.xml":         func(b string) string { return urlset(b+"/blog/one", b+"/blog/two") },
		"/pages.xml":         func(b string) string { return urlset(b + "/about") },
		"/sitemap_index.xml": func(b string) string { return urlset(b + "/never") },
	})

	pages := r.Discover(context.Background(), siteHost)

	assert.Equal(t, []string{base + "/about", base + "/blog/one", base + "/blog/two"}, sorted(pages))
}

func TestDiscover_UnclassifiedDocumentProbesChildren(t *testing.T) {
	r, base := newSite(t, map[string]func(string) string{
		"/sitemap.xml": func(b string) string { return "<root><loc>" + b + "/child.xml</loc></root>" },
		"/child.xml":   func(b string) string { return urlset(b + "/deep") },
	})

	pages := r.Discover(context.Background(), siteHost)

	assert.Equal(t, []string{base + "/deep"}, pages)
}

func TestDiscover_RobotsSeeds(t *testing.T) {
	r, base := newSite(t, map[string]func(string) string{
		"/robots.txt": func(b string) string {
			return "User-agent: *\nDisallow: /admin\nsitemap: /custom-map.xml\n"
		},
		"/custom-map.xml": func(b string) string { return urlset(b + "/from-robots") },
	})

	pages := r.Discover(context.Background(), siteHost)

	assert.Equal(t, []string{base + "/from-robots"}, pages)
}

func TestDiscover_SeedPolicy(t *testing.T) {
	routes := map[string]func(string) string{
		"/sitemap.xml":   func(b string) string { return urlset(b + "/first") },
		"/sitemap1.xml":  func(b string) string { return urlset(b + "/second") },
		"/robots.txt":    func(string) string { return "" },
		"/unrelated.xml": func(b string) string { return urlset(b + "/x") },
	}

	t.Run("first non-empty", func(t *testing.T) {
		r, base := newSite(t, routes)
		assert.Equal(t, []string{base + "/first"}, r.Discover(context.Background(), siteHost))
	})

	t.Run("all", func(t *testing.T) {
		r, base := newSite(t, routes, WithSeedPolicy(All))
		assert.Equal(t, []string{base + "/first", base + "/second"}, sorted(r.Discover(context.Background(), siteHost)))
	})
}

func TestDiscover_FallbackToBase(t *testing.T) {
	r, base := newSite(t, map[string]func(string) string{
		"/sitemap.xml": func(string) string { return "" },
	})

	assert.Equal(t, []string{base}, r.Discover(context.Background(), siteHost))
}

func TestDiscover_CyclesVisitedOnce(t *testing.T) {
	var hits atomic.Int32
	r, base := newSite(t, map[string]func(string) string{
		"/sitemap.xml": func(b string) string {
			hits.Add(1)
			return sitemapIndex(b+"/sitemap.xml", b+"/leaf.xml")
		},
		"/leaf.xml": func(b string) string { return urlset(b + "/leaf") },
	})

	pages := r.Discover(context.Background(), siteHost)

	assert.Equal(t, []string{base + "/leaf"}, pages)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDiscover_DepthLimit(t *testing.T) {
	r, base := newSite(t, map[string]func(string) string{
		"/sitemap.xml": func(b string) string { return sitemapIndex(b + "/l1.xml") },
		"/l1.xml":      func(b string) string { return sitemapIndex(b + "/l2.xml") },
		"/l2.xml":      func(b string) string { return urlset(b + "/deep") },
	}, WithMaxDepth(1))

	assert.Equal(t, []string{base}, r.Discover(context.Background(), siteHost))
}

func TestDiscover_PageLimitIsGlobal(t *testing.T) {
	r, _ := newSite(t, map[string]func(string) string{
		"/sitemap.xml": func(b string) string { return sitemapIndex(b+"/a.xml", b+"/b.xml") },
		"/a.xml":       func(b string) string { return urlset(b+"/1", b+"/2", b+"/3") },
		"/b.xml":       func(b string) string { return urlset(b+"/4", b+"/5", b+"/6") },
	}, WithPageLimit(4))

	pages := r.Discover(context.Background(), siteHost)

	require.Len(t, pages, 4)
}

func TestParseSeedPolicy(t *testing.T) {
	p, err := ParseSeedPolicy("all")
	require.NoError(t, err)
	assert.Equal(t, All, p)

	p, err = ParseSeedPolicy("")
	require.NoError(t, err)
	assert.Equal(t, FirstNonEmpty, p)

	_, err = ParseSeedPolicy("some")
	assert.Error(t, err)
}

func TestExtractLocs(t *testing.T) {
	body := "<urlset><url><loc> https://a.test/x </loc></url><url><Loc>https://a.test/y</Loc></url></urlset>"
	assert.Equal(t, []string{"https://a.test/x", "https://a.test/y"}, extractLocs(body))
}

func TestRobotsSitemaps(t *testing.T) {
	body := "User-agent: *\r\n  SITEMAP: https://a.test/s.xml\r\n# Sitemap: ignored\nSitemap:/rel.xml"
	assert.Equal(t, []string{"https://a.test/s.xml", "/rel.xml"}, robotsSitemaps(body))
}
