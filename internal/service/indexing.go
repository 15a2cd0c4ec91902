package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/extract"
	"github.com/better404/better404/internal/telemetry"
)

const (
	DefaultIndexConcurrency = 3
	DefaultEmbedConcurrency = 4
)

// Discoverer lists the page URLs of a site.
type Discoverer interface {
	Discover(ctx context.Context, domain string) []string
}

// PageExtractor loads one page.
type PageExtractor interface {
	Extract(ctx context.Context, url string) (*extract.Page, error)
}

// SnapshotStore archives cleaned page text keyed by content hash.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, domain, contentHash, text string) error
}

// IndexInput selects a domain and, optionally, one shard of its URL list.
// ShardCount zero means the whole list.
type IndexInput struct {
	Domain     string
	ShardIndex int
	ShardCount int
}

// IndexOutput summarizes one indexing run.
type IndexOutput struct {
	Discovered          int `json:"discovered"`
	Selected            int `json:"selected"`
	PagesIndexed        int `json:"pagesIndexed"`
	ChunksStored        int `json:"chunksStored"`
	ChunksWithoutVector int `json:"chunksWithoutVector"`
}

type IndexingConfig struct {
	IndexConcurrency int
	EmbedConcurrency int
	ChunkSize        int
	ChunkOverlap     int
	Metrics          *telemetry.Metrics
	Snapshots        SnapshotStore
}

// IndexingService runs discover, extract, clean, chunk, embed and store for
// a domain.
type IndexingService struct {
	sites      SiteRepository
	pages      PageRepository
	discoverer Discoverer
	extractor  PageExtractor
	cleaner    *Cleaner
	embedder   Embedder
	cfg        IndexingConfig
	now        func() time.Time
}

func NewIndexingService(
	sites SiteRepository,
	pages PageRepository,
	discoverer Discoverer,
	extractor PageExtractor,
	cleaner *Cleaner,
	embedder Embedder,
	cfg IndexingConfig,
) *IndexingService {
	if cfg.IndexConcurrency <= 0 {
		cfg.IndexConcurrency = DefaultIndexConcurrency
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	return &IndexingService{
		sites:      sites,
		pages:      pages,
		discoverer: discoverer,
		extractor:  extractor,
		cleaner:    cleaner,
		embedder:   embedder,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IndexDomain indexes every URL of the domain's shard. Per-URL failures are
// logged and never fail the run; an unknown or unverified site does, and so
// does a context that ends before the run completes.
func (s *IndexingService) IndexDomain(ctx context.Context, in IndexInput) (*IndexOutput, error) {
	shardIndex, shardCount, err := normalizeShard(in.ShardIndex, in.ShardCount)
	if err != nil {
		return nil, err
	}

	name, err := domain.ParseSiteName(in.Domain)
	if err != nil {
		return nil, domain.ErrInvalidSiteName
	}

	site, err := s.sites.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !site.Verified {
		return nil, domain.ErrSiteUnverified
	}

	ctx, span := telemetry.StartSpan(ctx, "indexing.domain", telemetry.SpanAttributes{Domain: site.Name, Operation: "index"})
	defer span.End()

	urls := s.discoverer.Discover(ctx, site.Name)
	selected := selectShard(urls, shardIndex, shardCount)

	slog.Info("indexing started",
		"domain", site.Name,
		"discovered", len(urls),
		"selected", len(selected),
		"shard_index", shardIndex,
		"shard_count", shardCount,
	)

	var pagesIndexed, chunksStored, withoutVector atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.cfg.IndexConcurrency)
	for _, u := range selected {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := s.indexURL(ctx, site, u)
			if err != nil {
				slog.Warn("page indexing failed", "domain", site.Name, "url", u, "error", err)
				return nil
			}
			pagesIndexed.Add(1)
			chunksStored.Add(int64(res.Stored))
			withoutVector.Add(int64(res.WithoutVector))
			return nil
		})
	}
	_ = g.Wait()

	// A cancelled run is partial; leave the site stale so it is picked up again.
	if err := ctx.Err(); err != nil {
		slog.Warn("indexing interrupted", "domain", site.Name, "pages_indexed", pagesIndexed.Load(), "error", err)
		span.SetError(err)
		return nil, err
	}

	if err := s.sites.MarkScraped(ctx, site.ID, s.now()); err != nil {
		slog.Warn("failed to mark site scraped", "domain", site.Name, "error", err)
	}

	out := &IndexOutput{
		Discovered:          len(urls),
		Selected:            len(selected),
		PagesIndexed:        int(pagesIndexed.Load()),
		ChunksStored:        int(chunksStored.Load()),
		ChunksWithoutVector: int(withoutVector.Load()),
	}
	slog.Info("indexing finished",
		"domain", site.Name,
		"pages", out.PagesIndexed,
		"chunks", out.ChunksStored,
		"chunks_without_vector", out.ChunksWithoutVector,
	)
	return out, nil
}

func (s *IndexingService) indexURL(ctx context.Context, site *domain.Site, pageURL string) (domain.IndexPageResult, error) {
	telemetry.AddBreadcrumb(ctx, "indexing", pageURL)

	page, err := s.extractor.Extract(ctx, pageURL)
	if err != nil {
		return domain.IndexPageResult{}, fmt.Errorf("extract: %w", err)
	}

	text := s.cleaner.Clean(ctx, pageURL, page.Title, page.Text)
	hash := contentHash(text)

	var chunkTexts []string
	if strings.TrimSpace(text) != "" {
		chunkTexts = ChunkText(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	}
	chunks := s.embedChunks(ctx, pageURL, chunkTexts)

	var title *string
	if page.Title != "" {
		title = &page.Title
	}

	res, err := s.pages.IndexPage(ctx, domain.IndexPageInput{
		DomainID:    site.ID,
		URL:         pageURL,
		Title:       title,
		Status:      page.Status,
		ContentHash: hash,
		Chunks:      chunks,
	})
	if err != nil {
		return res, fmt.Errorf("store: %w", err)
	}

	s.cfg.Metrics.RecordPageIndexed(ctx, site.Name, res.Stored, res.WithoutVector)

	if s.cfg.Snapshots != nil && text != "" {
		if err := s.cfg.Snapshots.PutSnapshot(ctx, site.Name, hash, text); err != nil {
			slog.Warn("snapshot upload failed", "url", pageURL, "error", err)
		}
	}

	return res, nil
}

// embedChunks embeds texts concurrently. Each result lands at its own ordinal;
// a failed embedding leaves that chunk without a vector.
func (s *IndexingService) embedChunks(ctx context.Context, pageURL string, texts []string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(texts))

	var g errgroup.Group
	g.SetLimit(s.cfg.EmbedConcurrency)
	for i, text := range texts {
		chunks[i] = domain.Chunk{Ord: i, Text: text}
		g.Go(func() error {
			vec, err := s.embedder.GenerateEmbedding(ctx, text)
			if err != nil {
				slog.Debug("chunk embedding failed", "url", pageURL, "ord", i, "error", err)
				return nil
			}
			chunks[i].Embedding = vec
			return nil
		})
	}
	_ = g.Wait()

	return chunks
}

func normalizeShard(index, count int) (int, int, error) {
	if count == 0 && index == 0 {
		return 0, 1, nil
	}
	if count < 1 || index < 0 || index >= count {
		return 0, 0, domain.ErrInvalidShard
	}
	return index, count, nil
}

// selectShard sorts urls and keeps positions i with i % count == index.
func selectShard(urls []string, index, count int) []string {
	sorted := append([]string(nil), urls...)
	sort.Strings(sorted)
	if count <= 1 {
		return sorted
	}

	out := make([]string, 0, len(sorted)/count+1)
	for i, u := range sorted {
		if i%count == index {
			out = append(out, u)
		}
	}
	return out
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
