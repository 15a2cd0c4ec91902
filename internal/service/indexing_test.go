package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/extract"
)

type indexingFixture struct {
	sites      *MockSiteRepository
	pages      *MockPageRepository
	discoverer *MockDiscoverer
	extractor  *MockPageExtractor
	embedder   *MockEmbedder
	snapshots  *MockSnapshotStore
}

func newIndexingFixture() *indexingFixture {
	return &indexingFixture{
		sites:      new(MockSiteRepository),
		pages:      new(MockPageRepository),
		discoverer: new(MockDiscoverer),
		extractor:  new(MockPageExtractor),
		embedder:   new(MockEmbedder),
		snapshots:  new(MockSnapshotStore),
	}
}

func (f *indexingFixture) service(cfg IndexingConfig) *IndexingService {
	return NewIndexingService(f.sites, f.pages, f.discoverer, f.extractor, NewCleaner(nil, 0), f.embedder, cfg)
}

func TestIndexingService_IndexDomain(t *testing.T) {
	ctx := context.Background()

	t.Run("indexes every discovered page", func(t *testing.T) {
		f := newIndexingFixture()
		urls := []string{"https://example.com/b", "https://example.com/a"}

		f.sites.On("GetByName", ctx, "example.com").Return(verifiedSite(), nil)
		f.discoverer.On("Discover", mock.Anything, "example.com").Return(urls)
		for _, u := range urls {
			f.extractor.On("Extract", mock.Anything, u).Return(&extract.Page{Title: "T", Text: "page body"}, nil)
		}
		f.embedder.On("GenerateEmbedding", mock.Anything, "page body").Return([]float32{1, 0}, nil)
		f.pages.On("IndexPage", mock.Anything, mock.Anything).Return(domain.IndexPageResult{PageID: "p", Stored: 1}, nil)
		f.snapshots.On("PutSnapshot", mock.Anything, "example.com", contentHash("page body"), "page body").Return(nil)
		f.sites.On("MarkScraped", mock.Anything, "site-1", mock.Anything).Return(nil)

		out, err := f.service(IndexingConfig{Snapshots: f.snapshots}).IndexDomain(ctx, IndexInput{Domain: "https://www.Example.com/"})

		require.NoError(t, err)
		assert.Equal(t, 2, out.Discovered)
		assert.Equal(t, 2, out.Selected)
		assert.Equal(t, 2, out.PagesIndexed)
		assert.Equal(t, 2, out.ChunksStored)
		f.pages.AssertNumberOfCalls(t, "IndexPage", 2)
		f.snapshots.AssertNumberOfCalls(t, "PutSnapshot", 2)
		f.sites.AssertExpectations(t)
	})

	t.Run("shard selects positions of the sorted list", func(t *testing.T) {
		f := newIndexingFixture()
		urls := []string{
			"https://example.com/d",
			"https://example.com/a",
			"https://example.com/c",
			"https://example.com/b",
		}

		var mu sync.Mutex
		var visited []string

		f.sites.On("GetByName", ctx, "example.com").Return(verifiedSite(), nil)
		f.discoverer.On("Discover", mock.Anything, "example.com").Return(urls)
		f.extractor.On("Extract", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				mu.Lock()
				visited = append(visited, args.String(1))
				mu.Unlock()
			}).
			Return(&extract.Page{}, nil)
		f.pages.On("IndexPage", mock.Anything, mock.Anything).Return(domain.IndexPageResult{}, nil)
		f.sites.On("MarkScraped", mock.Anything, "site-1", mock.Anything).Return(nil)

		out, err := f.service(IndexingConfig{}).IndexDomain(ctx, IndexInput{Domain: "example.com", ShardIndex: 1, ShardCount: 2})

		require.NoError(t, err)
		assert.Equal(t, 4, out.Discovered)
		assert.Equal(t, 2, out.Selected)
		assert.ElementsMatch(t, []string{"https://example.com/b", "https://example.com/d"}, visited)
		f.embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	})

	t.Run("failed page does not fail the run", func(t *testing.T) {
		f := newIndexingFixture()

		f.sites.On("GetByName", ctx, "example.com").Return(verifiedSite(), nil)
		f.discoverer.On("Discover", mock.Anything, "example.com").Return([]string{"https://example.com/ok", "https://example.com/bad"})
		f.extractor.On("Extract", mock.Anything, "https://example.com/ok").Return(&extract.Page{Text: "fine"}, nil)
		f.extractor.On("Extract", mock.Anything, "https://example.com/bad").Return(nil, errors.New("renderer crashed"))
		f.embedder.On("GenerateEmbedding", mock.Anything, "fine").Return([]float32{1}, nil)
		f.pages.On("IndexPage", mock.Anything, mock.Anything).Return(domain.IndexPageResult{Stored: 1}, nil)
		f.sites.On("MarkScraped", mock.Anything, "site-1", mock.Anything).Return(nil)

		out, err := f.service(IndexingConfig{}).IndexDomain(ctx, IndexInput{Domain: "example.com"})

		require.NoError(t, err)
		assert.Equal(t, 1, out.PagesIndexed)
	})

	t.Run("chunk with failed embedding is stored without vector", func(t *testing.T) {
		f := newIndexingFixture()
		text := "aaaaaaaaaabbbbbbbbbb"

		f.sites.On("GetByName", ctx, "example.com").Return(verifiedSite(), nil)
		f.discoverer.On("Discover", mock.Anything, "example.com").Return([]string{"https://example.com/"})
		f.extractor.On("Extract", mock.Anything, "https://example.com/").Return(&extract.Page{Title: "Home", Text: text}, nil)
		f.embedder.On("GenerateEmbedding", mock.Anything, "aaaaaaaaaa").Return([]float32{1, 2}, nil)
		f.embedder.On("GenerateEmbedding", mock.Anything, "bbbbbbbbbb").Return(nil, errors.New("rate limited"))
		f.pages.On("IndexPage", mock.Anything, mock.MatchedBy(func(in domain.IndexPageInput) bool {
			return in.DomainID == "site-1" &&
				in.URL == "https://example.com/" &&
				in.Title != nil && *in.Title == "Home" &&
				in.ContentHash == contentHash(text) &&
				len(in.Chunks) == 2 &&
				in.Chunks[0].Ord == 0 && in.Chunks[0].HasEmbedding() &&
				in.Chunks[1].Ord == 1 && !in.Chunks[1].HasEmbedding()
		})).Return(domain.IndexPageResult{Stored: 2, WithoutVector: 1}, nil)
		f.sites.On("MarkScraped", mock.Anything, "site-1", mock.Anything).Return(nil)

		out, err := f.service(IndexingConfig{ChunkSize: 10}).IndexDomain(ctx, IndexInput{Domain: "example.com"})

		require.NoError(t, err)
		assert.Equal(t, 2, out.ChunksStored)
		assert.Equal(t, 1, out.ChunksWithoutVector)
		f.pages.AssertExpectations(t)
	})

	t.Run("cancelled run fails and leaves site stale", func(t *testing.T) {
		f := newIndexingFixture()
		runCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f.sites.On("GetByName", mock.Anything, "example.com").Return(verifiedSite(), nil)
		f.discoverer.On("Discover", mock.Anything, "example.com").
			Run(func(mock.Arguments) { cancel() }).
			Return([]string{"https://example.com/a", "https://example.com/b"})

		out, err := f.service(IndexingConfig{}).IndexDomain(runCtx, IndexInput{Domain: "example.com"})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, out)
		f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
		f.sites.AssertNotCalled(t, "MarkScraped", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unverified site is rejected before discovery", func(t *testing.T) {
		f := newIndexingFixture()
		site := verifiedSite()
		site.Verified = false
		f.sites.On("GetByName", ctx, "example.com").Return(site, nil)

		_, err := f.service(IndexingConfig{}).IndexDomain(ctx, IndexInput{Domain: "example.com"})

		assert.Equal(t, domain.ErrSiteUnverified, err)
		f.discoverer.AssertNotCalled(t, "Discover", mock.Anything, mock.Anything)
	})

	t.Run("unknown site", func(t *testing.T) {
		f := newIndexingFixture()
		f.sites.On("GetByName", ctx, "example.com").Return(nil, domain.ErrSiteNotFound)

		_, err := f.service(IndexingConfig{}).IndexDomain(ctx, IndexInput{Domain: "example.com"})

		assert.Equal(t, domain.ErrSiteNotFound, err)
	})

	t.Run("invalid shard", func(t *testing.T) {
		f := newIndexingFixture()

		for _, in := range []IndexInput{
			{Domain: "example.com", ShardIndex: 2, ShardCount: 2},
			{Domain: "example.com", ShardIndex: -1, ShardCount: 2},
			{Domain: "example.com", ShardIndex: 1, ShardCount: 0},
		} {
			_, err := f.service(IndexingConfig{}).IndexDomain(ctx, in)
			assert.Equal(t, domain.ErrInvalidShard, err)
		}
		f.sites.AssertNotCalled(t, "GetByName", mock.Anything, mock.Anything)
	})
}

func TestSelectShard(t *testing.T) {
	urls := []string{"e", "a", "d", "b", "c"}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, selectShard(urls, 0, 1))
	assert.Equal(t, []string{"a", "d"}, selectShard(urls, 0, 3))
	assert.Equal(t, []string{"b", "e"}, selectShard(urls, 1, 3))
	assert.Equal(t, []string{"c"}, selectShard(urls, 2, 3))
	assert.Equal(t, []string{"e", "a", "d", "b", "c"}, urls)
}
