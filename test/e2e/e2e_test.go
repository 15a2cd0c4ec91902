//go:build e2e

package e2e

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better404/better404/internal/storage"
)

type recommendationsBody struct {
	Results []struct {
		URL   string  `json:"url"`
		Title string  `json:"title"`
		Score float64 `json:"score"`
	} `json:"results"`
	Error string `json:"error"`
}

type statusBody struct {
	Verified      bool    `json:"verified"`
	PagesIndexed  int     `json:"pagesIndexed"`
	LastCrawledAt *string `json:"lastCrawledAt"`
}

func TestE2E_IndexAndRecommend(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	site := env.RegisterSite(true)
	origin := env.Site.URL

	t.Run("status before indexing", func(t *testing.T) {
		resp, err := env.Get("/api/v1/status/"+env.SiteName, nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)

		var status statusBody
		resp.Decode(t, &status)
		assert.True(t, status.Verified)
		assert.Zero(t, status.PagesIndexed)
		assert.Nil(t, status.LastCrawledAt)
	})

	t.Run("index requires admin token", func(t *testing.T) {
		resp, err := env.Post("/api/v1/index", map[string]any{"domain": env.SiteName}, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
	})

	t.Run("index domain", func(t *testing.T) {
		resp, err := env.Post("/api/v1/index", map[string]any{"domain": env.SiteName}, adminHeaders())
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))

		var out struct {
			OK           bool `json:"ok"`
			PagesIndexed int  `json:"pagesIndexed"`
		}
		resp.Decode(t, &out)
		assert.True(t, out.OK)
		assert.Equal(t, len(customerPages), out.PagesIndexed)
	})

	t.Run("status after indexing", func(t *testing.T) {
		resp, err := env.Get("/api/v1/status/"+env.SiteName, nil)
		require.NoError(t, err)

		var status statusBody
		resp.Decode(t, &status)
		assert.Equal(t, len(customerPages), status.PagesIndexed)
		assert.NotNil(t, status.LastCrawledAt)
	})

	t.Run("snapshots archived", func(t *testing.T) {
		rows, err := env.Pool.Query(env.Ctx, "SELECT content_hash FROM pages WHERE domain_id = $1", site.ID)
		require.NoError(t, err)
		defer rows.Close()

		var hashes []string
		for rows.Next() {
			var h string
			require.NoError(t, rows.Scan(&h))
			hashes = append(hashes, h)
		}
		require.NoError(t, rows.Err())
		require.Len(t, hashes, len(customerPages))

		for _, h := range hashes {
			exists, err := env.S3Client.Exists(env.Ctx, storage.SnapshotKey(env.SiteName, h))
			require.NoError(t, err)
			assert.True(t, exists, h)
		}
	})

	t.Run("recommend for a dead pricing link", func(t *testing.T) {
		resp, err := env.Post("/api/v1/recommendations", map[string]any{
			"siteKey": site.SiteKeyPublic,
			"url":     origin + "/old-pricing-plans",
			"topN":    2,
		}, map[string]string{"Origin": origin})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))

		var body recommendationsBody
		resp.Decode(t, &body)
		require.NotEmpty(t, body.Results)
		assert.LessOrEqual(t, len(body.Results), 2)
		assert.True(t, strings.HasSuffix(body.Results[0].URL, "/pricing"), body.Results[0].URL)
		assert.Equal(t, "Pricing plans", body.Results[0].Title)
	})

	t.Run("recommendation events recorded", func(t *testing.T) {
		require.Eventually(t, func() bool {
			var n int
			err := env.Pool.QueryRow(env.Ctx, "SELECT count(*) FROM recommendation_events WHERE domain_id = $1", site.ID).Scan(&n)
			return err == nil && n > 0
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("unknown site key", func(t *testing.T) {
		resp, err := env.Post("/api/v1/recommendations", map[string]any{
			"siteKey": "pk_doesnotexist000000000000000",
			"url":     origin + "/missing",
		}, map[string]string{"Origin": origin})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.Status)

		var body recommendationsBody
		resp.Decode(t, &body)
		assert.Equal(t, "unauthorized", body.Error)
	})

	t.Run("foreign origin", func(t *testing.T) {
		resp, err := env.Post("/api/v1/recommendations", map[string]any{
			"siteKey": site.SiteKeyPublic,
			"url":     origin + "/missing",
		}, map[string]string{"Origin": "https://evil.example"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.Status)
	})

	t.Run("invalid body", func(t *testing.T) {
		resp, err := env.Post("/api/v1/recommendations", map[string]any{
			"siteKey": site.SiteKeyPublic,
			"url":     "not a url",
		}, map[string]string{"Origin": origin})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.Status)
	})
}

func TestE2E_IndexJobQueue(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	env.RegisterSite(true)

	resp, err := env.Post("/api/v1/index/jobs", map[string]any{"domain": env.SiteName}, adminHeaders())
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.Status, string(resp.Body))

	var queued struct {
		JobID string `json:"jobId"`
	}
	resp.Decode(t, &queued)
	require.NotEmpty(t, queued.JobID)

	t.Run("second enqueue returns the open job", func(t *testing.T) {
		resp, err := env.Post("/api/v1/index/jobs", map[string]any{"domain": env.SiteName}, adminHeaders())
		require.NoError(t, err)

		var again struct {
			JobID string `json:"jobId"`
		}
		resp.Decode(t, &again)
		assert.Equal(t, queued.JobID, again.JobID)
	})

	require.NoError(t, env.IndexWorker.ProcessJobs(env.Ctx))

	resp, err = env.Get("/api/v1/index/jobs/"+queued.JobID, adminHeaders())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	var job struct {
		Status      string  `json:"status"`
		ProcessedAt *string `json:"processedAt"`
	}
	resp.Decode(t, &job)
	assert.Equal(t, "completed", job.Status)
	assert.NotNil(t, job.ProcessedAt)

	status, err := env.Sites.Status(env.Ctx, env.SiteName)
	require.NoError(t, err)
	assert.Equal(t, len(customerPages), status.PagesIndexed)
}

func TestE2E_UnverifiedSite(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	site := env.RegisterSite(false)

	t.Run("indexing is forbidden", func(t *testing.T) {
		resp, err := env.Post("/api/v1/index", map[string]any{"domain": env.SiteName}, adminHeaders())
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.Status)
	})

	t.Run("recommendations are unauthorized", func(t *testing.T) {
		resp, err := env.Post("/api/v1/recommendations", map[string]any{
			"siteKey": site.SiteKeyPublic,
			"url":     env.Site.URL + "/pricing-old",
		}, map[string]string{"Origin": env.Site.URL})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
	})
}
