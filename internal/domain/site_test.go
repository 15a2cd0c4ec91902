package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSite(t *testing.T) {
	now := time.Now()
	site := NewSite("site-1", "example.com", "pk_abc", now)

	assert.Equal(t, "site-1", site.ID)
	assert.Equal(t, "example.com", site.Name)
	assert.Equal(t, "pk_abc", site.SiteKeyPublic)
	assert.False(t, site.Verified)
	assert.Nil(t, site.LastScrapedAt)
	assert.Equal(t, "https://example.com", site.BaseURL())
}

func TestValidateSite(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		site    *Site
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid site",
			site:    NewSite("s1", "example.com", "pk_0123456789", now),
			wantErr: false,
		},
		{
			name:    "nil site",
			site:    nil,
			wantErr: true,
			errMsg:  "nil",
		},
		{
			name:    "missing ID",
			site:    &Site{Name: "example.com", SiteKeyPublic: "pk_x"},
			wantErr: true,
			errMsg:  "ID",
		},
		{
			name:    "missing Name",
			site:    &Site{ID: "s1", SiteKeyPublic: "pk_x"},
			wantErr: true,
			errMsg:  "Name",
		},
		{
			name:    "name with scheme",
			site:    &Site{ID: "s1", Name: "https://example.com", SiteKeyPublic: "pk_x"},
			wantErr: true,
			errMsg:  "bare hostname",
		},
		{
			name:    "bad site key prefix",
			site:    &Site{ID: "s1", Name: "example.com", SiteKeyPublic: "sk_x"},
			wantErr: true,
			errMsg:  "SiteKeyPublic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSite(tt.site)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeHost("WWW.Example.COM"))
	assert.Equal(t, "example.com", NormalizeHost("example.com"))
	assert.Equal(t, "docs.example.com", NormalizeHost("docs.example.com"))
	assert.Equal(t, "wwwexample.com", NormalizeHost("wwwexample.com"))
}

func TestHostOf(t *testing.T) {
	host, err := HostOf("https://www.example.com:8443/a/b?q=1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)

	_, err = HostOf("/relative/path")
	assert.Error(t, err)

	_, err = HostOf("http://[::1")
	assert.Error(t, err)
}

func TestParseSiteName(t *testing.T) {
	tests := map[string]string{
		"example.com":                 "example.com",
		"www.Example.com":             "example.com",
		"https://www.example.com/doc": "example.com",
		"  shop.example.org  ":        "shop.example.org",
	}
	for input, want := range tests {
		got, err := ParseSiteName(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseSiteName("")
	assert.Error(t, err)
}
