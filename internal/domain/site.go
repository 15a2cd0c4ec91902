package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SiteKeyPrefix marks public site keys handed to the 404 snippet.
const SiteKeyPrefix = "pk_"

// Site is a registered hostname that owns an index. Rows live in the
// domains table.
type Site struct {
	ID            string
	Name          string
	SiteKeyPublic string
	Verified      bool
	LastScrapedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSite creates a new unverified Site instance
func NewSite(id, name, siteKey string, createdAt time.Time) *Site {
	return &Site{
		ID:            id,
		Name:          name,
		SiteKeyPublic: siteKey,
		Verified:      false,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

// ValidateSite validates a Site instance
func ValidateSite(s *Site) error {
	if s == nil {
		return fmt.Errorf("site cannot be nil")
	}

	if s.ID == "" {
		return fmt.Errorf("site ID is required")
	}

	if s.Name == "" {
		return fmt.Errorf("site Name is required")
	}

	if strings.ContainsAny(s.Name, "/:@ ") {
		return fmt.Errorf("site Name must be a bare hostname: %s", s.Name)
	}

	if !strings.HasPrefix(s.SiteKeyPublic, SiteKeyPrefix) {
		return fmt.Errorf("site SiteKeyPublic must start with %q", SiteKeyPrefix)
	}

	return nil
}

// BaseURL returns the https origin pages of the site are resolved against.
func (s *Site) BaseURL() string {
	return "https://" + s.Name
}

// NormalizeHost lowercases a hostname and strips a leading "www.".
func NormalizeHost(hostname string) string {
	lower := strings.ToLower(strings.TrimSpace(hostname))
	return strings.TrimPrefix(lower, "www.")
}

// HostOf parses rawURL and returns its normalized hostname.
func HostOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url has no host: %q", rawURL)
	}
	return NormalizeHost(u.Hostname()), nil
}

// ParseSiteName accepts "example.com", "www.Example.com" or a full URL and
// returns the normalized hostname used as the site name.
func ParseSiteName(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("site name is empty")
	}
	if !strings.Contains(input, "://") {
		input = "https://" + input
	}
	return HostOf(input)
}
