package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/pagination"
)

const (
	siteKeyLength   = 28
	siteKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// SiteStatus is the public indexing summary for a site.
type SiteStatus struct {
	Domain        string     `json:"domain"`
	Verified      bool       `json:"verified"`
	PagesIndexed  int        `json:"pagesIndexed"`
	LastCrawledAt *time.Time `json:"lastCrawledAt"`
}

// SiteService handles site registration and verification.
type SiteService struct {
	repo    SiteRepository
	pages   PageRepository
	uuidGen UUIDGenerator
	now     func() time.Time
}

func NewSiteService(repo SiteRepository, pages PageRepository) *SiteService {
	return NewSiteServiceWithUUIDGen(repo, pages, &DefaultUUIDGenerator{})
}

func NewSiteServiceWithUUIDGen(repo SiteRepository, pages PageRepository, uuidGen UUIDGenerator) *SiteService {
	return &SiteService{
		repo:    repo,
		pages:   pages,
		uuidGen: uuidGen,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an unverified site with a fresh public site key.
func (s *SiteService) Register(ctx context.Context, name string) (*domain.Site, error) {
	host, err := domain.ParseSiteName(name)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid site name", err)
	}

	key, err := GenerateSiteKey()
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate site key", err)
	}

	site := domain.NewSite(s.uuidGen.NewString(), host, key, s.now())
	if err := domain.ValidateSite(site); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, err.Error(), err)
	}

	if err := s.repo.Create(ctx, site); err != nil {
		return nil, err
	}
	return site, nil
}

// Get looks a site up by any accepted spelling of its hostname.
func (s *SiteService) Get(ctx context.Context, name string) (*domain.Site, error) {
	host, err := domain.ParseSiteName(name)
	if err != nil {
		return nil, domain.ErrInvalidSiteName
	}
	return s.repo.GetByName(ctx, host)
}

func (s *SiteService) List(ctx context.Context, cursor string, limit int) (pagination.Page[*domain.Site], error) {
	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return pagination.Page[*domain.Site]{}, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	return s.repo.List(ctx, c, limit)
}

// SetVerified flips the verification flag. DNS proof is checked elsewhere.
func (s *SiteService) SetVerified(ctx context.Context, name string, verified bool) (*domain.Site, error) {
	site, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetVerified(ctx, site.ID, verified); err != nil {
		return nil, err
	}
	site.Verified = verified
	return site, nil
}

// Status reports how much of a site is indexed.
func (s *SiteService) Status(ctx context.Context, name string) (*SiteStatus, error) {
	site, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	count, last, err := s.pages.Stats(ctx, site.ID)
	if err != nil {
		return nil, err
	}

	return &SiteStatus{
		Domain:        site.Name,
		Verified:      site.Verified,
		PagesIndexed:  count,
		LastCrawledAt: last,
	}, nil
}

// GenerateSiteKey returns "pk_" followed by 28 random alphanumerics.
func GenerateSiteKey() (string, error) {
	buf := make([]byte, siteKeyLength)
	max := big.NewInt(int64(len(siteKeyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = siteKeyAlphabet[n.Int64()]
	}
	return domain.SiteKeyPrefix + string(buf), nil
}
