package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/repository"
	"github.com/better404/better404/internal/service"
	"github.com/spf13/cobra"
)

func DomainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Manage registered domains",
		Long:  "Register, list, verify and inspect the domains better404 serves",
	}

	cmd.PersistentFlags().StringP("output", "o", "text", "Output format (text or json)")

	cmd.AddCommand(domainAddCmd())
	cmd.AddCommand(domainListCmd())
	cmd.AddCommand(domainVerifyCmd())
	cmd.AddCommand(domainStatusCmd())

	return cmd
}

// withSiteService opens a pool for the duration of fn.
func withSiteService(fn func(ctx context.Context, svc *service.SiteService) error) error {
	ctx := context.Background()

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := service.NewSiteService(repository.NewSiteRepository(pool), repository.NewPageRepository(pool))
	return fn(ctx, svc)
}

func domainAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <domain>",
		Short: "Register a domain",
		Long:  "Register a domain and print its public site key. The domain starts unverified.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return withSiteService(func(ctx context.Context, svc *service.SiteService) error {
				site, err := svc.Register(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to register domain: %w", err)
				}
				if output == "json" {
					return printJSON(siteView(site))
				}
				fmt.Printf("Domain registered: %s\n", site.Name)
				fmt.Printf("Site key: %s\n", site.SiteKeyPublic)
				fmt.Println("Run 'better404d domain verify' once ownership is confirmed.")
				return nil
			})
		},
	}
}

func domainListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered domains",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return withSiteService(func(ctx context.Context, svc *service.SiteService) error {
				page, err := svc.List(ctx, cursor, limit)
				if err != nil {
					return fmt.Errorf("failed to list domains: %w", err)
				}

				if output == "json" {
					items := make([]map[string]any, len(page.Items))
					for i, site := range page.Items {
						items[i] = siteView(site)
					}
					return printJSON(map[string]any{
						"items":    items,
						"cursor":   page.NextCursor,
						"has_more": page.HasMore,
					})
				}

				if len(page.Items) == 0 {
					fmt.Println("No domains found")
					return nil
				}
				fmt.Println("Domains:")
				for _, site := range page.Items {
					fmt.Printf("  %s  verified=%t  key=%s  last_scraped=%s\n",
						site.Name, site.Verified, site.SiteKeyPublic, formatTime(site.LastScrapedAt))
				}
				if page.HasMore && page.NextCursor != "" {
					fmt.Printf("\nMore results available. Use --cursor %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func domainVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <domain>",
		Short: "Mark a domain as verified",
		Long:  "Mark a domain as verified so it can be indexed and served. Use --revoke to undo.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revoke, _ := cmd.Flags().GetBool("revoke")
			output, _ := cmd.Flags().GetString("output")
			return withSiteService(func(ctx context.Context, svc *service.SiteService) error {
				site, err := svc.SetVerified(ctx, args[0], !revoke)
				if err != nil {
					return fmt.Errorf("failed to update domain: %w", err)
				}
				if output == "json" {
					return printJSON(siteView(site))
				}
				fmt.Printf("Domain %s verified=%t\n", site.Name, site.Verified)
				return nil
			})
		},
	}

	cmd.Flags().Bool("revoke", false, "Clear the verified flag instead of setting it")

	return cmd
}

func domainStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <domain>",
		Short: "Show indexing status for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return withSiteService(func(ctx context.Context, svc *service.SiteService) error {
				status, err := svc.Status(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to read status: %w", err)
				}
				if output == "json" {
					return printJSON(status)
				}
				fmt.Printf("Domain:        %s\n", status.Domain)
				fmt.Printf("Verified:      %t\n", status.Verified)
				fmt.Printf("Pages indexed: %d\n", status.PagesIndexed)
				fmt.Printf("Last crawled:  %s\n", formatTime(status.LastCrawledAt))
				return nil
			})
		},
	}
}

func siteView(site *domain.Site) map[string]any {
	return map[string]any{
		"id":              site.ID,
		"domain":          site.Name,
		"site_key":        site.SiteKeyPublic,
		"verified":        site.Verified,
		"last_scraped_at": site.LastScrapedAt,
		"created_at":      site.CreatedAt,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}
