package admin

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/better404/better404/internal/repository"
	"github.com/better404/better404/internal/service"
	"github.com/better404/better404/internal/telemetry"
	"github.com/spf13/cobra"
)

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <domain>",
		Short: "Index a verified domain now",
		Long: "Discover, extract and embed the pages of a verified domain in this process. " +
			"Use --shard-index and --shard-count to split one domain across several runs.",
		Args: cobra.ExactArgs(1),
		RunE: runIndex,
	}

	cmd.Flags().Int("shard-index", 0, "Zero-based shard this run handles")
	cmd.Flags().Int("shard-count", 1, "Total number of shards")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shardIndex, _ := cmd.Flags().GetInt("shard-index")
	shardCount, _ := cmd.Flags().GetInt("shard-count")
	output, _ := cmd.Flags().GetString("output")

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer initTelemetry(cfg)()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}

	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	llm, err := newOpenAIClient(cfg)
	if err != nil {
		return err
	}

	stack, err := newIndexingStack(ctx, cfg, pool, llm, metrics)
	if err != nil {
		return err
	}
	defer stack.Close()

	out, err := stack.service.IndexDomain(ctx, service.IndexInput{
		Domain:     args[0],
		ShardIndex: shardIndex,
		ShardCount: shardCount,
	})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if output == "json" {
		return printJSON(out)
	}
	logger.Info("indexing finished", "domain", args[0], "pages", out.PagesIndexed, "chunks", out.ChunksStored)
	fmt.Printf("Indexed %d of %d discovered pages (%d selected for this shard)\n", out.PagesIndexed, out.Discovered, out.Selected)
	fmt.Printf("Chunks stored: %d (%d without vector)\n", out.ChunksStored, out.ChunksWithoutVector)
	return nil
}

func RescrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescrape",
		Short: "Queue index jobs for stale domains",
		Long:  "Queue an index job for every verified domain not scraped within the rescrape interval. A running server picks the jobs up.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			interval := cfg.RescrapeInterval
			if cmd.Flags().Changed("interval") {
				interval, _ = cmd.Flags().GetDuration("interval")
			}

			pool, err := getDBPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			jobSvc := service.NewIndexJobService(repository.NewTxRunner(pool))
			n, err := jobSvc.EnqueueStale(ctx, interval)
			if err != nil {
				return fmt.Errorf("failed to enqueue stale domains: %w", err)
			}

			fmt.Printf("Queued %d index job(s)\n", n)
			return nil
		},
	}

	cmd.Flags().Duration("interval", service.DefaultRescrapeInterval, "Age after which a domain is stale (defaults to BETTER404_RESCRAPE_INTERVAL)")

	return cmd
}
