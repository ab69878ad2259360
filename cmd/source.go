package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/config"
	"github.com/derickschaefer/shelfindex/internal/model"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Check the remote observation sources",
	Long:  `Commands for checking the scraper's Postgres database and the HTTP price feed.`,
}

// ─── source stats ─────────────────────────────────────────────────────────────

var sourceStaleAfter string

var sourceStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Scrape bookkeeping counters from Postgres",
	Long: `Report the scraper's bookkeeping counters:

  total            product rows
  unique           distinct (seller, sku) variants
  outdated         tracked URLs last scraped longer ago than --stale-after
  not_yet_scraped  tracked URLs never scraped`,
	Example: `  shelfindex source stats
  shelfindex source stats --stale-after 72h --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		deps.Config.Source = config.SourcePostgres
		if err := deps.Config.Validate(); err != nil {
			return err
		}
		stale := deps.Config.StaleAfter
		if sourceStaleAfter != "" {
			if stale, err = time.ParseDuration(sourceStaleAfter); err != nil {
				return fmt.Errorf("--stale-after: %w", err)
			}
		}

		pg, err := deps.Postgres(cmd.Context())
		if err != nil {
			return err
		}
		stats, err := pg.Stats(cmd.Context(), stale)
		if err != nil {
			return err
		}
		result := newResult("source stats", model.KindSourceStats, stats, 1, started)
		return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, resolveFormat(deps.Config.Format), deps.Config.Verbose)
	},
}

// ─── source ping ──────────────────────────────────────────────────────────────

var sourcePingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the configured remote source is reachable",
	Example: `  shelfindex source ping --source postgres
  shelfindex source ping --source feed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.Config.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		switch deps.Config.Source {
		case config.SourcePostgres:
			_, err = deps.Postgres(ctx)
		case config.SourceFeed:
			client, ferr := deps.Feed()
			if ferr != nil {
				return ferr
			}
			err = client.Ping(ctx)
		default:
			return fmt.Errorf("ping needs a remote source (--source %s or %s)", config.SourcePostgres, config.SourceFeed)
		}
		if err != nil {
			return err
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s reachable (%dms)\n", deps.Config.Source, time.Since(started).Milliseconds())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.AddCommand(sourceStatsCmd)
	sourceCmd.AddCommand(sourcePingCmd)

	sourceStatsCmd.Flags().StringVar(&sourceStaleAfter, "stale-after", "", "age after which a scrape counts as outdated (default: 24h)")
}
