package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/config"
)

var (
	fetchFrom string
	fetchName string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Snapshot a remote source into the local store",
	Long: `Read every matching price record from Postgres or the HTTP feed and merge
it into the local bbolt store, so later 'index' runs work offline against a
frozen snapshot.

Records already present (same variant and timestamp) are not duplicated.`,
	Example: `  shelfindex fetch --from postgres
  shelfindex fetch --from feed --name milk`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		if fetchFrom == config.SourceStore {
			return fmt.Errorf("--from must be a remote source (%s or %s)", config.SourcePostgres, config.SourceFeed)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		deps.Config.Source = fetchFrom
		if err := deps.Config.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		src, err := deps.Source(ctx, fetchFrom)
		if err != nil {
			return err
		}
		records, err := src.Observations(ctx, fetchName)
		if err != nil {
			return fmt.Errorf("fetching from %s: %w", fetchFrom, err)
		}

		if err := deps.RequireStore(); err != nil {
			return err
		}
		added, err := deps.Store.PutRecords(records)
		if err != nil {
			return fmt.Errorf("storing records: %w", err)
		}
		deps.Logger.Info("fetch complete", "source", fetchFrom, "records", len(records), "added", added)

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Fetched %d records from %s, %d new, into %s\n",
				len(records), fetchFrom, added, deps.Store.Path())
			if deps.Config.Verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "  [%dms]\n", time.Since(started).Milliseconds())
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchFrom, "from", config.SourcePostgres, "remote source: postgres|feed")
	fetchCmd.Flags().StringVar(&fetchName, "name", "", "only fetch products whose name contains this")
}
