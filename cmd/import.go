package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/pipeline"
	"github.com/derickschaefer/shelfindex/internal/util"
)

var importStrict bool

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load JSONL price records from stdin into the local store",
	Long: `Read price records, one JSON object per line, from stdin and merge them
into the local store:

  {"gtin":"0001","seller":"shopa","sku":"m1","name":"Whole Milk","price":1.19,"observed_at":"2024-03-01T08:00:00Z"}

Malformed lines are skipped with a warning unless --strict is set.`,
	Example: `  shelfindex import < prices.jsonl
  shelfindex store get --name milk --format jsonl | shelfindex import --db other.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := pipeline.ReadRecords(cmd.InOrStdin())
		var bad *util.MultiError
		switch {
		case errors.As(err, &bad):
			if importStrict {
				return err
			}
		case err != nil:
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		added, err := deps.Store.PutRecords(records)
		if err != nil {
			return fmt.Errorf("storing records: %w", err)
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d records, %d new\n", len(records), added)
			if bad != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠  %d line(s) skipped: %v\n", len(bad.Errors), bad)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importStrict, "strict", false, "fail on the first malformed line instead of skipping")
}
