package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/model"
)

var storeName string

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect locally accumulated price records",
	Long: `Commands for inspecting what has been accumulated in the local database.

Use 'shelfindex fetch' or 'shelfindex import' to accumulate records.
Use 'shelfindex cache stats' for bucket-level storage stats.`,
}

// ─── store list ───────────────────────────────────────────────────────────────

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List variants accumulated in the local database",
	Example: `  shelfindex store list
  shelfindex store list --name milk --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		variants, err := deps.Store.ListVariants(storeName)
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(variants) == 0 && resolveFormat(deps.Config.Format) == "table" {
			fmt.Fprintln(cmd.OutOrStdout(), "No variants in local database.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: shelfindex fetch --from postgres")
			return nil
		}

		result := newResult("store list", model.KindVariants, variants, len(variants), started)
		result.Stats.Variants = len(variants)
		return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, resolveFormat(deps.Config.Format), deps.Config.Verbose)
	},
}

// ─── store get ────────────────────────────────────────────────────────────────

var storeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print stored price records",
	Example: `  shelfindex store get --name milk
  shelfindex store get --name milk --format jsonl > milk.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		records, err := deps.Store.Observations(cmd.Context(), storeName)
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("no stored records match %q\n\n  Use: shelfindex fetch --from postgres", storeName)
		}
		result := newResult("store get", model.KindRecords, records, len(records), started)
		return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, resolveFormat(deps.Config.Format), deps.Config.Verbose)
	},
}

// ─── store delete ─────────────────────────────────────────────────────────────

var storeDeleteCmd = &cobra.Command{
	Use:     "delete",
	Short:   "Delete every variant whose name matches --name",
	Example: `  shelfindex store delete --name "oat milk"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		n, err := deps.Store.DeleteVariants(storeName)
		if err != nil {
			return err
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %d variant(s) matching %q\n", n, storeName)
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeGetCmd)
	storeCmd.AddCommand(storeDeleteCmd)

	storeCmd.PersistentFlags().StringVar(&storeName, "name", "", "case-insensitive product name filter")
}
