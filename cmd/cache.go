package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/render"
	"github.com/derickschaefer/shelfindex/internal/store"
	"github.com/derickschaefer/shelfindex/internal/util"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local price store",
	Long: `The local store is the bbolt file filled by 'fetch' and 'import'. It holds
one entry per variant in the obs bucket and saved queries in snapshots.`,
}

// ─── cache stats ──────────────────────────────────────────────────────────────

// storeReport is the `cache stats` payload.
type storeReport struct {
	Path         string              `json:"path"`
	Variants     int                 `json:"variants"`
	Observations int                 `json:"observations"`
	Oldest       string              `json:"oldest,omitempty"`
	Newest       string              `json:"newest,omitempty"`
	Buckets      []store.BucketStats `json:"buckets"`
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the local store holds",
	Example: `  shelfindex cache stats
  shelfindex cache stats --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		buckets, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}
		variants, err := deps.Store.ListVariants("")
		if err != nil {
			return fmt.Errorf("listing variants: %w", err)
		}

		rep := storeReport{Path: deps.Store.Path(), Variants: len(variants), Buckets: buckets}
		var oldest, newest time.Time
		for _, v := range variants {
			rep.Observations += v.Observations
			if oldest.IsZero() || v.First.Before(oldest) {
				oldest = v.First
			}
			if v.Last.After(newest) {
				newest = v.Last
			}
		}
		if len(variants) > 0 {
			rep.Oldest, rep.Newest = util.FormatDate(oldest), util.FormatDate(newest)
		}

		w := cmd.OutOrStdout()
		if resolveFormat(deps.Config.Format) == render.FormatJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		span := "(empty)"
		if len(variants) > 0 {
			span = rep.Oldest + " to " + rep.Newest
		}
		printKVTable(w, [][]string{
			{"database", rep.Path},
			{"variants", fmt.Sprintf("%d", rep.Variants)},
			{"observations", fmt.Sprintf("%d", rep.Observations)},
			{"span", span},
		})
		fmt.Fprintln(w)
		printSimpleTable(w, []string{"BUCKET", "ENTRIES", "SIZE"}, func(add func(...string)) {
			for _, b := range buckets {
				add(b.Name, fmt.Sprintf("%d", b.Count), humanBytes(b.Bytes))
			}
		})
		return nil
	},
}

// ─── cache clear ──────────────────────────────────────────────────────────────

var (
	cacheClearAll    bool
	cacheClearBucket string
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty one bucket or the whole store",
	Long: `Empties buckets in place. The file keeps its size until 'cache compact'
rewrites it.`,
	Example: `  shelfindex cache clear --bucket obs
  shelfindex cache clear --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheClearAll == (cacheClearBucket != "") {
			return fmt.Errorf("use exactly one of --all or --bucket <%s>", strings.Join(store.AllBuckets, "|"))
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		cleared := "all buckets"
		if cacheClearAll {
			err = deps.Store.ClearAll()
		} else {
			err = deps.Store.ClearBucket(cacheClearBucket)
			cleared = fmt.Sprintf("bucket %q", cacheClearBucket)
		}
		if err != nil {
			return fmt.Errorf("clearing %s: %w", cleared, err)
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %s in %s\n", cleared, deps.Store.Path())
		}
		return nil
	},
}

// ─── cache compact ────────────────────────────────────────────────────────────

var cacheCompactCmd = &cobra.Command{
	Use:     "compact",
	Short:   "Rewrite the store file to release freed pages",
	Example: `  shelfindex cache compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		before, after, err := deps.Store.Compact()
		if err != nil {
			return fmt.Errorf("compacting %s: %w", deps.Store.Path(), err)
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Compacted %s: %s → %s\n",
				deps.Store.Path(), humanBytes(before), humanBytes(after))
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCompactCmd)

	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "empty every bucket")
	cacheClearCmd.Flags().StringVar(&cacheClearBucket, "bucket", "", "empty one bucket: "+strings.Join(store.AllBuckets, "|"))
	_ = cacheClearCmd.RegisterFlagCompletionFunc("bucket", fixedChoices(store.AllBuckets...))
}
