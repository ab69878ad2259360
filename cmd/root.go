// Package cmd implements the shelfindex CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/app"
	"github.com/derickschaefer/shelfindex/internal/config"
	"github.com/derickschaefer/shelfindex/internal/render"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	Format      string
	Out         string
	Source      string
	DB          string
	Timeout     string
	Concurrency int
	Rate        float64
	LogFile     string
	LogLevel    string
	Quiet       bool
	Verbose     bool
	Debug       bool
}

// rootCmd is the base command. Running `shelfindex` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "shelfindex",
	Short: "shelfindex — price inflation index from scraped shelf prices",
	Long: `shelfindex turns timestamped product prices into a single inflation index
anchored at 1.0 on a baseline day.

Two strategies are available:
  compound   annualized growth of every consecutive price pair, averaged per
             day and compounded from the baseline (default)
  nearest    for each checkpoint, the mean ratio of each variant's latest
             price to its price at the baseline

Prices come from the local store (default), the scraper's Postgres database,
or an HTTP price feed.

Quick start:
  shelfindex config init                     # create a config.json
  shelfindex fetch --from postgres           # snapshot Postgres into the local store
  shelfindex index --name milk --mode table  # daily index for every "milk" product`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
// An interrupt cancels the running query.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if !render.ValidFormat(cfg.Format) {
		return nil, fmt.Errorf("unknown format %q (use table, json, jsonl, csv, tsv, md)", cfg.Format)
	}
	if globalFlags.Source != "" {
		cfg.Source = globalFlags.Source
	}
	if globalFlags.DB != "" {
		cfg.DBPath = globalFlags.DB
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Concurrency > 0 {
		cfg.Concurrency = globalFlags.Concurrency
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	if globalFlags.LogFile != "" {
		cfg.LogFile = globalFlags.LogFile
	}
	if globalFlags.LogLevel != "" {
		cfg.LogLevel = globalFlags.LogLevel
	}

	return app.New(cfg)
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.Source, "source", "",
		"observation source: store|postgres|feed (default: store)")
	pf.StringVar(&globalFlags.DB, "db", "",
		"path of the local bbolt store (default: ~/.shelfindex/shelfindex.db)")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"feed request timeout (e.g. 30s, 2m)")
	pf.IntVar(&globalFlags.Concurrency, "concurrency", 0,
		"max parallel workers per query (default: number of CPUs)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max feed requests per second (default: 5.0)")
	pf.StringVar(&globalFlags.LogFile, "log-file", "",
		"write JSON logs to a rotating file instead of stderr")
	pf.StringVar(&globalFlags.LogLevel, "log-level", "",
		"log level: debug|info|warn|error (default: warn)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log query lifecycle and source requests (secrets redacted)")

	_ = rootCmd.RegisterFlagCompletionFunc("format", fixedChoices("table", "json", "jsonl", "csv", "tsv", "md"))
	_ = rootCmd.RegisterFlagCompletionFunc("source", fixedChoices("store", "postgres", "feed"))
}
