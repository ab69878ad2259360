package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/config"
	"github.com/derickschaefer/shelfindex/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage shelfindex configuration",
	Long: `Read and write shelfindex configuration stored in config.json.

Postgres credentials are usually kept out of config.json in a .env file
next to it (POSTGRES_USER, POSTGRES_PASSWORD).`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Put POSTGRES_USER and POSTGRES_PASSWORD in a .env file next to it,")
		fmt.Fprintln(cmd.OutOrStdout(), "  or set feed_url to read from an HTTP price feed.")
		return nil
	},
}

var configGetShowSecrets bool

// configView is the resolved configuration as printed by `config get`.
type configView struct {
	Source      string  `json:"source"`
	Format      string  `json:"default_format"`
	Timeout     string  `json:"timeout"`
	Concurrency int     `json:"concurrency"`
	Rate        float64 `json:"rate"`
	DBPath      string  `json:"db_path"`
	FeedURL     string  `json:"feed_url"`
	FeedToken   string  `json:"feed_token"`
	Postgres    string  `json:"postgres"`
	PGUser      string  `json:"postgres_user"`
	PGPassword  string  `json:"postgres_password"`
	Identity    string  `json:"identity"`
	Strategy    string  `json:"strategy"`
	Granularity string  `json:"granularity"`
	StaleAfter  string  `json:"stale_after"`
	LogFile     string  `json:"log_file"`
	LogLevel    string  `json:"log_level"`
	ConfigFile  string  `json:"config_file"`
	EnvFile     string  `json:"env_file"`
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load("")
		if err != nil {
			return err
		}

		password, token := cfg.RedactedPassword(), cfg.RedactedFeedToken()
		if configGetShowSecrets {
			password, token = cfg.Postgres.Password, cfg.FeedToken
		}
		pg := fmt.Sprintf("%s:%d/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Database)
		if cfg.Postgres.DSN != "" {
			pg = "(dsn)"
		}
		v := configView{
			Source:      cfg.Source,
			Format:      cfg.Format,
			Timeout:     cfg.Timeout.String(),
			Concurrency: cfg.Concurrency,
			Rate:        cfg.Rate,
			DBPath:      cfg.DBPath,
			FeedURL:     orNotSet(cfg.FeedURL),
			FeedToken:   orNotSet(token),
			Postgres:    pg,
			PGUser:      orNotSet(cfg.Postgres.User),
			PGPassword:  orNotSet(password),
			Identity:    cfg.Identity,
			Strategy:    cfg.Strategy,
			Granularity: cfg.Granularity,
			StaleAfter:  cfg.StaleAfter.String(),
			LogFile:     orNotSet(cfg.LogFile),
			LogLevel:    cfg.LogLevel,
			ConfigFile:  orNotFound(cfg.ConfigPath),
			EnvFile:     orNotFound(cfg.EnvFile),
		}

		if resolveFormat(cfg.Format) == render.FormatJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		printKVTable(cmd.OutOrStdout(), [][]string{
			{"source", v.Source},
			{"default_format", v.Format},
			{"timeout", v.Timeout},
			{"concurrency", fmt.Sprintf("%d", v.Concurrency)},
			{"rate", fmt.Sprintf("%.1f req/s", v.Rate)},
			{"db_path", v.DBPath},
			{"feed_url", v.FeedURL},
			{"feed_token", v.FeedToken},
			{"postgres", v.Postgres},
			{"postgres_user", v.PGUser},
			{"postgres_password", v.PGPassword},
			{"identity", v.Identity},
			{"strategy", v.Strategy},
			{"granularity", v.Granularity},
			{"stale_after", v.StaleAfter},
			{"log_file", v.LogFile},
			{"log_level", v.LogLevel},
			{"config_file", v.ConfigFile},
			{"env_file", v.EnvFile},
		})
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Long: `Set one key in ./config.json, creating it from the template if needed.

Keys: source, default_format, timeout, concurrency, rate, db_path, feed_url,
feed_token, postgres.host, postgres.port, postgres.user, postgres.password,
postgres.database, postgres.sslmode, postgres.dsn, identity, strategy,
granularity, stale_after, log_file, log_level`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		f, err := config.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			tmpl := config.Template()
			f = &tmpl
		case err != nil:
			return err
		}

		if err := f.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, *f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", args[0], path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show password and token in plain text")
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func orNotFound(s string) string {
	if s == "" {
		return "(not found)"
	}
	return s
}
