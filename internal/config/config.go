// Package config handles loading and resolving shelfindex configuration.
// Resolution order (later layers win):
//  1. built-in defaults
//  2. config.json in the current working directory
//  3. environment (SHELFINDEX_*, POSTGRES_*), with a .env file in the
//     working directory filling any variables not already set
//  4. CLI flags, applied by the caller after Load
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/derickschaefer/shelfindex/internal/model"
)

const (
	DefaultConfigFile  = "config.json"
	DefaultEnvFile     = ".env"
	DefaultFormat      = "table"
	DefaultSource      = SourceStore
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 0 // 0 = NumCPU
	DefaultRate        = 5.0
	DefaultStaleAfter  = 24 * time.Hour
	DefaultLogLevel    = "warn"

	EnvSource     = "SHELFINDEX_SOURCE"
	EnvDBPath     = "SHELFINDEX_DB_PATH"
	EnvFeedURL    = "SHELFINDEX_FEED_URL"
	EnvFeedToken  = "SHELFINDEX_FEED_TOKEN"
	EnvLogFile    = "SHELFINDEX_LOG_FILE"
	EnvLogLevel   = "SHELFINDEX_LOG_LEVEL"
	EnvPGDSN      = "SHELFINDEX_POSTGRES_DSN"
	EnvPGUser     = "POSTGRES_USER"
	EnvPGPassword = "POSTGRES_PASSWORD"
	EnvPGHost     = "POSTGRES_HOST"
	EnvPGPort     = "POSTGRES_PORT"
	EnvPGDB       = "POSTGRES_DB"
)

// Observation source names.
const (
	SourceStore    = "store"
	SourcePostgres = "postgres"
	SourceFeed     = "feed"
)

// Postgres holds connection settings for the relational source. Defaults
// match the scraper's docker-compose database.
type Postgres struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
	SSLMode  string `json:"sslmode,omitempty"`
	DSN      string `json:"dsn,omitempty"` // overrides the fields above
}

// ConnString returns the DSN for pgx.
func (p Postgres) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	q := url.Values{}
	q.Set("sslmode", p.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// File is the on-disk representation of config.json.
type File struct {
	Source        string   `json:"source"`
	DefaultFormat string   `json:"default_format"`
	Timeout       string   `json:"timeout"`
	Concurrency   int      `json:"concurrency"`
	Rate          float64  `json:"rate"`
	DBPath        string   `json:"db_path"`
	FeedURL       string   `json:"feed_url,omitempty"`
	FeedToken     string   `json:"feed_token,omitempty"`
	Postgres      Postgres `json:"postgres"`
	Identity      string   `json:"identity,omitempty"`
	Strategy      string   `json:"strategy,omitempty"`
	Granularity   string   `json:"granularity,omitempty"`
	StaleAfter    string   `json:"stale_after,omitempty"`
	LogFile       string   `json:"log_file,omitempty"`
	LogLevel      string   `json:"log_level,omitempty"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	Source      string
	Format      string
	Timeout     time.Duration
	Concurrency int
	Rate        float64
	DBPath      string
	FeedURL     string
	FeedToken   string
	Postgres    Postgres
	Identity    string
	Strategy    string
	Granularity string
	StaleAfter  time.Duration
	LogFile     string
	LogLevel    string
	ConfigPath  string // path of the config.json that was loaded (empty if none found)
	EnvFile     string // path of the .env that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Defaults returns a Config with only built-in defaults applied.
func Defaults() *Config {
	return &Config{
		Source:      DefaultSource,
		Format:      DefaultFormat,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		Rate:        DefaultRate,
		Postgres: Postgres{
			Host:     "localhost",
			Port:     5444,
			Database: "supermarket",
			SSLMode:  "disable",
		},
		Identity:    model.IdentitySellerSKU,
		Strategy:    string(model.StrategyCompound),
		Granularity: string(model.GranularityDay),
		StaleAfter:  DefaultStaleAfter,
		LogLevel:    DefaultLogLevel,
	}
}

// Load resolves configuration from config.json, .env and the environment
// found in dir ("" = current working directory).
func Load(dir string) (*Config, error) {
	cfg := Defaults()

	// Layer 1: config.json
	f, path, err := loadFile(filepath.Join(dir, DefaultConfigFile))
	switch {
	case err == nil:
		applyFile(cfg, f, path)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	// Layer 2: .env fills unset variables, then the environment wins.
	envPath := filepath.Join(dir, DefaultEnvFile)
	if err := godotenv.Load(envPath); err == nil {
		if abs, aerr := filepath.Abs(envPath); aerr == nil {
			cfg.EnvFile = abs
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", envPath, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Set default DB path if still unset
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".shelfindex", "shelfindex.db")
		}
	}

	return cfg, nil
}

// Validate returns an error if enums are unknown or the selected source is
// missing a required setting.
func (c *Config) Validate() error {
	if _, err := model.ParseGranularity(c.Granularity); err != nil {
		return err
	}
	if _, err := model.ParseIdentity(c.Identity); err != nil {
		return err
	}
	switch c.Source {
	case SourceStore:
		if c.DBPath == "" {
			return errors.New("db_path is not set and no home directory was found")
		}
	case SourcePostgres:
		if c.Postgres.DSN == "" && c.Postgres.User == "" {
			return errors.New(
				"postgres credentials not found.\n\n" +
					"Set them one of these ways:\n" +
					"  1. .env file:       POSTGRES_USER=... and POSTGRES_PASSWORD=...\n" +
					"  2. Environment:     export POSTGRES_USER=...\n" +
					"  3. config.json:     {\"postgres\": {\"user\": \"...\"}}\n" +
					"  4. Full DSN:        export " + EnvPGDSN + "=postgres://...",
			)
		}
	case SourceFeed:
		if c.FeedURL == "" {
			return fmt.Errorf("feed_url is not set (config.json or %s)", EnvFeedURL)
		}
	default:
		return fmt.Errorf("unknown source %q (use %s, %s or %s)", c.Source, SourceStore, SourcePostgres, SourceFeed)
	}
	return nil
}

// RedactedPassword returns the Postgres password with most characters
// replaced by asterisks. Safe for logging and display.
func (c *Config) RedactedPassword() string {
	return redact(c.Postgres.Password)
}

// RedactedFeedToken is RedactedPassword for the feed token.
func (c *Config) RedactedFeedToken() string {
	return redact(c.FeedToken)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// loadFile reads and parses a config.json. A missing file yields an error
// wrapping os.ErrNotExist.
func loadFile(path string) (*File, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config.json not found at %s: %w", abs, os.ErrNotExist)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, abs, nil
}

// ReadFile loads the config.json at path for editing.
func ReadFile(path string) (*File, error) {
	f, _, err := loadFile(path)
	return f, err
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	setString(&cfg.Source, f.Source)
	setString(&cfg.Format, f.DefaultFormat)
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	setString(&cfg.DBPath, f.DBPath)
	setString(&cfg.FeedURL, f.FeedURL)
	setString(&cfg.FeedToken, f.FeedToken)
	setString(&cfg.Postgres.Host, f.Postgres.Host)
	if f.Postgres.Port > 0 {
		cfg.Postgres.Port = f.Postgres.Port
	}
	setString(&cfg.Postgres.User, f.Postgres.User)
	setString(&cfg.Postgres.Password, f.Postgres.Password)
	setString(&cfg.Postgres.Database, f.Postgres.Database)
	setString(&cfg.Postgres.SSLMode, f.Postgres.SSLMode)
	setString(&cfg.Postgres.DSN, f.Postgres.DSN)
	setString(&cfg.Identity, f.Identity)
	setString(&cfg.Strategy, f.Strategy)
	setString(&cfg.Granularity, f.Granularity)
	if f.StaleAfter != "" {
		if d, err := time.ParseDuration(f.StaleAfter); err == nil {
			cfg.StaleAfter = d
		}
	}
	setString(&cfg.LogFile, f.LogFile)
	setString(&cfg.LogLevel, f.LogLevel)
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Source, os.Getenv(EnvSource))
	setString(&cfg.DBPath, os.Getenv(EnvDBPath))
	setString(&cfg.FeedURL, os.Getenv(EnvFeedURL))
	setString(&cfg.FeedToken, os.Getenv(EnvFeedToken))
	setString(&cfg.LogFile, os.Getenv(EnvLogFile))
	setString(&cfg.LogLevel, os.Getenv(EnvLogLevel))
	setString(&cfg.Postgres.DSN, os.Getenv(EnvPGDSN))
	setString(&cfg.Postgres.User, os.Getenv(EnvPGUser))
	setString(&cfg.Postgres.Password, os.Getenv(EnvPGPassword))
	setString(&cfg.Postgres.Host, os.Getenv(EnvPGHost))
	setString(&cfg.Postgres.Database, os.Getenv(EnvPGDB))
	if v := os.Getenv(EnvPGPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPGPort, v)
		}
		cfg.Postgres.Port = port
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `shelfindex config init`.
func Template() File {
	d := Defaults()
	return File{
		Source:        d.Source,
		DefaultFormat: d.Format,
		Timeout:       d.Timeout.String(),
		Concurrency:   d.Concurrency,
		Rate:          d.Rate,
		Postgres: Postgres{
			Host:     d.Postgres.Host,
			Port:     d.Postgres.Port,
			Database: d.Postgres.Database,
			SSLMode:  d.Postgres.SSLMode,
		},
		Identity:    d.Identity,
		Strategy:    d.Strategy,
		Granularity: d.Granularity,
		StaleAfter:  d.StaleAfter.String(),
		LogLevel:    d.LogLevel,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// Set assigns one config.json key from its string form.
func (f *File) Set(key, val string) error {
	switch strings.ToLower(key) {
	case "source":
		f.Source = val
	case "default_format", "format":
		f.DefaultFormat = val
	case "timeout":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("timeout must be a duration like 30s: %w", err)
		}
		f.Timeout = val
	case "concurrency":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return fmt.Errorf("concurrency must be a non-negative integer")
		}
		f.Concurrency = n
	case "rate":
		r, err := strconv.ParseFloat(val, 64)
		if err != nil || r <= 0 {
			return fmt.Errorf("rate must be a positive number")
		}
		f.Rate = r
	case "db_path":
		f.DBPath = val
	case "feed_url":
		f.FeedURL = val
	case "feed_token":
		f.FeedToken = val
	case "postgres.host":
		f.Postgres.Host = val
	case "postgres.port":
		p, err := strconv.Atoi(val)
		if err != nil || p <= 0 {
			return fmt.Errorf("postgres.port must be a positive integer")
		}
		f.Postgres.Port = p
	case "postgres.user":
		f.Postgres.User = val
	case "postgres.password":
		f.Postgres.Password = val
	case "postgres.database":
		f.Postgres.Database = val
	case "postgres.sslmode":
		f.Postgres.SSLMode = val
	case "postgres.dsn":
		f.Postgres.DSN = val
	case "identity":
		if _, err := model.ParseIdentity(val); err != nil {
			return err
		}
		f.Identity = val
	case "strategy":
		f.Strategy = val
	case "granularity":
		if _, err := model.ParseGranularity(val); err != nil {
			return err
		}
		f.Granularity = val
	case "stale_after":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("stale_after must be a duration like 24h: %w", err)
		}
		f.StaleAfter = val
	case "log_file":
		f.LogFile = val
	case "log_level":
		f.LogLevel = val
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}
