// Package app wires together configuration, the logger, the local store and
// the selected observation source into a single Deps struct that commands
// receive at runtime.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/derickschaefer/shelfindex/internal/config"
	"github.com/derickschaefer/shelfindex/internal/diag"
	"github.com/derickschaefer/shelfindex/internal/engine"
	"github.com/derickschaefer/shelfindex/internal/feed"
	"github.com/derickschaefer/shelfindex/internal/source"
	"github.com/derickschaefer/shelfindex/internal/source/postgres"
	"github.com/derickschaefer/shelfindex/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store and the Postgres pool are opened lazily.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *store.Store

	logCloser io.Closer
	pool      *postgres.Pool
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) (*Deps, error) {
	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	logger, closer, err := diag.NewLogger(diag.Options{Level: level, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	return &Deps{
		Config:    cfg,
		Logger:    logger,
		logCloser: closer,
	}, nil
}

// RequireStore opens the local bbolt store if it is not open yet.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	d.Store = s
	return nil
}

// Feed returns an HTTP client for the configured price feed.
func (d *Deps) Feed() (*feed.Client, error) {
	if d.Config.FeedURL == "" {
		return nil, fmt.Errorf("feed_url is not set (config.json or %s)", config.EnvFeedURL)
	}
	return feed.NewClient(
		d.Config.FeedURL,
		d.Config.FeedToken,
		d.Config.Timeout,
		d.Config.Rate,
		feed.WithLogger(d.Logger),
	), nil
}

// Postgres returns the relational source, connecting on first use.
func (d *Deps) Postgres(ctx context.Context) (*postgres.Source, error) {
	if d.pool == nil {
		d.Logger.Debug("connecting to postgres",
			"host", d.Config.Postgres.Host,
			"port", d.Config.Postgres.Port,
			"database", d.Config.Postgres.Database,
			"password", d.Config.RedactedPassword())
		pool, err := postgres.NewPool(ctx, d.Config.Postgres.ConnString())
		if err != nil {
			return nil, err
		}
		d.pool = pool
	}
	return postgres.NewSource(d.pool), nil
}

// Source returns the observation source named by name ("" = the
// configured default).
func (d *Deps) Source(ctx context.Context, name string) (source.Source, error) {
	if name == "" {
		name = d.Config.Source
	}
	switch name {
	case config.SourceStore:
		if err := d.RequireStore(); err != nil {
			return nil, err
		}
		return d.Store, nil
	case config.SourcePostgres:
		return d.Postgres(ctx)
	case config.SourceFeed:
		return d.Feed()
	default:
		return nil, fmt.Errorf("unknown source %q (use %s, %s or %s)",
			name, config.SourceStore, config.SourcePostgres, config.SourceFeed)
	}
}

// Engine returns an index engine reading from src.
func (d *Deps) Engine(src source.Source) *engine.Engine {
	return engine.New(src,
		engine.WithWorkers(d.Config.Concurrency),
		engine.WithLogger(d.Logger),
	)
}

// Close releases the store, the Postgres pool and the log file.
func (d *Deps) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.Warn("closing store", "error", err)
		}
		d.Store = nil
	}
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
	if d.logCloser != nil {
		_ = d.logCloser.Close()
	}
}
