// Package postgres reads price observations from the scraper's relational
// database (the product and productscrapestatus tables).
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/source"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool and verifies it with a ping.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	config.MaxConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// Source implements source.Source over the product table.
type Source struct {
	pool *Pool
}

// NewSource creates a Source backed by pool.
func NewSource(pool *Pool) *Source {
	return &Source{pool: pool}
}

// Compile-time interface check.
var _ source.Source = (*Source)(nil)

const observationsQuery = `
	SELECT
		COALESCE(gtin::text, ''),
		COALESCE(seller, ''),
		COALESCE(sku::text, ''),
		COALESCE(name, ''),
		price,
		scraped
	FROM product
	WHERE price IS NOT NULL
	  AND price >= 0
	  AND scraped IS NOT NULL
	  AND ($1 = '' OR name ILIKE '%' || $1 || '%')
	ORDER BY scraped, id
`

// Observations returns every priced, timestamped product row whose name
// contains nameFilter (case-insensitive). Scrape timestamps are stored
// without a zone and are read as UTC.
func (s *Source) Observations(ctx context.Context, nameFilter string) ([]model.PriceRecord, error) {
	rows, err := s.pool.Query(ctx, observationsQuery, escapeLike(strings.TrimSpace(nameFilter)))
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []model.PriceRecord
	for rows.Next() {
		var (
			r  model.PriceRecord
			at time.Time
		)
		if err := rows.Scan(
			&r.Variant.CatalogID,
			&r.Variant.Seller,
			&r.Variant.SKU,
			&r.Variant.Name,
			&r.Price,
			&at,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		r.ObservedAt = at.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

const statsQuery = `
	SELECT
		(SELECT COUNT(*) FROM product),
		(SELECT COUNT(*) FROM (SELECT DISTINCT seller, sku FROM product) v),
		(SELECT COUNT(*) FROM productscrapestatus WHERE last_scraped < $1),
		(SELECT COUNT(*) FROM productscrapestatus WHERE last_scraped IS NULL)
`

// Stats reports the scrape bookkeeping counters: total product rows,
// distinct seller/sku variants, tracked URLs last scraped more than
// staleAfter ago, and tracked URLs never scraped.
func (s *Source) Stats(ctx context.Context, staleAfter time.Duration) (*model.SourceStats, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var st model.SourceStats
	err := s.pool.QueryRow(ctx, statsQuery, cutoff).Scan(
		&st.Total,
		&st.Unique,
		&st.Outdated,
		&st.NotYetScraped,
	)
	if err != nil {
		return nil, fmt.Errorf("query scrape stats: %w", err)
	}
	return &st, nil
}

// escapeLike neutralises LIKE wildcards so the filter is a plain substring.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
