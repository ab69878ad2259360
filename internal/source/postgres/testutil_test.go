package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema is the subset of the scraper's tables the source reads.
const schema = `
CREATE TABLE product (
	id           SERIAL PRIMARY KEY,
	gtin         INTEGER,
	name         VARCHAR,
	sku          BIGINT,
	price        DOUBLE PRECISION,
	url          VARCHAR,
	scraped      TIMESTAMP,
	seller       VARCHAR
);
CREATE INDEX ix_product_gtin ON product (gtin);

CREATE TABLE productscrapestatus (
	id             SERIAL PRIMARY KEY,
	url            VARCHAR UNIQUE,
	scrape_success BOOLEAN,
	fail_reason    VARCHAR,
	last_scraped   TIMESTAMP,
	seller         VARCHAR
);
`

// setupTestDB starts a PostgreSQL container, creates the scraper schema and
// returns a pool plus a cleanup function. Skips when no container runtime
// is available.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("supermarket"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err, "failed to create schema")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// insertProduct adds one scraped product row.
func insertProduct(t *testing.T, ctx context.Context, pool *Pool, gtin int, seller string, sku int64, name string, price *float64, scraped *time.Time) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO product (gtin, seller, sku, name, price, scraped) VALUES ($1, $2, $3, $4, $5, $6)`,
		gtin, seller, sku, name, price, scraped,
	)
	require.NoError(t, err)
}

// insertStatus adds one scrape-status row.
func insertStatus(t *testing.T, ctx context.Context, pool *Pool, url string, lastScraped *time.Time) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO productscrapestatus (url, scrape_success, last_scraped, seller) VALUES ($1, $2, $3, 'shopa')`,
		url, lastScraped != nil, lastScraped,
	)
	require.NoError(t, err)
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
