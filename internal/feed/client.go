// Package feed implements the HTTP client for a JSON price feed. All
// methods are context-aware, respect the shared rate limiter, and retry on
// transient errors (429, 5xx).
//
// The feed serves paginated price records:
//
//	GET {base}/prices?name=<filter>&cursor=<c>&limit=<n>
//	→ {"records":[{...pipeline record...}], "next":"<cursor or empty>"}
//
//	GET {base}/ping → {"detail": true}
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/derickschaefer/shelfindex/internal/model"
	"github.com/derickschaefer/shelfindex/internal/pipeline"
	"github.com/derickschaefer/shelfindex/internal/source"
	"github.com/derickschaefer/shelfindex/internal/util"
)

const (
	maxRetries      = 4
	defaultPageSize = 1000
	maxPages        = 10000
)

// Client is the price feed HTTP client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageSize   int
	backoff    time.Duration
	log        *slog.Logger
}

var _ source.Source = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithPageSize sets the number of records requested per page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithBackoff sets the base retry delay (doubled per attempt).
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a Client for baseURL with the given bearer token
// (may be empty), timeout and request rate.
func NewClient(baseURL, token string, timeout time.Duration, ratePerSec float64, opts ...Option) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), burst),
		pageSize: defaultPageSize,
		backoff:  500 * time.Millisecond,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ─── Price Records ────────────────────────────────────────────────────────────

type pricePage struct {
	Records []json.RawMessage `json:"records"`
	Next    string            `json:"next"`
}

// Observations fetches every page of price records matching nameFilter.
// Records that fail to decode are skipped and logged; the name filter is
// re-applied client-side so a feed that ignores it still honours the
// source contract.
func (c *Client) Observations(ctx context.Context, nameFilter string) ([]model.PriceRecord, error) {
	var (
		out     []model.PriceRecord
		skipped util.MultiError
		cursor  string
	)
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("prices: more than %d pages", maxPages)
		}
		params := url.Values{}
		if nameFilter != "" {
			params.Set("name", nameFilter)
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		params.Set("limit", strconv.Itoa(c.pageSize))

		var raw pricePage
		if err := c.get(ctx, "prices", params, &raw); err != nil {
			return nil, fmt.Errorf("prices page %d: %w", page+1, err)
		}
		for i, r := range raw.Records {
			rec, err := pipeline.DecodeRecord(r)
			if err != nil {
				skipped.Add(fmt.Errorf("page %d record %d: %w", page+1, i+1, err))
				continue
			}
			if source.MatchName(rec.Variant.Name, nameFilter) {
				out = append(out, rec)
			}
		}
		if raw.Next == "" || raw.Next == cursor {
			break
		}
		cursor = raw.Next
	}
	if err := skipped.Err(); err != nil {
		c.log.Warn("feed records skipped", "count", len(skipped.Errors), "error", err)
	}
	return out, nil
}

// Ping checks that the feed is reachable and healthy.
func (c *Client) Ping(ctx context.Context) error {
	var raw struct {
		Detail bool `json:"detail"`
	}
	if err := c.get(ctx, "ping", url.Values{}, &raw); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !raw.Detail {
		return errors.New("ping: feed reported unhealthy")
	}
	return nil
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// get performs a GET request to the feed, handling rate limiting and retries.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	c.log.Debug("feed request", "url", reqURL)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.backoff
			c.log.Debug("retrying after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "shelfindex/1.0")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}

		c.log.Debug("feed response", "status", resp.StatusCode, "bytes", len(body))

		// Retry on server errors and rate limiting
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Detail string `json:"detail"`
			}
			_ = json.Unmarshal(body, &apiErr)
			if apiErr.Detail != "" {
				return fmt.Errorf("API error: %s", apiErr.Detail)
			}
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}
