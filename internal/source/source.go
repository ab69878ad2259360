// Package source defines the observation-source boundary the engine reads
// snapshots through, plus an in-memory implementation.
package source

import (
	"context"
	"errors"
	"strings"

	"github.com/derickschaefer/shelfindex/internal/model"
)

// ErrUnavailable marks a failure of the external source. The engine wraps
// every source error with it and does not retry.
var ErrUnavailable = errors.New("observation source unavailable")

// Source returns a point-in-time snapshot of price records whose variant
// name matches nameFilter (case-insensitive substring, "" = all).
type Source interface {
	Observations(ctx context.Context, nameFilter string) ([]model.PriceRecord, error)
}

// Func adapts a plain function to Source.
type Func func(ctx context.Context, nameFilter string) ([]model.PriceRecord, error)

// Observations calls f.
func (f Func) Observations(ctx context.Context, nameFilter string) ([]model.PriceRecord, error) {
	return f(ctx, nameFilter)
}

// MatchName reports whether name contains filter, ignoring case.
// An empty filter matches everything.
func MatchName(name, filter string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// Static serves a fixed set of records. Used for piped input and tests.
type Static []model.PriceRecord

// Observations returns a copy of the matching records.
func (s Static) Observations(ctx context.Context, nameFilter string) ([]model.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.PriceRecord, 0, len(s))
	for _, r := range s {
		if MatchName(r.Variant.Name, nameFilter) {
			out = append(out, r)
		}
	}
	return out, nil
}
