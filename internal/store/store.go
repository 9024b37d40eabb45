// Package store defines the persistent-store collaborator the core uses to
// cache historical candles and corporate actions between runs, and
// provides a SQLite-backed implementation of it.
//
// Grounded on the donor's store.DataStore interface (context-first,
// filter-struct query methods) trimmed from its full trade-journal/plan/
// decision/watchlist/alert surface down to the six operations spec §6
// actually names for the core's persistent-store boundary.
package store

import (
	"context"
	"time"

	"hkbacktest/internal/models"
)

// Repository is the persistent-store boundary the core depends on. It is
// a pure cache in front of the broker.MarketDataSource: the data pipeline
// consults it before falling back to a live fetch, and writes back
// whatever it fetches.
type Repository interface {
	// FindCandles returns cached candles for symbol/interval in [t0, t1],
	// ascending by timestamp. An empty, nil-error result means "no cached
	// data", not a fetch failure.
	FindCandles(ctx context.Context, symbol string, interval models.Interval, t0, t1 time.Time) ([]models.Candle, error)

	// SaveCandles upserts a batch of candles, keyed by (symbol, interval,
	// timestamp).
	SaveCandles(ctx context.Context, interval models.Interval, batch []models.Candle) error

	// FindLatestTimestamp returns the timestamp of the most recent cached
	// candle for symbol/interval, or the zero time if none is cached.
	FindLatestTimestamp(ctx context.Context, symbol string, interval models.Interval) (time.Time, error)

	// FindCorporateActions returns every cached corporate action for
	// symbol.
	FindCorporateActions(ctx context.Context, symbol string) ([]models.CorporateAction, error)

	// SaveCorporateActions upserts a batch of corporate actions, keyed by
	// (symbol, exDate, kind).
	SaveCorporateActions(ctx context.Context, batch []models.CorporateAction) error

	// DeleteCandlesOlderThan purges cached candles for interval with a
	// timestamp before cutoff, returning the number of rows removed.
	DeleteCandlesOlderThan(ctx context.Context, interval models.Interval, cutoff time.Time) (int64, error)

	// Close releases the underlying connection.
	Close() error
}
