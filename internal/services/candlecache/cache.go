// Package candlecache caches per-instrument bar series with time-based
// refresh and target-set eviction.
package candlecache

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinpilot/internal/domain"
	"coinpilot/internal/services/feed"
	"coinpilot/internal/services/market"
)

const (
	// refreshAfter is how long a cached series stays fresh.
	refreshAfter = 60 * time.Second

	dailyBars    = 60
	intradayBars = 60
)

type entry struct {
	daily     []domain.Candle
	intraday  []domain.Candle
	fetchedAt time.Time
}

// Cache owns the bar series of active instruments. Series are replaced
// wholesale on refresh; callers receive copies with the live price painted
// onto the last close, so cached data is never mutated.
type Cache struct {
	source market.Source
	table  *feed.PriceTable
	log    *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time
}

// New creates a candle cache reading history from source and live prices
// from the shared price table.
func New(source market.Source, table *feed.PriceTable, logger *zap.Logger) *Cache {
	return &Cache{
		source:  source,
		table:   table,
		log:     logger,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get returns copies of the pair's daily and intraday series plus the
// current price. The series are refreshed when older than the refresh
// threshold; when a live snapshot exists its price is painted onto the last
// bar's close of both copies and isLive is true, otherwise the last daily
// close is returned.
func (c *Cache) Get(ctx context.Context, pair domain.Pair) (daily, intraday []domain.Candle, live decimal.Decimal, isLive bool, err error) {
	key := pair.Symbol()

	c.mu.Lock()
	e, ok := c.entries[key]
	stale := !ok || c.now().Sub(e.fetchedAt) > refreshAfter
	c.mu.Unlock()

	if stale {
		if fresh, ferr := c.fetch(ctx, pair); ferr == nil {
			c.mu.Lock()
			c.entries[key] = fresh
			e, ok = fresh, true
			c.mu.Unlock()
		} else if ok {
			// keep serving the stale entry; next Get retries
			c.log.Debug("candle refresh failed, serving stale series",
				zap.String("symbol", key), zap.Error(ferr))
		} else {
			return nil, nil, decimal.Zero, false, errors.Wrapf(ferr, "no candle data for %s", key)
		}
	}

	daily = domain.CloneCandles(e.daily)
	intraday = domain.CloneCandles(e.intraday)

	if snap, found := c.table.Get(key); found && snap.Price.IsPositive() {
		live, isLive = snap.Price, true
		domain.PaintClose(daily, live)
		domain.PaintClose(intraday, live)
	} else if len(daily) > 0 {
		live = daily[len(daily)-1].Close
	}

	return daily, intraday, live, isLive, nil
}

func (c *Cache) fetch(ctx context.Context, pair domain.Pair) (*entry, error) {
	daily, err := c.source.GetOhlcv(ctx, pair, market.IntervalDay, dailyBars)
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return nil, errors.Errorf("empty daily series for %s", pair)
	}

	intraday, err := c.source.GetOhlcv(ctx, pair, market.IntervalHour, intradayBars)
	if err != nil || len(intraday) == 0 {
		// intraday history is optional; the scorer falls back to daily
		intraday = daily
	}

	return &entry{daily: daily, intraday: intraday, fetchedAt: c.now()}, nil
}

// Retain evicts every instrument not present in the active set.
func (c *Cache) Retain(active map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if _, ok := active[key]; !ok {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of cached instruments.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
