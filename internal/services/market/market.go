// Package market provides access to historical market data: OHLCV bars,
// the tradable pair universe and spot prices.
package market

import (
	"context"

	"github.com/shopspring/decimal"

	"coinpilot/internal/domain"
)

// Bar intervals understood by the data source.
const (
	IntervalDay  = "1d"
	IntervalHour = "1h"
)

// Source is the historical data collaborator of the candle cache, the
// backtest engine and the control loop.
type Source interface {
	// GetOhlcv fetches up to limit bars ascending by time.
	GetOhlcv(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.Candle, error)
	// ListPairs returns all tradable pairs quoted in the given currency.
	ListPairs(ctx context.Context, quote string) ([]domain.Pair, error)
	// CurrentPrice returns the latest spot price of the pair.
	CurrentPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}
