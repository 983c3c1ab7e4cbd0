package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a single OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// CloneCandles returns a shallow copy of the series. Used before painting a
// live price onto the last bar so cached series are never mutated.
func CloneCandles(candles []Candle) []Candle {
	if candles == nil {
		return nil
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out
}

// PaintClose overwrites the close of the last bar with the given price.
// The result is used for signal computation only and is never persisted.
func PaintClose(candles []Candle, price decimal.Decimal) {
	if len(candles) == 0 || price.LessThanOrEqual(decimal.Zero) {
		return
	}
	candles[len(candles)-1].Close = price
}
