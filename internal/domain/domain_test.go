package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	pair, err := ParsePair("BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC", pair.Base)
	assert.Equal(t, "USDT", pair.Quote)
	assert.Equal(t, "BTC_USDT", pair.String())
	assert.Equal(t, "BTCUSDT", pair.Symbol())

	for _, bad := range []string{"", "BTC", "BTC_", "_USDT", "BTC_USDT_X"} {
		_, err := ParsePair(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestProfitRate(t *testing.T) {
	tests := []struct {
		name string
		buy  float64
		sell float64
		want float64
	}{
		{"gain", 100, 103.5, 3.5},
		{"loss", 100, 97, -3.0},
		{"flat", 100, 100, 0},
		{"zero buy", 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProfitRate(decimal.NewFromFloat(tt.buy), decimal.NewFromFloat(tt.sell))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPaintClose(t *testing.T) {
	candles := []Candle{
		{Close: decimal.NewFromInt(100)},
		{Close: decimal.NewFromInt(101)},
	}

	PaintClose(candles, decimal.NewFromInt(105))
	assert.True(t, candles[1].Close.Equal(decimal.NewFromInt(105)))
	assert.True(t, candles[0].Close.Equal(decimal.NewFromInt(100)))

	// non-positive prices are ignored
	PaintClose(candles, decimal.Zero)
	assert.True(t, candles[1].Close.Equal(decimal.NewFromInt(105)))

	PaintClose(nil, decimal.NewFromInt(1))
}

func TestCloneCandlesIsIndependent(t *testing.T) {
	orig := []Candle{{Close: decimal.NewFromInt(1)}}
	clone := CloneCandles(orig)
	clone[0].Close = decimal.NewFromInt(2)
	assert.True(t, orig[0].Close.Equal(decimal.NewFromInt(1)))

	assert.Nil(t, CloneCandles(nil))
}

func TestActiveVotes(t *testing.T) {
	res := SignalResult{Votes: map[string]int{
		IndicatorTrend: 1,
		IndicatorRSI:   -1,
		IndicatorMACD:  0,
	}}

	active := res.ActiveVotes()
	assert.Contains(t, active, IndicatorTrend)
	assert.NotContains(t, active, IndicatorMACD)
}
