package feed

import (
	"context"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coinpilot/internal/domain"
)

func TestHandleEventsNormalizesTicks(t *testing.T) {
	table := NewPriceTable()
	f := New(table, "USDT", zap.NewNop())

	f.handleEvents(binance.WsAllMarketsStatEvent{
		&binance.WsMarketStatEvent{Symbol: "BTCUSDT", LastPrice: "65000.5", QuoteVolume: "1200000"},
		&binance.WsMarketStatEvent{Symbol: "ETHBTC", LastPrice: "0.05", QuoteVolume: "100"},        // wrong quote
		&binance.WsMarketStatEvent{Symbol: "XRPUSDT", LastPrice: "not-a-number", QuoteVolume: "1"}, // malformed price
		&binance.WsMarketStatEvent{Symbol: "DOGEUSDT", LastPrice: "0", QuoteVolume: "1"},           // non-positive price
		&binance.WsMarketStatEvent{Symbol: "SOLUSDT", LastPrice: "150", QuoteVolume: "garbage"},    // malformed turnover
		nil,
	})

	assert.Equal(t, 2, table.Len())

	snap, ok := table.Get("BTCUSDT")
	require.True(t, ok)
	assert.True(t, snap.Price.Equal(decimal.NewFromFloat(65000.5)))
	assert.True(t, snap.Turnover24.Equal(decimal.NewFromInt(1200000)))
	assert.False(t, snap.ObservedAt.IsZero())

	// malformed turnover defaults to zero, price is kept
	snap, ok = table.Get("SOLUSDT")
	require.True(t, ok)
	assert.True(t, snap.Price.Equal(decimal.NewFromInt(150)))
	assert.True(t, snap.Turnover24.IsZero())

	_, ok = table.Get("XRPUSDT")
	assert.False(t, ok)
	_, ok = table.Get("ETHBTC")
	assert.False(t, ok)
}

func TestHandleEventsOverwritesPreviousSnapshot(t *testing.T) {
	table := NewPriceTable()
	f := New(table, "USDT", zap.NewNop())

	f.handleEvents(binance.WsAllMarketsStatEvent{
		&binance.WsMarketStatEvent{Symbol: "BTCUSDT", LastPrice: "65000", QuoteVolume: "1"},
	})
	f.handleEvents(binance.WsAllMarketsStatEvent{
		&binance.WsMarketStatEvent{Symbol: "BTCUSDT", LastPrice: "66000", QuoteVolume: "2"},
	})

	snap, ok := table.Get("BTCUSDT")
	require.True(t, ok)
	assert.True(t, snap.Price.Equal(decimal.NewFromInt(66000)))
	assert.Equal(t, 1, table.Len())
}

func TestRunStopsStreamOnShutdown(t *testing.T) {
	table := NewPriceTable()
	f := New(table, "USDT", zap.NewNop())

	doneC := make(chan struct{})
	stopC := make(chan struct{})
	subscribed := make(chan struct{}, 1)
	f.subscribe = func(handler binance.WsAllMarketsStatHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error) {
		subscribed <- struct{}{}
		return doneC, stopC, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(finished)
	}()

	<-subscribed
	cancel()

	select {
	case <-stopC:
	case <-time.After(3 * time.Second):
		t.Fatal("stream was not stopped")
	}

	close(doneC)

	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
}

func TestSnapshotReturnsAllEntries(t *testing.T) {
	table := NewPriceTable()
	for _, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		table.Put(domain.PriceSnapshot{
			Symbol:     symbol,
			Price:      decimal.NewFromInt(1),
			Turnover24: decimal.NewFromInt(1),
			ObservedAt: time.Now(),
		})
	}

	snaps := table.Snapshot()
	assert.Len(t, snaps, 2)
}
