package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpilot/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPositionLifecycle(t *testing.T) {
	store := openTestStore(t)

	id, err := store.LogBuy("BTCUSDT", decimal.NewFromInt(100), decimal.NewFromInt(1000), "ensemble")
	require.NoError(t, err)
	require.Positive(t, id)

	open, err := store.OpenPosition("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, id, open.ID)
	assert.Equal(t, "ensemble", open.StrategyName)
	assert.True(t, open.BuyPrice.Equal(decimal.NewFromInt(100)))

	require.NoError(t, store.LogSell(id, decimal.NewFromFloat(103.5), domain.CloseReasonTakeProfit))

	open, err = store.OpenPosition("BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, open)

	closed, err := store.Position(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	assert.Equal(t, domain.CloseReasonTakeProfit, closed.CloseReason)
	assert.InDelta(t, 3.5, closed.ProfitRate, 1e-9)
	assert.True(t, closed.SellPrice.Equal(decimal.NewFromFloat(103.5)))
	assert.False(t, closed.SellTime.IsZero())
}

func TestOneOpenPositionPerSymbol(t *testing.T) {
	store := openTestStore(t)

	id, err := store.LogBuy("ETHUSDT", decimal.NewFromInt(2000), decimal.NewFromInt(500), "ensemble")
	require.NoError(t, err)

	_, err = store.LogBuy("ETHUSDT", decimal.NewFromInt(2100), decimal.NewFromInt(500), "ensemble")
	assert.Error(t, err)

	// closing the first frees the slot
	require.NoError(t, store.LogSell(id, decimal.NewFromInt(2100), domain.CloseReasonManual))
	_, err = store.LogBuy("ETHUSDT", decimal.NewFromInt(2100), decimal.NewFromInt(500), "ensemble")
	assert.NoError(t, err)
}

func TestCloseZombie(t *testing.T) {
	store := openTestStore(t)

	id, err := store.LogBuy("XRPUSDT", decimal.NewFromFloat(0.5), decimal.NewFromInt(100), "import")
	require.NoError(t, err)

	require.NoError(t, store.CloseZombie(id))

	count, err := store.OpenPositionCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	pos, err := store.Position(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, pos.Status)
	assert.Equal(t, domain.CloseReasonZombie, pos.CloseReason)
	assert.True(t, pos.SellPrice.IsZero())

	// already-closed rows are untouched
	require.NoError(t, store.CloseZombie(id))
	again, err := store.Position(id)
	require.NoError(t, err)
	assert.Equal(t, domain.CloseReasonZombie, again.CloseReason)
}

func TestOpenPositionsOrderedByID(t *testing.T) {
	store := openTestStore(t)

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		_, err := store.LogBuy(symbol, decimal.NewFromInt(10), decimal.NewFromInt(100), "ensemble")
		require.NoError(t, err)
	}

	positions, err := store.OpenPositions()
	require.NoError(t, err)
	require.Len(t, positions, 3)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
	assert.Equal(t, "SOLUSDT", positions[2].Symbol)
}

func TestSaveCandlesIgnoresDuplicates(t *testing.T) {
	store := openTestStore(t)

	ts := time.Now().Truncate(time.Hour)
	candles := []domain.Candle{
		{Time: ts, Open: decimal.NewFromInt(1), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(2), Volume: decimal.NewFromInt(10)},
		{Time: ts.Add(time.Hour), Open: decimal.NewFromInt(2), High: decimal.NewFromInt(3), Low: decimal.NewFromInt(2), Close: decimal.NewFromInt(3), Volume: decimal.NewFromInt(20)},
	}

	require.NoError(t, store.SaveCandles("BTCUSDT", candles))
	require.NoError(t, store.SaveCandles("BTCUSDT", candles))

	count, err := store.CandleCount("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.CandleCount("ETHUSDT")
	require.NoError(t, err)
	assert.Zero(t, count)
}
