package reconciler

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coinpilot/internal/domain"
	"coinpilot/internal/services/trader"
)

type fakeLedger struct {
	open   []domain.Position
	nextID int64

	buys    []string
	zombies []int64
}

func (f *fakeLedger) OpenPositions() ([]domain.Position, error) {
	return append([]domain.Position(nil), f.open...), nil
}

func (f *fakeLedger) LogBuy(symbol string, price, amount decimal.Decimal, strategyName string) (int64, error) {
	f.nextID++
	f.buys = append(f.buys, symbol)
	f.open = append(f.open, domain.Position{
		ID:           f.nextID,
		Symbol:       symbol,
		BuyPrice:     price,
		BuyAmount:    amount,
		Status:       domain.PositionStatusOpen,
		StrategyName: strategyName,
	})
	return f.nextID, nil
}

func (f *fakeLedger) CloseZombie(id int64) error {
	f.zombies = append(f.zombies, id)
	for i := range f.open {
		if f.open[i].ID == id {
			f.open = append(f.open[:i], f.open[i+1:]...)
			break
		}
	}
	return nil
}

func holding(currency string, qty, avgCost float64) trader.Holding {
	return trader.Holding{
		Currency: currency,
		Quantity: decimal.NewFromFloat(qty),
		AvgCost:  decimal.NewFromFloat(avgCost),
	}
}

func noPrice(string) decimal.Decimal { return decimal.Zero }

func TestRunImportsUntrackedHoldings(t *testing.T) {
	ledger := &fakeLedger{}
	rec := New(ledger, "USDT", decimal.NewFromInt(10), zap.NewNop())

	holdings := []trader.Holding{
		holding("BTC", 0.5, 40000), // untracked, value 20000
		holding("USDT", 1000, 0),   // quote currency, skipped
		holding("DUST", 1, 5),      // value 5 <= minimum, skipped
	}

	result, err := rec.Run(holdings, noPrice)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, result.Imported)
	assert.Empty(t, result.Closed)

	require.Len(t, ledger.open, 1)
	imported := ledger.open[0]
	assert.Equal(t, ImportStrategyName, imported.StrategyName)
	assert.True(t, imported.BuyPrice.Equal(decimal.NewFromInt(40000)))
	assert.True(t, imported.BuyAmount.Equal(decimal.NewFromInt(20000)))
}

func TestRunUsesLivePriceWhenCostBasisMissing(t *testing.T) {
	ledger := &fakeLedger{}
	rec := New(ledger, "USDT", decimal.NewFromInt(10), zap.NewNop())

	holdings := []trader.Holding{
		holding("ETH", 2, 0), // no reported cost basis
		holding("SOL", 3, 0), // no cost basis and no live price either
	}
	priceOf := func(symbol string) decimal.Decimal {
		if symbol == "ETHUSDT" {
			return decimal.NewFromInt(3000)
		}
		return decimal.Zero
	}

	result, err := rec.Run(holdings, priceOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT"}, result.Imported)
}

func TestRunClosesZombiePositions(t *testing.T) {
	ledger := &fakeLedger{
		open: []domain.Position{
			{ID: 7, Symbol: "XRPUSDT", BuyPrice: decimal.NewFromFloat(0.5), Status: domain.PositionStatusOpen},
			{ID: 8, Symbol: "BTCUSDT", BuyPrice: decimal.NewFromInt(40000), Status: domain.PositionStatusOpen},
		},
		nextID: 8,
	}
	rec := New(ledger, "USDT", decimal.NewFromInt(10), zap.NewNop())

	// XRP vanished externally, BTC is still held
	result, err := rec.Run([]trader.Holding{holding("BTC", 1, 40000)}, noPrice)
	require.NoError(t, err)
	assert.Equal(t, []string{"XRPUSDT"}, result.Closed)
	assert.Empty(t, result.Imported)
	assert.Equal(t, []int64{7}, ledger.zombies)
}

func TestRunIsIdempotent(t *testing.T) {
	ledger := &fakeLedger{}
	rec := New(ledger, "USDT", decimal.NewFromInt(10), zap.NewNop())

	holdings := []trader.Holding{holding("BTC", 0.5, 40000)}

	first, err := rec.Run(holdings, noPrice)
	require.NoError(t, err)
	assert.Len(t, first.Imported, 1)

	second, err := rec.Run(holdings, noPrice)
	require.NoError(t, err)
	assert.Empty(t, second.Imported)
	assert.Empty(t, second.Closed)
	assert.Len(t, ledger.open, 1)
}
