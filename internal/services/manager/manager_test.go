package manager

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coinpilot/internal/domain"
	"coinpilot/internal/services/feed"
	"coinpilot/internal/services/reconciler"
	"coinpilot/internal/services/strategy"
	"coinpilot/internal/services/trader"
)

type buyCall struct {
	symbol string
	amount decimal.Decimal
}

type fakeTrader struct {
	balance  decimal.Decimal
	holdings []trader.Holding
	buys     []buyCall
	sells    []string
}

func (f *fakeTrader) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeTrader) GetAllHoldings(ctx context.Context) ([]trader.Holding, error) {
	return f.holdings, nil
}

func (f *fakeTrader) BuyMarket(ctx context.Context, pair domain.Pair, quoteAmount decimal.Decimal) (*trader.Receipt, error) {
	f.buys = append(f.buys, buyCall{symbol: pair.Symbol(), amount: quoteAmount})
	return &trader.Receipt{ExecutedQty: quoteAmount, SpentQuote: quoteAmount}, nil
}

func (f *fakeTrader) SellMarket(ctx context.Context, pair domain.Pair, baseQuantity decimal.Decimal) (*trader.Receipt, error) {
	f.sells = append(f.sells, pair.Symbol())
	return &trader.Receipt{}, nil
}

type sellCall struct {
	id     int64
	price  decimal.Decimal
	reason string
}

type fakeLedger struct {
	positions []domain.Position
	buys      []string
	sells     []sellCall
}

func (f *fakeLedger) LogBuy(symbol string, price, amount decimal.Decimal, strategyName string) (int64, error) {
	f.buys = append(f.buys, symbol)
	return int64(len(f.buys)), nil
}

func (f *fakeLedger) LogSell(id int64, sellPrice decimal.Decimal, reason string) error {
	f.sells = append(f.sells, sellCall{id: id, price: sellPrice, reason: reason})
	return nil
}

func (f *fakeLedger) OpenPositions() ([]domain.Position, error) {
	return append([]domain.Position(nil), f.positions...), nil
}

func (f *fakeLedger) OpenPosition(symbol string) (*domain.Position, error) {
	for i := range f.positions {
		if f.positions[i].Symbol == symbol {
			return &f.positions[i], nil
		}
	}
	return nil, nil
}

type fakeBacktester struct {
	picks []string
}

func (f *fakeBacktester) RunDailyScan(ctx context.Context) error { return nil }
func (f *fakeBacktester) BestOpportunities(n int) []string {
	if n > len(f.picks) {
		n = len(f.picks)
	}
	return f.picks[:n]
}

type fakeReconciler struct{ runs int }

func (f *fakeReconciler) Run(holdings []trader.Holding, priceOf func(string) decimal.Decimal) (reconciler.Result, error) {
	f.runs++
	return reconciler.Result{}, nil
}

type fakeCandles struct{ retained map[string]struct{} }

func (f *fakeCandles) Get(ctx context.Context, pair domain.Pair) ([]domain.Candle, []domain.Candle, decimal.Decimal, bool, error) {
	return nil, nil, decimal.Zero, false, nil
}

func (f *fakeCandles) Retain(active map[string]struct{}) { f.retained = active }

type fakePrices struct{}

func (fakePrices) CurrentPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	return decimal.NewFromInt(100), nil
}

type fakeSink struct{ saved []domain.StatusSnapshot }

func (f *fakeSink) Save(s domain.StatusSnapshot) error {
	f.saved = append(f.saved, s)
	return nil
}

type testRig struct {
	m      *Manager
	trader *fakeTrader
	ledger *fakeLedger
	sink   *fakeSink
}

func newTestManager(t *testing.T) *testRig {
	t.Helper()
	ft := &fakeTrader{balance: decimal.NewFromInt(1000)}
	fl := &fakeLedger{}
	sink := &fakeSink{}
	cfg := Config{
		Quote:             "USDT",
		MaxPositions:      2,
		MinOrder:          decimal.NewFromInt(10),
		TurnoverThreshold: decimal.NewFromInt(100),
		ProfitTarget:      3.5,
		StopLoss:          -3.0,
		BuyCooldown:       time.Hour,
		DailyCron:         "0 9 * * *",
	}
	m := New(cfg, ft, fakePrices{}, &fakeCandles{}, &fakeBacktester{},
		fl, &fakeReconciler{}, feed.NewPriceTable(), sink, strategy.New(), zap.NewNop())
	return &testRig{m: m, trader: ft, ledger: fl, sink: sink}
}

func eval(symbol string, price, score, rsi, mfi float64) *evaluation {
	return &evaluation{
		symbol: symbol,
		price:  decimal.NewFromFloat(price),
		signal: &domain.SignalResult{Score: score, RSI: rsi, MFI: mfi},
		status: domain.InstrumentStatus{Symbol: symbol},
	}
}

func TestSellDecisionPriority(t *testing.T) {
	rig := newTestManager(t)

	tests := []struct {
		name   string
		profit float64
		signal domain.SignalResult
		want   string
	}{
		{"take profit beats overheat", 4.0, domain.SignalResult{Score: 9, RSI: 85, MFI: 90}, domain.CloseReasonTakeProfit},
		{"stop loss", -3.0, domain.SignalResult{Score: 9, RSI: 50, MFI: 50}, domain.CloseReasonStopLoss},
		{"rsi overheat needs profit", 1.0, domain.SignalResult{Score: 9, RSI: 85, MFI: 50}, domain.CloseReasonRSIOverheat},
		{"rsi overheat not triggered when flat", 0.2, domain.SignalResult{Score: 9, RSI: 85, MFI: 50}, ""},
		{"mfi overheat", 1.0, domain.SignalResult{Score: 9, RSI: 60, MFI: 90}, domain.CloseReasonMFIOverheat},
		{"score decay", 1.0, domain.SignalResult{Score: 3.0, RSI: 55, MFI: 50}, domain.CloseReasonScoreDecay},
		{"distribution", 1.0, domain.SignalResult{Score: 5, RSI: 45, MFI: 80}, domain.CloseReasonDistribution},
		{"hold", 1.0, domain.SignalResult{Score: 5, RSI: 55, MFI: 50}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := tt.signal
			assert.Equal(t, tt.want, rig.m.sellDecision(tt.profit, &signal))
		})
	}
}

func TestCooldownEligibleExactlyAtExpiry(t *testing.T) {
	rig := newTestManager(t)
	start := time.Unix(1_700_000_000, 0)
	rig.m.cooldowns["BTCUSDT"] = start

	rig.m.now = func() time.Time { return start.Add(time.Hour - time.Second) }
	assert.True(t, rig.m.coolingLocked("BTCUSDT"))
	assert.InDelta(t, 1.0, rig.m.cooldownLeft("BTCUSDT"), 1e-9)

	rig.m.now = func() time.Time { return start.Add(time.Hour) }
	assert.False(t, rig.m.coolingLocked("BTCUSDT"))

	// expiry removed the entry
	_, exists := rig.m.cooldowns["BTCUSDT"]
	assert.False(t, exists)
}

func TestClearCooldowns(t *testing.T) {
	rig := newTestManager(t)
	rig.m.cooldowns["BTCUSDT"] = time.Now()
	rig.m.cooldowns["ETHUSDT"] = time.Now()

	rig.m.clearCooldowns()
	assert.Empty(t, rig.m.cooldowns)
}

func TestBuyPassFiltersAndRanksCandidates(t *testing.T) {
	rig := newTestManager(t)

	evals := []*evaluation{
		eval("AAAUSDT", 10, 9, 50, 50),
		eval("BBBUSDT", 10, 8, 75, 50), // rsi overheat
		eval("CCCUSDT", 10, 9, 50, 70), // same score as AAA, higher mfi
		eval("DDDUSDT", 10, 6, 50, 50), // below threshold
		eval("EEEUSDT", 10, 9, 65, 30), // rising rsi with weak mfi
	}

	rig.m.buyPass(context.Background(), evals, map[string]domain.Position{})

	require.Len(t, rig.trader.buys, 2)
	assert.Equal(t, "CCCUSDT", rig.trader.buys[0].symbol)
	assert.Equal(t, "AAAUSDT", rig.trader.buys[1].symbol)
	// 99% of the 1000 balance split across 2 empty slots
	assert.True(t, rig.trader.buys[0].amount.Equal(decimal.NewFromInt(495)),
		"got %s", rig.trader.buys[0].amount)
	assert.Equal(t, []string{"CCCUSDT", "AAAUSDT"}, rig.ledger.buys)
}

func TestBuyPassSkipsCoolingSymbols(t *testing.T) {
	rig := newTestManager(t)
	rig.m.cooldowns["AAAUSDT"] = time.Now()

	evals := []*evaluation{eval("AAAUSDT", 10, 9, 50, 50)}
	rig.m.buyPass(context.Background(), evals, map[string]domain.Position{})

	assert.Empty(t, rig.trader.buys)
}

func TestBuyPassFallsBackToSingleSlot(t *testing.T) {
	rig := newTestManager(t)
	rig.trader.balance = decimal.NewFromInt(15) // 7.425 per slot, 14.85 unsplit

	evals := []*evaluation{
		eval("AAAUSDT", 10, 9, 50, 50),
		eval("BBBUSDT", 10, 8, 50, 50),
	}
	rig.m.buyPass(context.Background(), evals, map[string]domain.Position{})

	// too thin to split across two slots, so the whole budget goes to the
	// top-ranked candidate
	require.Len(t, rig.trader.buys, 1)
	assert.Equal(t, "AAAUSDT", rig.trader.buys[0].symbol)
	assert.True(t, rig.trader.buys[0].amount.Equal(decimal.NewFromFloat(14.85)),
		"got %s", rig.trader.buys[0].amount)
}

func TestBuyPassRespectsMinimumOrder(t *testing.T) {
	rig := newTestManager(t)
	rig.trader.balance = decimal.NewFromInt(9) // below min order even unsplit

	evals := []*evaluation{eval("AAAUSDT", 10, 9, 50, 50)}
	rig.m.buyPass(context.Background(), evals, map[string]domain.Position{})

	assert.Empty(t, rig.trader.buys)
}

func TestBuyPassStopsWhenSlotsFull(t *testing.T) {
	rig := newTestManager(t)
	held := map[string]domain.Position{
		"XUSDT": {Symbol: "XUSDT"},
		"YUSDT": {Symbol: "YUSDT"},
	}

	evals := []*evaluation{eval("AAAUSDT", 10, 9, 50, 50)}
	rig.m.buyPass(context.Background(), evals, held)

	assert.Empty(t, rig.trader.buys)
}

func TestSellPassClosesAndStartsCooldown(t *testing.T) {
	rig := newTestManager(t)
	rig.trader.holdings = []trader.Holding{
		{Currency: "BTC", Quantity: decimal.NewFromInt(1)},
	}

	pos := domain.Position{ID: 3, Symbol: "BTCUSDT", BuyPrice: decimal.NewFromInt(100)}
	held := map[string]domain.Position{"BTCUSDT": pos}
	ev := eval("BTCUSDT", 104, 9, 50, 50) // 4% profit triggers take profit
	ev.status.Held = true

	rig.m.sellPass(context.Background(), []*evaluation{ev}, held)

	assert.Equal(t, []string{"BTCUSDT"}, rig.trader.sells)
	require.Len(t, rig.ledger.sells, 1)
	assert.Equal(t, int64(3), rig.ledger.sells[0].id)
	assert.Equal(t, domain.CloseReasonTakeProfit, rig.ledger.sells[0].reason)
	assert.True(t, rig.ledger.sells[0].price.Equal(decimal.NewFromInt(104)))

	assert.NotContains(t, held, "BTCUSDT")
	assert.False(t, ev.status.Held)
	assert.Contains(t, rig.m.cooldowns, "BTCUSDT")
}

func TestSellPassSkipsWithoutSellableQuantity(t *testing.T) {
	rig := newTestManager(t)
	// no BTC holding reported externally

	pos := domain.Position{ID: 1, Symbol: "BTCUSDT", BuyPrice: decimal.NewFromInt(100)}
	held := map[string]domain.Position{"BTCUSDT": pos}
	ev := eval("BTCUSDT", 104, 9, 50, 50)

	rig.m.sellPass(context.Background(), []*evaluation{ev}, held)

	assert.Empty(t, rig.trader.sells)
	assert.Empty(t, rig.ledger.sells)
	assert.Contains(t, held, "BTCUSDT")
}

func TestRefreshTargetsCategories(t *testing.T) {
	rig := newTestManager(t)

	rig.m.table.Put(domain.PriceSnapshot{
		Symbol: "BTCUSDT", Price: decimal.NewFromInt(100),
		Turnover24: decimal.NewFromInt(10_000), ObservedAt: time.Now(),
	})
	rig.m.table.Put(domain.PriceSnapshot{
		Symbol: "DUSTUSDT", Price: decimal.NewFromInt(1),
		Turnover24: decimal.NewFromInt(10), ObservedAt: time.Now(), // below threshold
	})
	rig.m.backtest = &fakeBacktester{picks: []string{"ETHUSDT", "BTCUSDT"}}
	rig.m.ledger = &fakeLedger{positions: []domain.Position{{Symbol: "OLDUSDT"}}}

	rig.m.refreshTargets()

	assert.Equal(t, domain.CategoryVolumeLeader, rig.m.categories["BTCUSDT"])
	assert.Equal(t, domain.CategoryBacktestPick, rig.m.categories["ETHUSDT"])
	assert.Equal(t, domain.CategoryHolding, rig.m.categories["OLDUSDT"])
	assert.NotContains(t, rig.m.categories, "DUSTUSDT")
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT", "OLDUSDT"}, rig.m.targets)
}

type liveCandles struct{ fakeCandles }

func (*liveCandles) Get(ctx context.Context, pair domain.Pair) ([]domain.Candle, []domain.Candle, decimal.Decimal, bool, error) {
	return nil, nil, decimal.NewFromInt(10), true, nil
}

func TestRunCycleScansAndPublishesWhileInactive(t *testing.T) {
	rig := newTestManager(t)
	rig.m.candles = &liveCandles{}
	rig.m.signal = func(daily, intraday []domain.Candle, debug bool) *domain.SignalResult {
		return &domain.SignalResult{Score: 9, RSI: 50, MFI: 50}
	}
	rig.m.targets = []string{"AAAUSDT"}

	require.False(t, rig.m.IsActive())
	rig.m.runCycle(context.Background())

	// inactive: scanning and publishing still happen, order dispatch does not
	require.Len(t, rig.sink.saved, 1)
	assert.False(t, rig.sink.saved[0].Active)
	require.Len(t, rig.sink.saved[0].Items, 1)
	assert.InDelta(t, 9.0, rig.sink.saved[0].Items[0].Score, 1e-9)
	assert.Empty(t, rig.trader.buys)
	assert.Empty(t, rig.trader.sells)

	rig.m.Start()
	rig.m.runCycle(context.Background())

	require.Len(t, rig.trader.buys, 1)
	require.Len(t, rig.sink.saved, 2)
	assert.True(t, rig.sink.saved[1].Active)
}

type importingReconciler struct{ ledger *fakeLedger }

func (r *importingReconciler) Run(holdings []trader.Holding, priceOf func(string) decimal.Decimal) (reconciler.Result, error) {
	r.ledger.positions = []domain.Position{
		{Symbol: "NEWUSDT", Status: domain.PositionStatusOpen},
	}
	return reconciler.Result{Imported: []string{"NEWUSDT"}, Closed: []string{"OLDUSDT"}}, nil
}

func TestMaintenanceTagsReconciledHoldingsSamePass(t *testing.T) {
	rig := newTestManager(t)
	rig.ledger.positions = []domain.Position{{Symbol: "OLDUSDT", Status: domain.PositionStatusOpen}}
	rig.m.reconcile = &importingReconciler{ledger: rig.ledger}

	rig.m.runMaintenance(context.Background())

	// the imported holding is targeted and tagged in the same pass, and the
	// zombie-closed one dropped
	assert.Equal(t, domain.CategoryHolding, rig.m.categories["NEWUSDT"])
	assert.Contains(t, rig.m.targets, "NEWUSDT")
	assert.NotContains(t, rig.m.categories, "OLDUSDT")
	assert.NotContains(t, rig.m.targets, "OLDUSDT")
}

func TestStartStop(t *testing.T) {
	rig := newTestManager(t)

	assert.False(t, rig.m.IsActive())
	assert.True(t, rig.m.Start())
	assert.False(t, rig.m.Start())
	assert.True(t, rig.m.IsActive())
	assert.True(t, rig.m.Stop())
	assert.False(t, rig.m.Stop())
	assert.False(t, rig.m.IsActive())
}

func TestPlaceManualBuyValidation(t *testing.T) {
	rig := newTestManager(t)

	err := rig.m.PlaceManualBuy(context.Background(), "BTCUSDT", decimal.NewFromInt(5))
	assert.Error(t, err) // below minimum order

	rig.ledger.positions = []domain.Position{{Symbol: "BTCUSDT", Status: domain.PositionStatusOpen}}
	err = rig.m.PlaceManualBuy(context.Background(), "BTCUSDT", decimal.NewFromInt(50))
	assert.Error(t, err) // already open

	err = rig.m.PlaceManualBuy(context.Background(), "BTCETH", decimal.NewFromInt(50))
	assert.Error(t, err) // not quoted in USDT

	err = rig.m.PlaceManualBuy(context.Background(), "ETHUSDT", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT"}, rig.ledger.buys)
	require.Len(t, rig.trader.buys, 1)
	// manual trades republish the status snapshot immediately
	assert.Len(t, rig.sink.saved, 1)
}

func TestPlaceManualSell(t *testing.T) {
	rig := newTestManager(t)
	rig.trader.holdings = []trader.Holding{
		{Currency: "BTC", Quantity: decimal.NewFromInt(1)},
	}
	rig.ledger.positions = []domain.Position{
		{ID: 9, Symbol: "BTCUSDT", BuyPrice: decimal.NewFromInt(100), Status: domain.PositionStatusOpen},
	}

	err := rig.m.PlaceManualSell(context.Background(), "ETHUSDT")
	assert.Error(t, err) // nothing open

	err = rig.m.PlaceManualSell(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, rig.ledger.sells, 1)
	assert.Equal(t, int64(9), rig.ledger.sells[0].id)
	assert.Equal(t, domain.CloseReasonManual, rig.ledger.sells[0].reason)
}
