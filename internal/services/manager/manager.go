// Package manager runs the trading control loop: it maintains the target
// set, evaluates signals every second, sells by fixed priority, buys filtered
// ranked candidates, and republishes a status snapshot after every pass.
package manager

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinpilot/internal/domain"
	"coinpilot/internal/services/feed"
	"coinpilot/internal/services/reconciler"
	"coinpilot/internal/services/strategy"
	"coinpilot/internal/services/trader"
)

const (
	tickInterval = time.Second
	// maintenanceTicks is how many ticks pass between target refresh,
	// cache eviction and ledger reconciliation.
	maintenanceTicks = 300
	// warmupMinInstruments gates the loop until the price feed has
	// populated enough of the table to rank by turnover.
	warmupMinInstruments = 10

	targetCount       = 30
	volumeLeaderCount = 10
	backtestPickCount = 10

	// budgetRatio is the fraction of the free quote balance spread
	// across empty position slots when buying.
	budgetRatio = 0.99

	ensembleStrategyName = "ensemble"
	manualStrategyName   = "manual"
)

// Sell rules in priority order. Overheat exits require the position to be
// at least minimally in profit so a flat position is not churned on a
// momentum spike.
const (
	overheatMinProfit = 0.5
	overheatExitRSI   = 80.0
	overheatExitMFI   = 85.0
	decayScoreBelow   = 3.5
	distributionRSI   = 50.0
	distributionMFI   = 75.0
)

// Buy-side filters.
const (
	buyMaxRSI     = 70.0
	buyMaxMFI     = 80.0
	fakeoutRSI    = 60.0
	fakeoutMinMFI = 40.0
)

type candleProvider interface {
	Get(ctx context.Context, pair domain.Pair) (daily, intraday []domain.Candle, live decimal.Decimal, isLive bool, err error)
	Retain(active map[string]struct{})
}

type backtester interface {
	RunDailyScan(ctx context.Context) error
	BestOpportunities(n int) []string
}

type ledgerStore interface {
	LogBuy(symbol string, price, amount decimal.Decimal, strategyName string) (int64, error)
	LogSell(id int64, sellPrice decimal.Decimal, reason string) error
	OpenPositions() ([]domain.Position, error)
	OpenPosition(symbol string) (*domain.Position, error)
}

type ledgerReconciler interface {
	Run(holdings []trader.Holding, priceOf func(symbol string) decimal.Decimal) (reconciler.Result, error)
}

type priceSource interface {
	CurrentPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

type snapshotSink interface {
	Save(snapshot domain.StatusSnapshot) error
}

type signalFunc func(daily, intraday []domain.Candle, debug bool) *domain.SignalResult

// Config carries the tunable thresholds of the control loop.
type Config struct {
	Quote        string
	MaxPositions int
	// MinOrder is the exchange's minimum order value in quote currency.
	MinOrder decimal.Decimal
	// TurnoverThreshold is the 24h quote turnover below which an
	// instrument is never a volume target.
	TurnoverThreshold decimal.Decimal
	ProfitTarget      float64
	StopLoss          float64
	BuyCooldown       time.Duration
	// DailyCron schedules the full backtest scan and cooldown reset.
	DailyCron string
}

// Manager is the control loop.
type Manager struct {
	cfg       Config
	trader    trader.Trader
	source    priceSource
	candles   candleProvider
	backtest  backtester
	ledger    ledgerStore
	reconcile ledgerReconciler
	table     *feed.PriceTable
	snapshots snapshotSink
	signal    signalFunc
	log       *zap.Logger

	mu         sync.Mutex
	active     bool
	targets    []string
	categories map[string]string
	cooldowns  map[string]time.Time
	lastStatus []domain.InstrumentStatus
	lastSumry  domain.AccountSummary

	now func() time.Time
}

// New wires the control loop. The loop starts inactive; Start flips it on.
func New(cfg Config, t trader.Trader, source priceSource, candles candleProvider,
	bt backtester, ledger ledgerStore, rec ledgerReconciler,
	table *feed.PriceTable, snapshots snapshotSink, scorer *strategy.Engine,
	logger *zap.Logger) *Manager {
	return &Manager{
		cfg:        cfg,
		trader:     t,
		source:     source,
		candles:    candles,
		backtest:   bt,
		ledger:     ledger,
		reconcile:  rec,
		table:      table,
		snapshots:  snapshots,
		signal:     scorer.Ensemble,
		log:        logger,
		categories: make(map[string]string),
		cooldowns:  make(map[string]time.Time),
		now:        time.Now,
	}
}

// Start activates trading. Returns false when already active.
func (m *Manager) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return false
	}
	m.active = true
	m.log.Info("trading activated")
	return true
}

// Stop deactivates trading. Returns false when already inactive.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return false
	}
	m.active = false
	m.log.Info("trading deactivated")
	return true
}

// IsActive reports whether the loop is trading.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Run blocks until ctx is done. It waits for the price feed to warm up,
// performs initial maintenance, schedules the daily scan and then ticks.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.awaitWarmup(ctx); err != nil {
		return err
	}

	go func() {
		if err := m.backtest.RunDailyScan(ctx); err != nil {
			m.log.Error("initial daily scan failed", zap.Error(err))
		}
		m.runMaintenance(ctx)
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(m.cfg.DailyCron, func() {
		m.log.Info("daily scan triggered")
		if err := m.backtest.RunDailyScan(ctx); err != nil {
			m.log.Error("daily scan failed", zap.Error(err))
		}
		m.clearCooldowns()
	}); err != nil {
		return errors.Wrap(err, "schedule daily scan")
	}
	scheduler.Start()
	defer scheduler.Stop()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		tick++
		if tick%maintenanceTicks == 0 {
			m.runMaintenance(ctx)
		}

		m.runCycle(ctx)
	}
}

func (m *Manager) awaitWarmup(ctx context.Context) error {
	m.log.Info("waiting for price feed warmup")
	for {
		if m.table.Len() > warmupMinInstruments {
			m.log.Info("price feed warmed up", zap.Int("instruments", m.table.Len()))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// runMaintenance reconciles the ledger against external holdings, then
// refreshes the target set from the reconciled ledger and evicts stale
// cache entries. Reconciling first means a freshly imported holding is
// targeted and tagged within the same pass, and a zombie loses its
// holding tag immediately.
func (m *Manager) runMaintenance(ctx context.Context) {
	defer m.recoverPanic("maintenance")

	m.reconcileLedger(ctx)
	m.refreshTargets()

	m.mu.Lock()
	active := make(map[string]struct{}, len(m.targets))
	for _, symbol := range m.targets {
		active[symbol] = struct{}{}
	}
	m.mu.Unlock()
	m.candles.Retain(active)
}

func (m *Manager) reconcileLedger(ctx context.Context) {
	holdings, err := m.trader.GetAllHoldings(ctx)
	if err != nil {
		m.log.Error("holdings fetch failed, skipping reconciliation", zap.Error(err))
		return
	}

	result, err := m.reconcile.Run(holdings, func(symbol string) decimal.Decimal {
		return m.priceOf(ctx, symbol)
	})
	if err != nil {
		m.log.Error("ledger reconciliation failed", zap.Error(err))
		return
	}
	if len(result.Imported) > 0 || len(result.Closed) > 0 {
		m.log.Info("ledger reconciled",
			zap.Strings("imported", result.Imported),
			zap.Strings("closed", result.Closed))
	}
}

// refreshTargets rebuilds the target set: turnover leaders first, then
// backtest picks, then turnover fillers up to targetCount. Held symbols are
// always targets regardless of ranking.
func (m *Manager) refreshTargets() {
	snaps := m.table.Snapshot()
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Turnover24.GreaterThan(snaps[j].Turnover24)
	})

	targets := make([]string, 0, targetCount)
	categories := make(map[string]string, targetCount)
	add := func(symbol, category string) {
		if _, seen := categories[symbol]; seen {
			return
		}
		targets = append(targets, symbol)
		categories[symbol] = category
	}

	leaders := 0
	for _, snap := range snaps {
		if leaders >= volumeLeaderCount || snap.Turnover24.LessThan(m.cfg.TurnoverThreshold) {
			break
		}
		add(snap.Symbol, domain.CategoryVolumeLeader)
		leaders++
	}

	for _, symbol := range m.backtest.BestOpportunities(backtestPickCount) {
		add(symbol, domain.CategoryBacktestPick)
	}

	for _, snap := range snaps {
		if len(targets) >= targetCount {
			break
		}
		if snap.Turnover24.LessThan(m.cfg.TurnoverThreshold) {
			break
		}
		add(snap.Symbol, domain.CategoryVolumeFiller)
	}

	if positions, err := m.ledger.OpenPositions(); err != nil {
		m.log.Error("open positions fetch failed during target refresh", zap.Error(err))
	} else {
		for _, pos := range positions {
			add(pos.Symbol, domain.CategoryHolding)
		}
	}

	m.mu.Lock()
	m.targets = targets
	m.categories = categories
	m.mu.Unlock()

	m.log.Info("target set refreshed", zap.Int("targets", len(targets)))
}

// runCycle is one tick: evaluate every target and publish the snapshot.
// The sell and buy passes dispatch orders only while trading is active;
// scanning and publishing run in both states. A panic in any step is
// contained to the cycle.
func (m *Manager) runCycle(ctx context.Context) {
	defer m.recoverPanic("trading cycle")

	m.mu.Lock()
	targets := append([]string(nil), m.targets...)
	m.mu.Unlock()

	positions, err := m.ledger.OpenPositions()
	if err != nil {
		m.log.Error("open positions fetch failed", zap.Error(err))
		return
	}
	held := make(map[string]domain.Position, len(positions))
	for _, pos := range positions {
		held[pos.Symbol] = pos
	}

	evals := m.evaluateAll(ctx, targets, held)

	if m.IsActive() {
		m.sellPass(ctx, evals, held)
		m.buyPass(ctx, evals, held)
	}

	m.publishSnapshot(ctx, evals, held)
}

type evaluation struct {
	symbol string
	price  decimal.Decimal
	signal *domain.SignalResult
	status domain.InstrumentStatus
}

func (m *Manager) evaluateAll(ctx context.Context, targets []string, held map[string]domain.Position) []*evaluation {
	evals := make([]*evaluation, 0, len(targets))
	for _, symbol := range targets {
		evals = append(evals, m.evaluate(ctx, symbol, held))
	}
	return evals
}

// evaluate scores one instrument. A failure is recorded on the status and
// never aborts the cycle.
func (m *Manager) evaluate(ctx context.Context, symbol string, held map[string]domain.Position) *evaluation {
	m.mu.Lock()
	category := m.categories[symbol]
	cooldownLeft := m.cooldownLeft(symbol)
	m.mu.Unlock()
	if category == "" {
		category = domain.CategoryWatch
	}

	pos, isHeld := held[symbol]
	ev := &evaluation{
		symbol: symbol,
		status: domain.InstrumentStatus{
			Symbol:       symbol,
			Category:     category,
			Held:         isHeld,
			CooldownLeft: cooldownLeft,
		},
	}

	pair, err := m.pairFromSymbol(symbol)
	if err != nil {
		ev.status.Err = err.Error()
		return ev
	}

	daily, intraday, live, isLive, err := m.candles.Get(ctx, pair)
	if err != nil {
		ev.status.Err = err.Error()
		return ev
	}

	if isLive {
		ev.price = live
	} else if len(intraday) > 0 {
		ev.price = intraday[len(intraday)-1].Close
	}
	ev.status.Price, _ = ev.price.Float64()

	res := m.signal(daily, intraday, false)
	if res == nil {
		ev.status.Err = "insufficient history"
		return ev
	}
	ev.signal = res

	ev.status.Score = res.Score
	ev.status.RSI = res.RSI
	ev.status.MFI = res.MFI
	ev.status.ATR = res.ATR
	ev.status.TargetPrice, _ = res.TargetPrice.Float64()
	ev.status.StopLossPrice, _ = res.StopLossPrice.Float64()
	ev.status.Votes = res.Votes

	if isHeld {
		ev.status.BuyPrice, _ = pos.BuyPrice.Float64()
		ev.status.ProfitRate = domain.ProfitRate(pos.BuyPrice, ev.price)
	}

	return ev
}

// sellDecision returns the close reason for a held position, or "".
// Rules apply in fixed priority: take profit, stop loss, RSI overheat,
// MFI overheat, score decay, distribution.
func (m *Manager) sellDecision(profit float64, res *domain.SignalResult) string {
	switch {
	case profit >= m.cfg.ProfitTarget:
		return domain.CloseReasonTakeProfit
	case profit <= m.cfg.StopLoss:
		return domain.CloseReasonStopLoss
	case profit > overheatMinProfit && res.RSI >= overheatExitRSI:
		return domain.CloseReasonRSIOverheat
	case profit > overheatMinProfit && res.MFI >= overheatExitMFI:
		return domain.CloseReasonMFIOverheat
	case res.Score < decayScoreBelow:
		return domain.CloseReasonScoreDecay
	case res.RSI < distributionRSI && res.MFI >= distributionMFI:
		return domain.CloseReasonDistribution
	}
	return ""
}

func (m *Manager) sellPass(ctx context.Context, evals []*evaluation, held map[string]domain.Position) {
	for _, ev := range evals {
		pos, isHeld := held[ev.symbol]
		if !isHeld || ev.signal == nil || ev.price.LessThanOrEqual(decimal.Zero) {
			continue
		}

		profit := domain.ProfitRate(pos.BuyPrice, ev.price)
		reason := m.sellDecision(profit, ev.signal)
		if reason == "" {
			continue
		}

		if err := m.closePosition(ctx, pos, ev.price, reason); err != nil {
			m.log.Error("sell failed",
				zap.String("symbol", ev.symbol),
				zap.String("reason", reason),
				zap.Error(err))
			continue
		}

		delete(held, ev.symbol)
		ev.status.Held = false
		ev.status.Reasons = append(ev.status.Reasons, "sold: "+reason)
	}
}

// closePosition sells the full held quantity and closes the ledger row at
// the actual fill price. Sets the buy cooldown for the symbol.
func (m *Manager) closePosition(ctx context.Context, pos domain.Position, price decimal.Decimal, reason string) error {
	pair, err := m.pairFromSymbol(pos.Symbol)
	if err != nil {
		return err
	}

	holdings, err := m.trader.GetAllHoldings(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch holdings")
	}
	var qty decimal.Decimal
	for _, h := range holdings {
		if h.Currency == pair.Base {
			qty = h.Quantity
			break
		}
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return errors.Errorf("no sellable quantity for %s", pos.Symbol)
	}

	receipt, err := m.trader.SellMarket(ctx, pair, qty)
	if err != nil {
		return errors.Wrap(err, "market sell")
	}

	sellPrice := price
	if receipt.ExecutedQty.GreaterThan(decimal.Zero) {
		sellPrice = receipt.SpentQuote.Div(receipt.ExecutedQty)
	}

	if err := m.ledger.LogSell(pos.ID, sellPrice, reason); err != nil {
		return errors.Wrap(err, "record sell")
	}

	m.mu.Lock()
	m.cooldowns[pos.Symbol] = m.now()
	m.mu.Unlock()

	m.log.Info("position closed",
		zap.String("symbol", pos.Symbol),
		zap.String("reason", reason),
		zap.String("sell_price", sellPrice.String()),
		zap.Float64("profit_rate", domain.ProfitRate(pos.BuyPrice, sellPrice)))
	return nil
}

// buyEligible applies the buy-side filters: cooldown, overheat, bull-trap
// divergence and the composite threshold.
func (m *Manager) buyEligible(ev *evaluation) bool {
	if ev.signal == nil || ev.price.LessThanOrEqual(decimal.Zero) {
		return false
	}
	res := ev.signal
	if res.RSI >= buyMaxRSI || res.MFI >= buyMaxMFI {
		return false
	}
	if res.RSI >= fakeoutRSI && res.MFI < fakeoutMinMFI {
		return false
	}
	if res.Score < strategy.BuyThreshold {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.coolingLocked(ev.symbol)
}

func (m *Manager) buyPass(ctx context.Context, evals []*evaluation, held map[string]domain.Position) {
	slots := m.cfg.MaxPositions - len(held)
	if slots <= 0 {
		return
	}

	candidates := make([]*evaluation, 0, len(evals))
	for _, ev := range evals {
		if _, isHeld := held[ev.symbol]; isHeld {
			continue
		}
		if m.buyEligible(ev) {
			candidates = append(candidates, ev)
		}
	}
	if len(candidates) == 0 {
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].signal.Score != candidates[j].signal.Score {
			return candidates[i].signal.Score > candidates[j].signal.Score
		}
		return candidates[i].signal.MFI > candidates[j].signal.MFI
	})

	balance, err := m.trader.GetBalance(ctx, m.cfg.Quote)
	if err != nil {
		m.log.Error("quote balance fetch failed", zap.Error(err))
		return
	}

	spendable := balance.Mul(decimal.NewFromFloat(budgetRatio))
	budget := spendable.Div(decimal.NewFromInt(int64(slots)))
	if budget.LessThan(m.cfg.MinOrder) {
		// Too thin to split: concentrate the whole budget on one slot.
		if spendable.LessThan(m.cfg.MinOrder) {
			return
		}
		budget = spendable
		slots = 1
	}

	for _, ev := range candidates {
		if slots == 0 {
			break
		}
		if err := m.openPosition(ctx, ev, budget, ensembleStrategyName); err != nil {
			m.log.Error("buy failed", zap.String("symbol", ev.symbol), zap.Error(err))
			continue
		}
		ev.status.Held = true
		ev.status.Reasons = append(ev.status.Reasons, "bought")
		slots--
	}
}

// openPosition places a market buy and records it in the ledger at the
// actual fill price.
func (m *Manager) openPosition(ctx context.Context, ev *evaluation, budget decimal.Decimal, strategyName string) error {
	pair, err := m.pairFromSymbol(ev.symbol)
	if err != nil {
		return err
	}

	receipt, err := m.trader.BuyMarket(ctx, pair, budget)
	if err != nil {
		return errors.Wrap(err, "market buy")
	}

	buyPrice := ev.price
	if receipt.ExecutedQty.GreaterThan(decimal.Zero) {
		buyPrice = receipt.SpentQuote.Div(receipt.ExecutedQty)
	}
	spent := receipt.SpentQuote
	if spent.LessThanOrEqual(decimal.Zero) {
		spent = budget
	}

	if _, err := m.ledger.LogBuy(ev.symbol, buyPrice, spent, strategyName); err != nil {
		return errors.Wrap(err, "record buy")
	}

	m.log.Info("position opened",
		zap.String("symbol", ev.symbol),
		zap.String("buy_price", buyPrice.String()),
		zap.String("spent", spent.String()),
		zap.Float64("score", ev.signal.Score),
		zap.Strings("votes", ev.signal.ActiveVotes()))
	return nil
}

// PlaceManualBuy opens a position outside the automated filters. It still
// honors the minimum order value and the one-open-position rule.
func (m *Manager) PlaceManualBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) error {
	if quoteAmount.LessThan(m.cfg.MinOrder) {
		return errors.Errorf("order value below minimum %s", m.cfg.MinOrder.String())
	}
	if pos, err := m.ledger.OpenPosition(symbol); err != nil {
		return errors.Wrap(err, "check open position")
	} else if pos != nil {
		return errors.Errorf("position already open for %s", symbol)
	}

	if _, err := m.pairFromSymbol(symbol); err != nil {
		return err
	}

	ev := &evaluation{
		symbol: symbol,
		price:  m.priceOf(ctx, symbol),
		signal: &domain.SignalResult{},
	}
	if err := m.openPosition(ctx, ev, quoteAmount, manualStrategyName); err != nil {
		return err
	}

	m.republish()
	return nil
}

// PlaceManualSell closes an open position regardless of signal state.
func (m *Manager) PlaceManualSell(ctx context.Context, symbol string) error {
	pos, err := m.ledger.OpenPosition(symbol)
	if err != nil {
		return errors.Wrap(err, "check open position")
	}
	if pos == nil {
		return errors.Errorf("no open position for %s", symbol)
	}

	price := m.priceOf(ctx, symbol)
	if err := m.closePosition(ctx, *pos, price, domain.CloseReasonManual); err != nil {
		return err
	}

	m.republish()
	return nil
}

// priceOf resolves a current price: feed table first, REST fallback. The
// fallback never writes the table; the feed goroutine is its only writer.
func (m *Manager) priceOf(ctx context.Context, symbol string) decimal.Decimal {
	if snap, ok := m.table.Get(symbol); ok {
		return snap.Price
	}
	pair, err := m.pairFromSymbol(symbol)
	if err != nil {
		return decimal.Zero
	}
	price, err := m.source.CurrentPrice(ctx, pair)
	if err != nil {
		m.log.Debug("price fallback failed", zap.String("symbol", symbol), zap.Error(err))
		return decimal.Zero
	}
	return price
}

func (m *Manager) publishSnapshot(ctx context.Context, evals []*evaluation, held map[string]domain.Position) {
	items := make([]domain.InstrumentStatus, 0, len(evals))
	coinValue := decimal.Zero
	for _, ev := range evals {
		items = append(items, ev.status)
		if pos, isHeld := held[ev.symbol]; isHeld && ev.price.GreaterThan(decimal.Zero) {
			qty := decimal.Zero
			if pos.BuyPrice.GreaterThan(decimal.Zero) {
				qty = pos.BuyAmount.Div(pos.BuyPrice)
			}
			coinValue = coinValue.Add(qty.Mul(ev.price))
		}
	}

	quoteBalance := decimal.Zero
	if balance, err := m.trader.GetBalance(ctx, m.cfg.Quote); err != nil {
		m.log.Debug("quote balance fetch failed for snapshot", zap.Error(err))
	} else {
		quoteBalance = balance
	}

	qb, _ := quoteBalance.Float64()
	cv, _ := coinValue.Float64()
	summary := domain.AccountSummary{
		QuoteBalance: qb,
		CoinValue:    cv,
		TotalAssets:  qb + cv,
	}

	m.mu.Lock()
	m.lastStatus = items
	m.lastSumry = summary
	active := m.active
	m.mu.Unlock()

	snapshot := domain.StatusSnapshot{
		At:      m.now(),
		Active:  active,
		Items:   items,
		Summary: summary,
	}
	if err := m.snapshots.Save(snapshot); err != nil {
		m.log.Error("snapshot publish failed", zap.Error(err))
	}
}

// republish pushes the last evaluated snapshot again, used after manual
// trades so the UI reflects them before the next cycle.
func (m *Manager) republish() {
	m.mu.Lock()
	snapshot := domain.StatusSnapshot{
		At:      m.now(),
		Active:  m.active,
		Items:   m.lastStatus,
		Summary: m.lastSumry,
	}
	m.mu.Unlock()

	if err := m.snapshots.Save(snapshot); err != nil {
		m.log.Error("snapshot publish failed", zap.Error(err))
	}
}

func (m *Manager) clearCooldowns() {
	m.mu.Lock()
	n := len(m.cooldowns)
	m.cooldowns = make(map[string]time.Time)
	m.mu.Unlock()
	if n > 0 {
		m.log.Info("buy cooldowns cleared", zap.Int("count", n))
	}
}

// coolingLocked reports whether the symbol is still inside its buy cooldown.
// Eligibility returns exactly when the full window has elapsed. Callers must
// hold m.mu.
func (m *Manager) coolingLocked(symbol string) bool {
	ts, ok := m.cooldowns[symbol]
	if !ok {
		return false
	}
	if m.now().Sub(ts) >= m.cfg.BuyCooldown {
		delete(m.cooldowns, symbol)
		return false
	}
	return true
}

// cooldownLeft returns remaining cooldown seconds, 0 when eligible.
// Callers must hold m.mu.
func (m *Manager) cooldownLeft(symbol string) float64 {
	ts, ok := m.cooldowns[symbol]
	if !ok {
		return 0
	}
	left := m.cfg.BuyCooldown - m.now().Sub(ts)
	if left <= 0 {
		return 0
	}
	return left.Seconds()
}

func (m *Manager) pairFromSymbol(symbol string) (domain.Pair, error) {
	if !strings.HasSuffix(symbol, m.cfg.Quote) || len(symbol) <= len(m.cfg.Quote) {
		return domain.Pair{}, errors.Errorf("symbol %s is not a %s pair", symbol, m.cfg.Quote)
	}
	return domain.Pair{
		Base:  strings.TrimSuffix(symbol, m.cfg.Quote),
		Quote: m.cfg.Quote,
	}, nil
}

func (m *Manager) recoverPanic(stage string) {
	if r := recover(); r != nil {
		m.log.Error("panic recovered",
			zap.String("stage", stage),
			zap.Any("panic", r),
			zap.Stack("stack"))
	}
}
