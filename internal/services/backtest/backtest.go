// Package backtest replays the scoring engine over historical daily bars to
// rank instruments by simulated performance, persisting one analysis cache
// and one human-readable report per calendar day.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"coinpilot/internal/domain"
	"coinpilot/internal/services/market"
	"coinpilot/internal/services/strategy"
)

const (
	// historyBars is how many daily bars each instrument is analyzed over.
	historyBars = 200
	// minHistory is the minimum bars required to simulate at all.
	minHistory = 50
	// simulationDays is the trailing replay window.
	simulationDays = 90
	// fee is the taker fee applied to every simulated fill.
	fee = 0.0005

	// maxInFlight bounds concurrent instrument fetches; completionDelay
	// spaces completions to respect external rate limits.
	maxInFlight     = 10
	completionDelay = 100 * time.Millisecond

	simStartCapital = 1_000_000
)

// Buy-side overheat filters mirrored from the control loop's buying pass so
// the simulation trades under the same constraints as live trading.
const (
	overheatRSI    = 70.0
	overheatMFI    = 80.0
	fakeoutRSI     = 60.0
	fakeoutMFI     = 40.0
	sellScoreBelow = 3.5
)

type signalFunc func(daily, intraday []domain.Candle, debug bool) *domain.SignalResult

type candleSaver interface {
	SaveCandles(symbol string, candles []domain.Candle) error
}

// Engine runs the daily full scan and serves its cached results.
type Engine struct {
	source   market.Source
	signal   signalFunc
	quote    string
	cacheDir string
	warm     candleSaver
	log      *zap.Logger

	mu      sync.RWMutex
	results map[string]domain.BacktestResult

	runMu   sync.Mutex
	running bool

	now func() time.Time
}

// New creates a backtest engine. warm may be nil; when set, fetched daily
// bars are persisted into the candle warm store as a side effect of the scan.
func New(source market.Source, scorer *strategy.Engine, quote, cacheDir string, warm candleSaver, logger *zap.Logger) (*Engine, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create analysis cache dir")
	}
	return &Engine{
		source:   source,
		signal:   scorer.Ensemble,
		quote:    quote,
		cacheDir: cacheDir,
		warm:     warm,
		log:      logger,
		results:  make(map[string]domain.BacktestResult),
		now:      time.Now,
	}, nil
}

func (e *Engine) cacheFile() string {
	return filepath.Join(e.cacheDir, fmt.Sprintf("analysis_%s.json", e.now().Format("2006-01-02")))
}

func (e *Engine) reportFile() string {
	return filepath.Join(e.cacheDir, fmt.Sprintf("report_%s.txt", e.now().Format("2006-01-02")))
}

// RunDailyScan loads the same-day cache when present and non-empty,
// otherwise analyzes every tradable instrument with bounded concurrency.
// Individual instrument failures are logged and skipped, never fatal.
// Concurrent invocations beyond the first are no-ops.
func (e *Engine) RunDailyScan(ctx context.Context) error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		e.log.Info("daily scan already in progress, skipping")
		return nil
	}
	e.running = true
	e.runMu.Unlock()

	defer func() {
		e.runMu.Lock()
		e.running = false
		e.runMu.Unlock()
	}()

	if e.loadCache() {
		return nil
	}

	pairs, err := e.source.ListPairs(ctx, e.quote)
	if err != nil {
		return errors.Wrap(err, "list tradable pairs")
	}

	e.log.Info("daily full scan started", zap.Int("instruments", len(pairs)))

	results := make(map[string]domain.BacktestResult, len(pairs))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxInFlight)

	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(pair domain.Pair) {
			defer wg.Done()
			defer func() {
				time.Sleep(completionDelay)
				<-sem
			}()

			result, err := e.analyzeOne(ctx, pair)
			if err != nil {
				// isolation: one instrument's failure never aborts the scan
				e.log.Debug("instrument analysis failed",
					zap.String("symbol", pair.Symbol()), zap.Error(err))
				return
			}

			resultsMu.Lock()
			results[result.Symbol] = result
			resultsMu.Unlock()
		}(pair)
	}
	wg.Wait()

	if len(results) == 0 {
		return errors.New("daily scan produced no results")
	}

	e.mu.Lock()
	e.results = results
	e.mu.Unlock()

	if err := e.saveCache(); err != nil {
		e.log.Error("failed to persist analysis cache", zap.Error(err))
	}
	if err := e.saveReport(); err != nil {
		e.log.Error("failed to write ranked report", zap.Error(err))
	}

	e.log.Info("daily full scan finished", zap.Int("analyzed", len(results)))
	return nil
}

// analyzeOne fetches history, runs the trailing simulation and the same-day
// live signal for one instrument.
func (e *Engine) analyzeOne(ctx context.Context, pair domain.Pair) (domain.BacktestResult, error) {
	bars, err := e.source.GetOhlcv(ctx, pair, market.IntervalDay, historyBars)
	if err != nil {
		return domain.BacktestResult{}, errors.Wrap(err, "fetch daily bars")
	}
	if len(bars) < minHistory {
		return domain.BacktestResult{}, errors.Errorf("insufficient history: %d bars", len(bars))
	}

	if e.warm != nil {
		if err := e.warm.SaveCandles(pair.Symbol(), bars); err != nil {
			e.log.Debug("candle warm store write failed",
				zap.String("symbol", pair.Symbol()), zap.Error(err))
		}
	}

	// the still-forming last bar is excluded from the simulation
	sim := e.simulate(bars[:len(bars)-1])

	live := e.signal(bars, bars, false)
	if live == nil {
		return domain.BacktestResult{}, errors.New("live signal unavailable")
	}

	lastClose, _ := bars[len(bars)-1].Close.Float64()
	target, _ := live.TargetPrice.Float64()
	stop, _ := live.StopLossPrice.Float64()

	return domain.BacktestResult{
		Symbol:        pair.Symbol(),
		WinRate:       sim.winRate,
		TotalYield:    sim.totalReturn,
		MaxDrawdown:   sim.maxDrawdown,
		Score:         live.Score,
		ShouldBuy:     live.ShouldBuy,
		CurrentPrice:  lastClose,
		TargetPrice:   target,
		StopLossPrice: stop,
		ATR:           live.ATR,
		RSI:           live.RSI,
		MFI:           live.MFI,
		Votes:         live.Votes,
	}, nil
}

type simResult struct {
	winRate     float64
	totalReturn float64
	maxDrawdown float64
}

// simulate replays the signal over the trailing window with fixed capital.
// The decision for day i uses bars up to and including i; execution always
// happens at bar i+1's open, so the simulation never looks ahead.
func (e *Engine) simulate(bars []domain.Candle) simResult {
	daysToTest := simulationDays
	if limit := len(bars) - 20; daysToTest > limit {
		daysToTest = limit
	}
	if daysToTest <= 0 {
		return simResult{}
	}

	var (
		balance    = float64(simStartCapital)
		shares     float64
		avgBuy     float64
		trades     int
		wins       int
		maxBalance = float64(simStartCapital)
		mdd        float64
	)

	start := len(bars) - daysToTest
	for i := start; i < len(bars)-1; i++ {
		res := e.signal(bars[:i+1], bars[:i+1], false)
		if res == nil {
			continue
		}

		nextOpen, _ := bars[i+1].Open.Float64()
		if nextOpen <= 0 {
			continue
		}

		overheated := res.RSI >= overheatRSI ||
			res.MFI >= overheatMFI ||
			(res.RSI >= fakeoutRSI && res.MFI < fakeoutMFI)

		switch {
		case res.Score >= strategy.BuyThreshold && !overheated && shares == 0:
			shares = balance * (1 - fee) / nextOpen
			balance = 0
			avgBuy = nextOpen

		case res.Score < sellScoreBelow && shares > 0:
			sellValue := shares * nextOpen * (1 - fee)
			if sellValue > shares*avgBuy {
				wins++
			}
			balance = sellValue
			shares = 0
			trades++

			if balance > maxBalance {
				maxBalance = balance
			}
			if dd := (maxBalance - balance) / maxBalance * 100; dd > mdd {
				mdd = dd
			}
		}
	}

	finalAsset := balance
	if shares > 0 {
		lastClose, _ := bars[len(bars)-1].Close.Float64()
		finalAsset = shares * lastClose
	}

	var winRate float64
	if trades > 0 {
		winRate = float64(wins) / float64(trades) * 100
	}

	return simResult{
		winRate:     round1(winRate),
		totalReturn: round1((finalAsset/simStartCapital - 1) * 100),
		maxDrawdown: round1(mdd),
	}
}

// Analysis returns the cached result for the symbol.
func (e *Engine) Analysis(symbol string) (domain.BacktestResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result, ok := e.results[symbol]
	return result, ok
}

// BestOpportunities returns the top n symbols with positive score, ranked
// by (score, win rate, total yield) descending.
func (e *Engine) BestOpportunities(n int) []string {
	e.mu.RLock()
	ranked := make([]domain.BacktestResult, 0, len(e.results))
	for _, r := range e.results {
		if r.Score > 0 {
			ranked = append(ranked, r)
		}
	}
	e.mu.RUnlock()

	sortRanked(ranked)

	if n > len(ranked) {
		n = len(ranked)
	}
	symbols := make([]string, 0, n)
	for _, r := range ranked[:n] {
		symbols = append(symbols, r.Symbol)
	}
	return symbols
}

func (e *Engine) loadCache() bool {
	data, err := os.ReadFile(e.cacheFile())
	if err != nil {
		return false
	}

	var cached map[string]domain.BacktestResult
	if err := json.Unmarshal(data, &cached); err != nil || len(cached) == 0 {
		e.log.Warn("same-day analysis cache unusable, rescanning", zap.Error(err))
		return false
	}

	e.mu.Lock()
	e.results = cached
	e.mu.Unlock()

	e.log.Info("loaded same-day analysis cache", zap.Int("instruments", len(cached)))

	if _, err := os.Stat(e.reportFile()); os.IsNotExist(err) {
		if err := e.saveReport(); err != nil {
			e.log.Error("failed to write ranked report", zap.Error(err))
		}
	}
	return true
}

func (e *Engine) saveCache() error {
	e.mu.RLock()
	data, err := json.MarshalIndent(e.results, "", "  ")
	e.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "marshal analysis cache")
	}
	return errors.Wrap(os.WriteFile(e.cacheFile(), data, 0o644), "write analysis cache")
}

// saveReport writes the ranked human-readable report for the day.
func (e *Engine) saveReport() error {
	e.mu.RLock()
	ranked := make([]domain.BacktestResult, 0, len(e.results))
	for _, r := range e.results {
		ranked = append(ranked, r)
	}
	e.mu.RUnlock()

	sortRanked(ranked)

	var b strings.Builder
	fmt.Fprintf(&b, "=== Daily Analysis Report ===\n")
	fmt.Fprintf(&b, "Date: %s\n", e.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Instruments: %d\n", len(ranked))
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 100))
	fmt.Fprintf(&b, "%-4s | %-12s | %-5s | %-7s | %-8s | %-6s | %-5s | %s\n",
		"Rank", "Symbol", "Score", "WinRate", "Yield", "MDD", "RSI", "Price")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 100))
	for rank, r := range ranked {
		fmt.Fprintf(&b, "%-4d | %-12s | %-5.1f | %6.1f%% | %7.1f%% | %-6.1f | %-5.0f | %.6f\n",
			rank+1, r.Symbol, r.Score, r.WinRate, r.TotalYield, r.MaxDrawdown, r.RSI, r.CurrentPrice)
	}

	return errors.Wrap(os.WriteFile(e.reportFile(), []byte(b.String()), 0o644), "write report")
}

func sortRanked(ranked []domain.BacktestResult) {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].WinRate != ranked[j].WinRate {
			return ranked[i].WinRate > ranked[j].WinRate
		}
		return ranked[i].TotalYield > ranked[j].TotalYield
	})
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5*sign(v))) / 10
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
