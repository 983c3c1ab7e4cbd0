// Package reconciler converges the local position ledger with the
// externally reported account holdings.
package reconciler

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinpilot/internal/domain"
	"coinpilot/internal/services/trader"
)

// ImportStrategyName marks positions created from external holdings rather
// than from the control loop's own buys.
const ImportStrategyName = "import"

type ledgerStore interface {
	OpenPositions() ([]domain.Position, error)
	LogBuy(symbol string, price, amount decimal.Decimal, strategyName string) (int64, error)
	CloseZombie(id int64) error
}

// Result lists the writes one reconciliation pass performed. A repeated run
// against unchanged external state yields an empty result.
type Result struct {
	Imported []string
	Closed   []string
}

// Reconciler imports untracked external holdings above a minimum value and
// zombie-closes open positions whose holding vanished externally. Each write
// is an individually atomic row operation; a partial pass is converged by
// the next run.
type Reconciler struct {
	ledger   ledgerStore
	quote    string
	minValue decimal.Decimal
	log      *zap.Logger
}

// New creates a reconciler for holdings quoted in quote. Holdings valued at
// or below minValue are ignored (dust).
func New(ledger ledgerStore, quote string, minValue decimal.Decimal, logger *zap.Logger) *Reconciler {
	return &Reconciler{ledger: ledger, quote: quote, minValue: minValue, log: logger}
}

// Run reconciles the given external holdings against the local ledger.
// priceOf resolves a live price for holdings without a reported cost basis;
// it may return zero when no price is known, which skips the holding.
func (r *Reconciler) Run(holdings []trader.Holding, priceOf func(symbol string) decimal.Decimal) (Result, error) {
	var result Result

	open, err := r.ledger.OpenPositions()
	if err != nil {
		return result, errors.Wrap(err, "load open positions")
	}

	openBySymbol := make(map[string]domain.Position, len(open))
	for _, p := range open {
		openBySymbol[p.Symbol] = p
	}

	heldSymbols := make(map[string]struct{})
	for _, h := range holdings {
		if h.Currency == r.quote || h.Quantity.LessThanOrEqual(decimal.Zero) {
			continue
		}

		symbol := h.Currency + r.quote
		cost := h.AvgCost
		if cost.LessThanOrEqual(decimal.Zero) {
			cost = priceOf(symbol)
		}
		if cost.LessThanOrEqual(decimal.Zero) {
			continue
		}

		value := h.Quantity.Mul(cost)
		if value.LessThanOrEqual(r.minValue) {
			continue
		}
		heldSymbols[symbol] = struct{}{}

		if _, tracked := openBySymbol[symbol]; tracked {
			continue
		}

		if _, err := r.ledger.LogBuy(symbol, cost, value, ImportStrategyName); err != nil {
			return result, errors.Wrapf(err, "import holding %s", symbol)
		}
		r.log.Info("imported external holding into ledger",
			zap.String("symbol", symbol),
			zap.String("avg_cost", cost.String()),
			zap.String("value", value.String()))
		result.Imported = append(result.Imported, symbol)
	}

	for _, p := range open {
		if _, held := heldSymbols[p.Symbol]; held {
			continue
		}
		if err := r.ledger.CloseZombie(p.ID); err != nil {
			return result, errors.Wrapf(err, "close zombie position %s", p.Symbol)
		}
		r.log.Info("closed zombie position",
			zap.String("symbol", p.Symbol), zap.Int64("id", p.ID))
		result.Closed = append(result.Closed, p.Symbol)
	}

	return result, nil
}
