package feed

import (
	"context"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinpilot/internal/domain"
)

const (
	// retryWait is the fixed pause before resubscribing after any
	// connection failure. No backoff growth, unbounded retries.
	retryWait = 3 * time.Second

	// joinTimeout bounds how long shutdown waits for the stream to close
	// before abandoning it.
	joinTimeout = 2 * time.Second
)

// subscribeFunc matches binance.WsAllMarketsStatServe; injectable for tests.
type subscribeFunc func(handler binance.WsAllMarketsStatHandler, errHandler binance.ErrHandler) (doneC, stopC chan struct{}, err error)

// Feed subscribes to the exchange's 24h ticker stream and normalizes every
// tick for the configured quote currency into the shared PriceTable. It runs
// independently of the control loop and never blocks it.
type Feed struct {
	table     *PriceTable
	quote     string
	log       *zap.Logger
	subscribe subscribeFunc
}

// New creates a feed writing snapshots for pairs quoted in quote.
func New(table *PriceTable, quote string, logger *zap.Logger) *Feed {
	return &Feed{
		table:     table,
		quote:     quote,
		log:       logger,
		subscribe: binance.WsAllMarketsStatServe,
	}
}

// Run keeps the subscription alive until ctx is cancelled. Connection
// failures are logged and retried indefinitely with a fixed pause.
func (f *Feed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		doneC, stopC, err := f.subscribe(f.handleEvents, f.handleStreamError)
		if err != nil {
			f.log.Warn("ticker stream connect failed, retrying",
				zap.Error(err), zap.Duration("wait", retryWait))
			if !sleep(ctx, retryWait) {
				return
			}
			continue
		}

		f.log.Info("ticker stream connected", zap.String("quote", f.quote))

		select {
		case <-ctx.Done():
			close(stopC)
			select {
			case <-doneC:
			case <-time.After(joinTimeout):
				f.log.Warn("ticker stream did not close in time, abandoning")
			}
			return
		case <-doneC:
			f.log.Warn("ticker stream closed, resubscribing",
				zap.Duration("wait", retryWait))
			if !sleep(ctx, retryWait) {
				return
			}
		}
	}
}

// handleEvents writes one snapshot per valid tick. Malformed entries are
// dropped silently.
func (f *Feed) handleEvents(events binance.WsAllMarketsStatEvent) {
	now := time.Now()
	for _, ev := range events {
		if ev == nil || !strings.HasSuffix(ev.Symbol, f.quote) {
			continue
		}

		price, err := decimal.NewFromString(ev.LastPrice)
		if err != nil || !price.IsPositive() {
			continue
		}

		turnover, err := decimal.NewFromString(ev.QuoteVolume)
		if err != nil {
			turnover = decimal.Zero
		}

		f.table.Put(domain.PriceSnapshot{
			Symbol:     ev.Symbol,
			Price:      price,
			Turnover24: turnover,
			ObservedAt: now,
		})
	}
}

func (f *Feed) handleStreamError(err error) {
	f.log.Debug("ticker stream error", zap.Error(err))
}

// sleep waits for d unless ctx is cancelled first; returns false on cancel.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
