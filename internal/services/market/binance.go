package market

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"coinpilot/internal/domain"
	"coinpilot/pkg/retrier"
)

const requestTimeout = 30 * time.Second

// BinanceSource implements Source on top of the Binance REST API.
// Transient request failures are retried with backoff before being
// reported to the caller.
type BinanceSource struct {
	client  *binance.Client
	retrier *retrier.Retrier
}

// NewBinanceSource creates a Binance-backed data source.
func NewBinanceSource(client *binance.Client) *BinanceSource {
	return &BinanceSource{
		client:  client,
		retrier: retrier.New(retrier.WithMaxRetries(2)),
	}
}

// GetOhlcv fetches klines and converts them to domain candles.
func (s *BinanceSource) GetOhlcv(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	klines, err := retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) ([]*binance.Kline, error) {
		return s.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(interval).
			Limit(limit).
			Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s klines for %s", interval, pair)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for i, k := range klines {
		candle, err := parseKline(k)
		if err != nil {
			return nil, errors.Wrapf(err, "parse kline %d for %s", i, pair)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// ListPairs returns all spot pairs quoted in quote that are open for trading.
func (s *BinanceSource) ListPairs(ctx context.Context, quote string) ([]domain.Pair, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	info, err := retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) (*binance.ExchangeInfo, error) {
		return s.client.NewExchangeInfoService().Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetch exchange info")
	}

	var pairs []domain.Pair
	for _, sym := range info.Symbols {
		if sym.QuoteAsset != quote || sym.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, domain.Pair{Base: sym.BaseAsset, Quote: sym.QuoteAsset})
	}
	return pairs, nil
}

// CurrentPrice returns the latest listed price of the pair.
func (s *BinanceSource) CurrentPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	prices, err := retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) ([]*binance.SymbolPrice, error) {
		return s.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "fetch price for %s", pair)
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Errorf("no price listed for %s", pair)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse price for %s", pair)
	}
	return price, nil
}

func parseKline(k *binance.Kline) (domain.Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "open")
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "high")
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "low")
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "close")
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "volume")
	}

	return domain.Candle{
		Time:   time.Unix(0, k.OpenTime*int64(time.Millisecond)),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}
