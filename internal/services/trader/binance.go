package trader

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"coinpilot/internal/domain"
)

const clientOrderPrefix = "cp-"

// BinanceTrader implements Trader on the Binance spot API.
type BinanceTrader struct {
	client *binance.Client
}

// NewBinanceTrader creates a spot trader.
func NewBinanceTrader(client *binance.Client) *BinanceTrader {
	return &BinanceTrader{client: client}
}

// GetBalance returns the free spot balance of the currency.
func (t *BinanceTrader) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	account, err := t.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get account")
	}

	for _, balance := range account.Balances {
		if balance.Asset != currency {
			continue
		}
		free, err := decimal.NewFromString(balance.Free)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse %s balance", currency)
		}
		return free, nil
	}
	return decimal.Zero, nil
}

// GetAllHoldings returns every asset with a non-zero free+locked amount.
// Binance spot does not report a cost basis, so AvgCost is left zero and
// resolved by the caller from the live price.
func (t *BinanceTrader) GetAllHoldings(ctx context.Context) ([]Holding, error) {
	account, err := t.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get account")
	}

	var holdings []Holding
	for _, balance := range account.Balances {
		free, err := decimal.NewFromString(balance.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(balance.Locked)
		if err != nil {
			locked = decimal.Zero
		}

		total := free.Add(locked)
		if total.LessThanOrEqual(decimal.Zero) {
			continue
		}
		holdings = append(holdings, Holding{Currency: balance.Asset, Quantity: total})
	}
	return holdings, nil
}

// BuyMarket spends quoteAmount on a market buy, using the exchange's
// quote-quantity order form.
func (t *BinanceTrader) BuyMarket(ctx context.Context, pair domain.Pair, quoteAmount decimal.Decimal) (*Receipt, error) {
	if quoteAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("non-positive buy amount for %s", pair)
	}

	clientOrderID := clientOrderPrefix + uuid.NewString()
	order, err := t.client.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(quoteAmount.RoundFloor(2).String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "market buy %s", pair)
	}

	return receiptFromOrder(clientOrderID, order)
}

// SellMarket sells baseQuantity of the base asset at market.
func (t *BinanceTrader) SellMarket(ctx context.Context, pair domain.Pair, baseQuantity decimal.Decimal) (*Receipt, error) {
	if baseQuantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("non-positive sell quantity for %s", pair)
	}

	clientOrderID := clientOrderPrefix + uuid.NewString()
	order, err := t.client.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(baseQuantity.RoundFloor(8).String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "market sell %s", pair)
	}

	return receiptFromOrder(clientOrderID, order)
}

func receiptFromOrder(clientOrderID string, order *binance.CreateOrderResponse) (*Receipt, error) {
	executed, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		executed = decimal.Zero
	}
	spent, err := decimal.NewFromString(order.CummulativeQuoteQuantity)
	if err != nil {
		spent = decimal.Zero
	}
	return &Receipt{
		ClientOrderID: clientOrderID,
		ExecutedQty:   executed,
		SpentQuote:    spent,
	}, nil
}
