// Package trader places market orders and reads account balances on the
// exchange. It is the execution collaborator of the control loop: the loop
// treats any error as a failed dispatch and leaves the ledger untouched.
package trader

import (
	"context"

	"github.com/shopspring/decimal"

	"coinpilot/internal/domain"
)

// Holding is one externally reported account holding.
type Holding struct {
	// Currency is the asset symbol, e.g. BTC.
	Currency string
	// Quantity is the total held amount, free plus locked.
	Quantity decimal.Decimal
	// AvgCost is the reported average acquisition price in quote currency.
	// Zero when the exchange does not expose a cost basis.
	AvgCost decimal.Decimal
}

// Receipt confirms a filled market order.
type Receipt struct {
	ClientOrderID string
	// ExecutedQty is the filled base quantity.
	ExecutedQty decimal.Decimal
	// SpentQuote is the cumulative quote amount of the fill.
	SpentQuote decimal.Decimal
}

// Trader is the execution client boundary.
type Trader interface {
	// GetBalance returns the free balance of one currency.
	GetBalance(ctx context.Context, currency string) (decimal.Decimal, error)
	// GetAllHoldings returns every non-zero asset holding on the account.
	GetAllHoldings(ctx context.Context) ([]Holding, error)
	// BuyMarket spends quoteAmount of quote currency on a market buy.
	BuyMarket(ctx context.Context, pair domain.Pair, quoteAmount decimal.Decimal) (*Receipt, error)
	// SellMarket sells baseQuantity of the base asset at market.
	SellMarket(ctx context.Context, pair domain.Pair, baseQuantity decimal.Decimal) (*Receipt, error)
}
