package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a ledger position.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Close reasons recorded on the ledger when a position is sold.
const (
	CloseReasonTakeProfit   = "take_profit"
	CloseReasonStopLoss     = "stop_loss"
	CloseReasonRSIOverheat  = "rsi_overheat"
	CloseReasonMFIOverheat  = "mfi_overheat"
	CloseReasonScoreDecay   = "score_decay"
	CloseReasonDistribution = "distribution"
	CloseReasonManual       = "manual"
	CloseReasonZombie       = "zombie"
)

// Position is a ledger row tracking one bought holding. Identity is the
// persisted row id. Created on a confirmed buy, closed exactly once.
type Position struct {
	ID           int64
	Symbol       string
	BuyPrice     decimal.Decimal
	BuyAmount    decimal.Decimal // spent quote currency
	BuyTime      time.Time
	Status       PositionStatus
	SellPrice    decimal.Decimal
	SellTime     time.Time
	ProfitRate   float64
	StrategyName string
	CloseReason  string
}

// ProfitRate returns the percentage gain of sell over buy: ((sell-buy)/buy)*100.
// Returns 0 when the buy price is not positive.
func ProfitRate(buy, sell decimal.Decimal) float64 {
	if buy.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	rate, _ := sell.Sub(buy).Div(buy).Mul(decimal.NewFromInt(100)).Float64()
	return rate
}
