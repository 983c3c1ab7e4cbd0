package domain

import "time"

// Target categories assigned during target-set refresh.
const (
	CategoryVolumeLeader = "volume leader"
	CategoryBacktestPick = "backtest pick"
	CategoryVolumeFiller = "volume filler"
	CategoryHolding      = "holding"
	CategoryWatch        = "watch"
)

// InstrumentStatus is the published per-instrument view of the control loop.
type InstrumentStatus struct {
	Symbol        string         `json:"symbol"`
	Category      string         `json:"category"`
	Held          bool           `json:"held"`
	Price         float64        `json:"price"`
	Score         float64        `json:"score"`
	RSI           float64        `json:"rsi"`
	MFI           float64        `json:"mfi"`
	ATR           float64        `json:"atr"`
	TargetPrice   float64        `json:"target_price"`
	StopLossPrice float64        `json:"stop_loss_price"`
	BuyPrice      float64        `json:"buy_price,omitempty"`
	ProfitRate    float64        `json:"profit_rate,omitempty"`
	CooldownLeft  float64        `json:"cooldown_left_sec,omitempty"`
	Votes         map[string]int `json:"strategies,omitempty"`
	Reasons       []string       `json:"reasons,omitempty"`
	// Err carries the last per-instrument analysis failure, if any.
	// Failures are isolated per instrument and surfaced here instead of
	// aborting the scan.
	Err string `json:"error,omitempty"`
}

// AccountSummary aggregates account balances for the UI snapshot.
type AccountSummary struct {
	QuoteBalance float64 `json:"quote_balance"`
	CoinValue    float64 `json:"coin_value"`
	TotalAssets  float64 `json:"total_assets"`
}

// StatusSnapshot is the UI-facing snapshot republished by the control loop.
type StatusSnapshot struct {
	At      time.Time          `json:"at"`
	Active  bool               `json:"active"`
	Items   []InstrumentStatus `json:"data"`
	Summary AccountSummary     `json:"summary"`
}
