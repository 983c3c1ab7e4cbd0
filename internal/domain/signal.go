package domain

import "github.com/shopspring/decimal"

// Indicator names used as keys in SignalResult.Votes.
const (
	IndicatorTrend     = "trend"
	IndicatorADX       = "adx"
	IndicatorVolume    = "volume"
	IndicatorVWAP      = "vwap"
	IndicatorBollinger = "bollinger"
	IndicatorMACD      = "macd"
	IndicatorRSI       = "rsi"
	IndicatorMFI       = "mfi"
)

// MaxScore is the ceiling of the composite ensemble score.
const MaxScore = 12.0

// SignalResult is the outcome of one ensemble evaluation. Immutable value,
// created fresh on every scoring call.
type SignalResult struct {
	Score         float64         `json:"score"`
	ShouldBuy     bool            `json:"should_buy"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`
	ATR           float64         `json:"atr"`
	RSI           float64         `json:"rsi"`
	MFI           float64         `json:"mfi"`
	// Votes maps indicator name to -1, 0 or 1.
	Votes map[string]int `json:"strategies"`
	// Breakdown holds the ordered human-readable scoring log, populated
	// only when the engine runs in debug mode.
	Breakdown []string `json:"score_breakdown,omitempty"`
}

// ActiveVotes returns the names of indicators that voted 1, in stable order.
func (r *SignalResult) ActiveVotes() []string {
	order := []string{
		IndicatorTrend, IndicatorADX, IndicatorVolume, IndicatorVWAP,
		IndicatorBollinger, IndicatorMACD, IndicatorRSI, IndicatorMFI,
	}
	var active []string
	for _, name := range order {
		if r.Votes[name] == 1 {
			active = append(active, name)
		}
	}
	return active
}
