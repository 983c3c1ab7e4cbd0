package domain

// BacktestResult is one instrument's entry in the daily analysis cache:
// a trailing-window simulation summary plus the same-day live signal.
type BacktestResult struct {
	Symbol        string         `json:"ticker"`
	WinRate       float64        `json:"win_rate"`
	TotalYield    float64        `json:"total_yield"`
	MaxDrawdown   float64        `json:"mdd"`
	Score         float64        `json:"score"`
	ShouldBuy     bool           `json:"should_buy"`
	CurrentPrice  float64        `json:"current_price"`
	TargetPrice   float64        `json:"target_price"`
	StopLossPrice float64        `json:"stop_loss_price"`
	ATR           float64        `json:"atr"`
	RSI           float64        `json:"rsi"`
	MFI           float64        `json:"mfi"`
	Votes         map[string]int `json:"strategies"`
	Breakdown     []string       `json:"score_breakdown,omitempty"`
}
