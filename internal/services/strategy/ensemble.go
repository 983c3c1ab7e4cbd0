// Package strategy implements the ensemble scoring engine: a deterministic
// pure function from daily and intraday bar series to a composite buy score.
package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"coinpilot/internal/domain"
	"coinpilot/pkg/indicators"
)

// Composite score weights. The ceiling of the weighted sum is domain.MaxScore.
const (
	weightTrend      = 3.0
	weightADX        = 1.5
	weightVolume     = 1.0
	weightVWAP       = 1.5
	weightOscillator = 3.0
	weightBollinger  = 2.0
)

// BuyThreshold is the composite score at or above which the engine signals
// a buy.
const BuyThreshold = 7.0

// minBars is the minimum daily history required to score at all. Shorter
// intraday history falls back to the daily series.
const minBars = 30

const (
	adxPeriod       = 14
	oscPeriod       = 14
	atrPeriod       = 14
	maPeriod        = 20
	bollingerPeriod = 20
	bollingerSigma  = 2.0
	// bollingerNear marks closes within 2% above the lower band.
	bollingerNear = 1.02
	volumeSurge   = 1.5

	targetATRMultiple   = 3.0
	stopLossATRMultiple = 2.0
)

// Engine scores bar series. It is stateless and safe for concurrent use;
// construct once and inject wherever scoring is needed.
type Engine struct{}

// New creates a scoring engine.
func New() *Engine {
	return &Engine{}
}

// Ensemble evaluates the indicator ensemble over the given series and
// returns the composite signal, or nil when the daily history is shorter
// than 30 bars. Debug mode additionally fills the ordered score breakdown
// without altering the score.
func (e *Engine) Ensemble(daily, intraday []domain.Candle, debug bool) *domain.SignalResult {
	if len(daily) < minBars {
		return nil
	}
	if len(intraday) < minBars {
		intraday = daily
	}

	dayCloses := closesOf(daily)
	currentPrice := daily[len(daily)-1].Close
	currentClose := dayCloses[len(dayCloses)-1]

	// trend group, on daily bars
	ma20, _ := indicators.SMA(dayCloses, maPeriod)
	bullMarket := currentClose >= ma20

	adx, pdi, mdi, adxOK := indicators.ADX(highsOf(daily), lowsOf(daily), dayCloses, adxPeriod)
	adxVote := 0
	if adxOK && adx >= 20 && pdi > mdi {
		adxVote = 1
	}

	volumeVote := volumeSignal(daily)

	// oscillator and timing group, on intraday bars
	opens := opensOf(intraday)
	highs := highsOf(intraday)
	lows := lowsOf(intraday)
	closes := closesOf(intraday)
	volumes := volumesOf(intraday)

	rsi := indicators.RSI(closes, oscPeriod)
	mfi := indicators.MFI(highs, lows, closes, volumes, oscPeriod)
	atr := indicators.ATR(highs, lows, closes, atrPeriod)

	vwapVote := 0
	if closes[len(closes)-1] > indicators.VWAP(highs, lows, closes, volumes) {
		vwapVote = 1
	}

	bollingerVote := bollingerSignal(closes, opens)
	macdVote := indicators.MACDVote(closes)

	oscRatio := (oscVote(rsi, 35, 65) + oscVote(mfi, 25, 80)) / 2
	oscScore := oscRatio * weightOscillator

	var total float64
	var breakdown []string
	logf := func(format string, args ...any) {
		if debug {
			breakdown = append(breakdown, fmt.Sprintf(format, args...))
		}
	}

	trendVote := -1
	if bullMarket {
		trendVote = 1
		total += weightTrend
		logf("[trend] price above MA20 (+%.1f)", weightTrend)
	} else {
		logf("[trend] downtrend (0.0)")
	}

	if adxVote == 1 {
		total += weightADX
		logf("[adx] strong trend (+%.1f)", weightADX)
	}
	if volumeVote == 1 {
		total += weightVolume
		logf("[volume] bullish volume surge (+%.1f)", weightVolume)
	}
	if vwapVote == 1 {
		total += weightVWAP
		logf("[vwap] price above session vwap (+%.1f)", weightVWAP)
	}

	switch {
	case oscScore > 0:
		total += oscScore
		logf("[oscillators] reversal setup (+%.2f)", oscScore)
	case oscScore < 0:
		// negative oscillator contribution is dampened to half magnitude
		penalty := math.Abs(oscScore) * 0.5
		total -= penalty
		logf("[oscillators] overheat penalty (-%.2f)", penalty)
	}

	switch bollingerVote {
	case 1:
		total += weightBollinger
		logf("[bollinger] lower band rebound (+%.1f)", weightBollinger)
	case -1:
		total -= weightBollinger * 0.5
		logf("[bollinger] upper band touch (-%.1f)", weightBollinger*0.5)
	}

	score := round2(math.Max(0, total))

	atrDec := decimal.NewFromFloat(atr)
	result := &domain.SignalResult{
		Score:         score,
		ShouldBuy:     score >= BuyThreshold,
		CurrentPrice:  currentPrice,
		TargetPrice:   currentPrice.Add(atrDec.Mul(decimal.NewFromFloat(targetATRMultiple))),
		StopLossPrice: currentPrice.Sub(atrDec.Mul(decimal.NewFromFloat(stopLossATRMultiple))),
		ATR:           atr,
		RSI:           rsi,
		MFI:           mfi,
		Votes: map[string]int{
			domain.IndicatorTrend:     trendVote,
			domain.IndicatorADX:       adxVote,
			domain.IndicatorVolume:    volumeVote,
			domain.IndicatorVWAP:      vwapVote,
			domain.IndicatorBollinger: bollingerVote,
			domain.IndicatorMACD:      macdVote,
			domain.IndicatorRSI:       levelVote(rsi, 30, 70),
			domain.IndicatorMFI:       levelVote(mfi, 20, 80),
		},
		Breakdown: breakdown,
	}
	return result
}

// volumeSignal votes 1 when the latest bar's volume exceeds 1.5x its
// 20-period average and the bar is bullish.
func volumeSignal(candles []domain.Candle) int {
	volumes := volumesOf(candles)
	volMA, ok := indicators.SMA(volumes, maPeriod)
	if !ok {
		return 0
	}

	last := candles[len(candles)-1]
	surge := volumes[len(volumes)-1] > volMA*volumeSurge
	bullish := last.Close.GreaterThan(last.Open)
	if surge && bullish {
		return 1
	}
	return 0
}

// bollingerSignal votes 1 on a rebound near the lower band (close within 2%
// above it, rising versus the previous close and at or above the bar open),
// -1 when the close reaches the upper band.
func bollingerSignal(closes, opens []float64) int {
	if len(closes) < bollingerPeriod+1 {
		return 0
	}

	upper, lower, ok := indicators.Bollinger(closes, bollingerPeriod, bollingerSigma)
	if !ok {
		return 0
	}

	curr := closes[len(closes)-1]
	prev := closes[len(closes)-2]
	open := opens[len(opens)-1]

	nearLower := curr <= lower*bollingerNear
	rebounding := curr > prev && curr >= open

	switch {
	case nearLower && rebounding:
		return 1
	case curr >= upper:
		return -1
	default:
		return 0
	}
}

// oscVote maps an oscillator value to a -1/0/1 group vote by thresholds.
func oscVote(value, buyBelow, sellAbove float64) float64 {
	switch {
	case value < buyBelow:
		return 1
	case value > sellAbove:
		return -1
	default:
		return 0
	}
}

// levelVote is oscVote with int result, used for the per-indicator map.
func levelVote(value, buyBelow, sellAbove float64) int {
	return int(oscVote(value, buyBelow, sellAbove))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func opensOf(candles []domain.Candle) []float64  { return extract(candles, func(c domain.Candle) decimal.Decimal { return c.Open }) }
func highsOf(candles []domain.Candle) []float64  { return extract(candles, func(c domain.Candle) decimal.Decimal { return c.High }) }
func lowsOf(candles []domain.Candle) []float64   { return extract(candles, func(c domain.Candle) decimal.Decimal { return c.Low }) }
func closesOf(candles []domain.Candle) []float64 { return extract(candles, func(c domain.Candle) decimal.Decimal { return c.Close }) }
func volumesOf(candles []domain.Candle) []float64 {
	return extract(candles, func(c domain.Candle) decimal.Decimal { return c.Volume })
}

func extract(candles []domain.Candle, field func(domain.Candle) decimal.Decimal) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i], _ = field(c).Float64()
	}
	return out
}
