// Package indicators provides the technical analysis math used by the
// ensemble scoring engine (SMA, RSI, MFI, ATR, ADX, VWAP, Bollinger, MACD).
//
// All functions operate on float64 series ordered ascending by time and
// never return NaN or Inf: any degenerate input (zero denominator, flat
// series, too little data) yields a neutral fallback instead.
package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
)

// NeutralOscillator is the fallback value for RSI/MFI when the input is
// degenerate (flat series, not enough data).
const NeutralOscillator = 50.0

const epsilon = 0.0001

// SMA returns the simple moving average of the trailing period.
// ok is false when fewer than period values are available.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// StdDev returns the sample standard deviation of the trailing period.
func StdDev(values []float64, period int) (float64, bool) {
	if period <= 1 || len(values) < period {
		return 0, false
	}
	mean, _ := SMA(values, period)
	var sum float64
	for _, v := range values[len(values)-period:] {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(period-1)), true
}

// RSI returns the Wilder-smoothed relative strength index of the latest bar.
// Flat or too-short series yield the neutral value 50.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return NeutralOscillator
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes)))
	if len(out) == 0 {
		return NeutralOscillator
	}

	last := out[len(out)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return NeutralOscillator
	}
	return clamp(last, 0, 100)
}

// MFI returns the money flow index over the trailing period. Typical price
// deltas split money flow into positive and negative buckets; a series with
// no flow in either direction is neutral (50).
func MFI(highs, lows, closes, volumes []float64, period int) float64 {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n || len(volumes) != n {
		return NeutralOscillator
	}

	var posSum, negSum float64
	for i := n - period; i < n; i++ {
		tp := (highs[i] + lows[i] + closes[i]) / 3
		prevTP := (highs[i-1] + lows[i-1] + closes[i-1]) / 3
		flow := tp * volumes[i]
		switch {
		case tp > prevTP:
			posSum += flow
		case tp < prevTP:
			negSum += flow
		}
	}

	if negSum == 0 {
		if posSum == 0 {
			return NeutralOscillator
		}
		return 100
	}

	mfi := 100 - 100/(1+posSum/negSum)
	return clamp(mfi, 0, 100)
}

// TrueRanges returns the true range series. The first element uses high-low
// only since no previous close exists.
func TrueRanges(highs, lows, closes []float64) []float64 {
	n := len(closes)
	trs := make([]float64, n)
	for i := 0; i < n; i++ {
		tr := highs[i] - lows[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(highs[i]-closes[i-1]))
			tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
		}
		trs[i] = tr
	}
	return trs
}

// ATR returns the rolling mean of the true range over the trailing period,
// or 0 when the series is too short.
func ATR(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if period <= 0 || n < period || len(highs) != n || len(lows) != n {
		return 0
	}
	atr, ok := SMA(TrueRanges(highs, lows, closes), period)
	if !ok || math.IsNaN(atr) {
		return 0
	}
	return atr
}

// ADX returns the latest average directional index together with the
// positive and negative directional indicators, smoothed with alpha=1/period.
// ok is false when fewer than 2*period bars are available.
func ADX(highs, lows, closes []float64, period int) (adx, pdi, mdi float64, ok bool) {
	n := len(closes)
	if period <= 0 || n < period*2 || len(highs) != n || len(lows) != n {
		return 0, 0, 0, false
	}

	trs := TrueRanges(highs, lows, closes)
	pdm := make([]float64, n)
	mdm := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			pdm[i] = up
		}
		if down > up && down > 0 {
			mdm[i] = down
		}
	}

	alpha := 1 / float64(period)
	trSmooth := ewm(trs, alpha)
	pdmSmooth := ewm(pdm, alpha)
	mdmSmooth := ewm(mdm, alpha)

	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		tr := trSmooth[i]
		if tr == 0 {
			tr = epsilon
		}
		p := 100 * pdmSmooth[i] / tr
		m := 100 * mdmSmooth[i] / tr
		div := p + m
		if div == 0 {
			div = epsilon
		}
		dx[i] = math.Abs(p-m) / div * 100
		if i == n-1 {
			pdi, mdi = p, m
		}
	}

	adxSeries := ewm(dx, alpha)
	return adxSeries[n-1], pdi, mdi, true
}

// VWAP returns the cumulative volume-weighted average price of the series.
// A zero cumulative volume falls back to the last close.
func VWAP(highs, lows, closes, volumes []float64) float64 {
	n := len(closes)
	if n == 0 || len(highs) != n || len(lows) != n || len(volumes) != n {
		return 0
	}
	var cumVol, cumFlow float64
	for i := 0; i < n; i++ {
		tp := (highs[i] + lows[i] + closes[i]) / 3
		cumVol += volumes[i]
		cumFlow += tp * volumes[i]
	}
	if cumVol == 0 {
		return closes[n-1]
	}
	return cumFlow / cumVol
}

// Bollinger returns the upper and lower bands (period SMA +- k sigma).
func Bollinger(closes []float64, period int, k float64) (upper, lower float64, ok bool) {
	ma, ok := SMA(closes, period)
	if !ok {
		return 0, 0, false
	}
	sd, ok := StdDev(closes, period)
	if !ok {
		return 0, 0, false
	}
	return ma + sd*k, ma - sd*k, true
}

// MACDVote returns the MACD(12,26,9) crossover vote of the latest bar:
// 1 when the MACD line is above its signal line, -1 when below, 0 otherwise.
func MACDVote(closes []float64) int {
	if len(closes) < 27 {
		return 0
	}
	fast := ewmSpan(closes, 12)
	slow := ewmSpan(closes, 26)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = fast[i] - slow[i]
	}
	signal := ewmSpan(macd, 9)

	curr, sig := macd[len(macd)-1], signal[len(signal)-1]
	switch {
	case curr > sig:
		return 1
	case curr < sig:
		return -1
	default:
		return 0
	}
}

// ewm applies recursive exponential smoothing with the given alpha.
func ewm(values []float64, alpha float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if i == 0 {
			out[i] = v
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}

// ewmSpan applies exponential smoothing parameterized by span (pandas style).
func ewmSpan(values []float64, span int) []float64 {
	return ewm(values, 2/float64(span+1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
