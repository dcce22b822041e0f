package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SMA computes a simple moving average over a full window: the first
// period-1 positions are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes an exponential moving average with alpha = 2/(period+1),
// seeded at the first value. Every position holds a value.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if len(values) == 0 {
		return out
	}

	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// WilderSmooth applies Wilder's smoothing (alpha = 1/period) to values,
// seeding with the mean of the first period values. Positions before the
// seed are NaN. NaN inputs before the first valid value shift the seed
// window forward.
func WilderSmooth(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	// Find the first run of period valid values to seed from.
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < period {
		return out
	}

	var sum float64
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	seed := start + period - 1
	out[seed] = sum / float64(period)

	alpha := 1.0 / float64(period)
	for i := seed + 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI computes the Relative Strength Index with Wilder smoothing of gains
// and losses. Values before index period are NaN.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if len(closes) < period+1 {
		return out
	}

	gains := nanSlice(len(closes))
	losses := nanSlice(len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
			losses[i] = 0
		} else {
			gains[i] = 0
			losses[i] = -delta
		}
	}

	avgGain := WilderSmooth(gains, period)
	avgLoss := WilderSmooth(losses, period)

	for i := range closes {
		g, l := avgGain[i], avgLoss[i]
		if math.IsNaN(g) || math.IsNaN(l) {
			continue
		}
		if l == 0 {
			out[i] = 100
			continue
		}
		rs := g / l
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// TrueRange computes the true range column. Index 0 uses high-low since
// there is no previous close.
func TrueRange(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(highs))
	for i := range highs {
		if i == 0 {
			out[i] = highs[i] - lows[i]
			continue
		}
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR computes the Average True Range with Wilder smoothing.
func ATR(highs, lows, closes []float64, period int) []float64 {
	return WilderSmooth(TrueRange(highs, lows, closes), period)
}

// NATR computes ATR as a percentage of close.
func NATR(highs, lows, closes []float64, period int) []float64 {
	atr := ATR(highs, lows, closes, period)
	out := nanSlice(len(closes))
	for i := range closes {
		if math.IsNaN(atr[i]) || closes[i] == 0 {
			continue
		}
		out[i] = atr[i] / closes[i] * 100
	}
	return out
}

// ADXResult holds the directional movement columns, all aligned with the
// source bars.
type ADXResult struct {
	PlusDI  []float64
	MinusDI []float64
	ADX     []float64
}

// ADX computes the Average Directional Index with Wilder smoothing.
// All three output columns share the input's index: output[i] always
// refers to bar i. The ADX column is NaN until roughly 2*period bars are
// available and stays within [0, 100] afterwards.
func ADX(highs, lows, closes []float64, period int) ADXResult {
	n := len(highs)
	res := ADXResult{
		PlusDI:  nanSlice(n),
		MinusDI: nanSlice(n),
		ADX:     nanSlice(n),
	}
	if n < 2*period {
		return res
	}

	plusDM := nanSlice(n)
	minusDM := nanSlice(n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		plusDM[i] = 0
		minusDM[i] = 0
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	tr := TrueRange(highs, lows, closes)
	tr[0] = math.NaN() // no previous close, keep smoothing windows aligned

	smoothTR := WilderSmooth(tr, period)
	smoothPlus := WilderSmooth(plusDM, period)
	smoothMinus := WilderSmooth(minusDM, period)

	dx := nanSlice(n)
	for i := range highs {
		if math.IsNaN(smoothTR[i]) || smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlus[i] / smoothTR[i]
		minusDI := 100 * smoothMinus[i] / smoothTR[i]
		res.PlusDI[i] = plusDI
		res.MinusDI[i] = minusDI

		sum := plusDI + minusDI
		if sum == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}

	res.ADX = WilderSmooth(dx, period)
	return res
}

// BollingerResult holds the Bollinger band columns.
type BollingerResult struct {
	Upper     []float64
	Middle    []float64
	Lower     []float64
	Bandwidth []float64
	PercentB  []float64
}

// Bollinger computes Bollinger bands with a rolling sample standard
// deviation, plus bandwidth ((upper-lower)/middle) and %B.
func Bollinger(closes []float64, period int, numStd float64) BollingerResult {
	n := len(closes)
	res := BollingerResult{
		Upper:     nanSlice(n),
		Middle:    SMA(closes, period),
		Lower:     nanSlice(n),
		Bandwidth: nanSlice(n),
		PercentB:  nanSlice(n),
	}
	if n < period {
		return res
	}

	for i := period - 1; i < n; i++ {
		window := closes[i-period+1 : i+1]
		sd := stat.StdDev(window, nil)

		mid := res.Middle[i]
		upper := mid + numStd*sd
		lower := mid - numStd*sd
		res.Upper[i] = upper
		res.Lower[i] = lower

		if mid != 0 {
			res.Bandwidth[i] = (upper - lower) / mid
		}
		if upper != lower {
			res.PercentB[i] = (closes[i] - lower) / (upper - lower)
		}
	}
	return res
}

// KeltnerResult holds the Keltner channel columns.
type KeltnerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Keltner computes Keltner channels: EMA midline with ATR envelopes.
func Keltner(highs, lows, closes []float64, period int, atrPeriod int, mult float64) KeltnerResult {
	n := len(closes)
	res := KeltnerResult{
		Upper:  nanSlice(n),
		Middle: EMA(closes, period),
		Lower:  nanSlice(n),
	}

	atr := ATR(highs, lows, closes, atrPeriod)
	for i := range closes {
		if math.IsNaN(atr[i]) {
			continue
		}
		res.Upper[i] = res.Middle[i] + mult*atr[i]
		res.Lower[i] = res.Middle[i] - mult*atr[i]
	}
	return res
}

// RollingMax computes the maximum of the trailing window including the
// current position.
func RollingMax(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		m := values[i]
		for j := i - period + 1; j < i; j++ {
			if values[j] > m {
				m = values[j]
			}
		}
		out[i] = m
	}
	return out
}

// RollingMin computes the minimum of the trailing window including the
// current position.
func RollingMin(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		m := values[i]
		for j := i - period + 1; j < i; j++ {
			if values[j] < m {
				m = values[j]
			}
		}
		out[i] = m
	}
	return out
}

// DonchianResult holds the Donchian channel columns.
type DonchianResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Donchian computes Donchian channels from trailing highs and lows.
func Donchian(highs, lows []float64, period int) DonchianResult {
	upper := RollingMax(highs, period)
	lower := RollingMin(lows, period)
	middle := nanSlice(len(highs))
	for i := range highs {
		if !math.IsNaN(upper[i]) && !math.IsNaN(lower[i]) {
			middle[i] = (upper[i] + lower[i]) / 2
		}
	}
	return DonchianResult{Upper: upper, Middle: middle, Lower: lower}
}

// RollingVWAP computes a rolling volume-weighted average price over the
// typical price (H+L+C)/3.
func RollingVWAP(highs, lows, closes, volumes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if n < period {
		return out
	}

	var pvSum, volSum float64
	for i := 0; i < n; i++ {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		pvSum += typical * volumes[i]
		volSum += volumes[i]
		if i >= period {
			oldTypical := (highs[i-period] + lows[i-period] + closes[i-period]) / 3
			pvSum -= oldTypical * volumes[i-period]
			volSum -= volumes[i-period]
		}
		if i >= period-1 && volSum > 0 {
			out[i] = pvSum / volSum
		}
	}
	return out
}

// DollarVolume computes close * volume per bar.
func DollarVolume(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		out[i] = closes[i] * volumes[i]
	}
	return out
}
