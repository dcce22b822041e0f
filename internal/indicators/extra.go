package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// Auxiliary oscillator set, enabled via config. These lean on go-talib and
// normalize its zero-filled warmup prefixes into NaN so the columns follow
// the same convention as the core set.

// MACDResult holds the MACD columns.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes MACD(fast, slow, signal).
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	if len(closes) < slow+signal {
		return MACDResult{
			MACD:      nanSlice(len(closes)),
			Signal:    nanSlice(len(closes)),
			Histogram: nanSlice(len(closes)),
		}
	}
	macd, sig, hist := talib.Macd(closes, fast, slow, signal)
	warm := slow + signal - 2
	return MACDResult{
		MACD:      maskWarmup(macd, warm),
		Signal:    maskWarmup(sig, warm),
		Histogram: maskWarmup(hist, warm),
	}
}

// StochResult holds the slow stochastic columns.
type StochResult struct {
	K []float64
	D []float64
}

// Stochastic computes the slow stochastic oscillator.
func Stochastic(highs, lows, closes []float64, fastK, slowK, slowD int) StochResult {
	warm := fastK - 1 + slowK - 1 + slowD - 1
	if len(closes) <= warm {
		return StochResult{K: nanSlice(len(closes)), D: nanSlice(len(closes))}
	}
	k, d := talib.Stoch(highs, lows, closes, fastK, slowK, talib.SMA, slowD, talib.SMA)
	return StochResult{
		K: maskWarmup(k, fastK-1+slowK-1),
		D: maskWarmup(d, warm),
	}
}

// WilliamsR computes Williams %R.
func WilliamsR(highs, lows, closes []float64, period int) []float64 {
	if len(closes) < period {
		return nanSlice(len(closes))
	}
	return maskWarmup(talib.WillR(highs, lows, closes, period), period-1)
}

// CCI computes the Commodity Channel Index.
func CCI(highs, lows, closes []float64, period int) []float64 {
	if len(closes) < period {
		return nanSlice(len(closes))
	}
	return maskWarmup(talib.Cci(highs, lows, closes, period), period-1)
}

// ROC computes the rate of change in percent over period bars.
func ROC(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nanSlice(len(closes))
	}
	return maskWarmup(talib.Roc(closes, period), period)
}

// MFI computes the Money Flow Index.
func MFI(highs, lows, closes, volumes []float64, period int) []float64 {
	if len(closes) <= period {
		return nanSlice(len(closes))
	}
	return maskWarmup(talib.Mfi(highs, lows, closes, volumes, period), period)
}

// OBV computes On-Balance Volume.
func OBV(closes, volumes []float64) []float64 {
	if len(closes) == 0 {
		return nil
	}
	return talib.Obv(closes, volumes)
}

// AD computes the Accumulation/Distribution line.
func AD(highs, lows, closes, volumes []float64) []float64 {
	if len(closes) == 0 {
		return nil
	}
	return talib.Ad(highs, lows, closes, volumes)
}

// CMF computes the Chaikin Money Flow: rolling money-flow volume over
// rolling volume.
func CMF(highs, lows, closes, volumes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if n < period {
		return out
	}

	mfv := make([]float64, n)
	for i := 0; i < n; i++ {
		span := highs[i] - lows[i]
		if span == 0 {
			mfv[i] = 0
			continue
		}
		mult := ((closes[i] - lows[i]) - (highs[i] - closes[i])) / span
		mfv[i] = mult * volumes[i]
	}

	var mfvSum, volSum float64
	for i := 0; i < n; i++ {
		mfvSum += mfv[i]
		volSum += volumes[i]
		if i >= period {
			mfvSum -= mfv[i-period]
			volSum -= volumes[i-period]
		}
		if i >= period-1 && volSum != 0 {
			out[i] = mfvSum / volSum
		}
	}
	return out
}

// maskWarmup replaces the first warm positions with NaN.
func maskWarmup(values []float64, warm int) []float64 {
	if warm > len(values) {
		warm = len(values)
	}
	for i := 0; i < warm; i++ {
		values[i] = math.NaN()
	}
	return values
}
