package indicators

// Standard column names.
const (
	ColSMA50       = "sma_50"
	ColSMA100      = "sma_100"
	ColSMA200      = "sma_200"
	ColEMA20       = "ema_20"
	ColRSI14       = "rsi_14"
	ColATR14       = "atr_14"
	ColNATR        = "natr"
	ColADX14       = "adx_14"
	ColPlusDI      = "plus_di"
	ColMinusDI     = "minus_di"
	ColBBUpper     = "bb_upper"
	ColBBMiddle    = "bb_middle"
	ColBBLower     = "bb_lower"
	ColBBBandwidth = "bb_bandwidth"
	ColBBPercentB  = "bb_percent_b"
	ColKCUpper     = "kc_upper"
	ColKCMiddle    = "kc_middle"
	ColKCLower     = "kc_lower"
	ColDCUpper     = "dc_upper"
	ColDCMiddle    = "dc_middle"
	ColDCLower     = "dc_lower"
	ColHigh20      = "high_20"
	ColVWAP20      = "vwap_20"
	ColVolSMA20    = "vol_sma_20"
	ColDollarVol   = "dollar_volume"
)

// Auxiliary column names (enabled via Options.Extra).
const (
	ColMACD       = "macd"
	ColMACDSignal = "macd_signal"
	ColMACDHist   = "macd_hist"
	ColStochK     = "stoch_k"
	ColStochD     = "stoch_d"
	ColWilliamsR  = "williams_r"
	ColCCI20      = "cci_20"
	ColROC12      = "roc_12"
	ColMFI14      = "mfi_14"
	ColOBV        = "obv"
	ColAD         = "ad"
	ColCMF20      = "cmf_20"
)

// Options controls which columns Enrich computes.
type Options struct {
	Extra bool // add the auxiliary oscillator set
}

// Enrich computes the standard indicator columns in place and returns the
// series for chaining.
func Enrich(s *Series, opts Options) *Series {
	highs := s.Highs()
	lows := s.Lows()
	closes := s.Closes()
	volumes := s.Volumes()

	s.Set(ColSMA50, SMA(closes, 50))
	s.Set(ColSMA100, SMA(closes, 100))
	s.Set(ColSMA200, SMA(closes, 200))
	s.Set(ColEMA20, EMA(closes, 20))
	s.Set(ColRSI14, RSI(closes, 14))
	s.Set(ColATR14, ATR(highs, lows, closes, 14))
	s.Set(ColNATR, NATR(highs, lows, closes, 14))

	adx := ADX(highs, lows, closes, 14)
	s.Set(ColADX14, adx.ADX)
	s.Set(ColPlusDI, adx.PlusDI)
	s.Set(ColMinusDI, adx.MinusDI)

	bb := Bollinger(closes, 20, 2.0)
	s.Set(ColBBUpper, bb.Upper)
	s.Set(ColBBMiddle, bb.Middle)
	s.Set(ColBBLower, bb.Lower)
	s.Set(ColBBBandwidth, bb.Bandwidth)
	s.Set(ColBBPercentB, bb.PercentB)

	kc := Keltner(highs, lows, closes, 20, 10, 1.5)
	s.Set(ColKCUpper, kc.Upper)
	s.Set(ColKCMiddle, kc.Middle)
	s.Set(ColKCLower, kc.Lower)

	dc := Donchian(highs, lows, 20)
	s.Set(ColDCUpper, dc.Upper)
	s.Set(ColDCMiddle, dc.Middle)
	s.Set(ColDCLower, dc.Lower)

	s.Set(ColHigh20, RollingMax(highs, 20))
	s.Set(ColVWAP20, RollingVWAP(highs, lows, closes, volumes, 20))
	s.Set(ColVolSMA20, SMA(volumes, 20))
	s.Set(ColDollarVol, DollarVolume(closes, volumes))

	if opts.Extra {
		macd := MACD(closes, 12, 26, 9)
		s.Set(ColMACD, macd.MACD)
		s.Set(ColMACDSignal, macd.Signal)
		s.Set(ColMACDHist, macd.Histogram)

		stoch := Stochastic(highs, lows, closes, 14, 3, 3)
		s.Set(ColStochK, stoch.K)
		s.Set(ColStochD, stoch.D)

		s.Set(ColWilliamsR, WilliamsR(highs, lows, closes, 14))
		s.Set(ColCCI20, CCI(highs, lows, closes, 20))
		s.Set(ColROC12, ROC(closes, 12))
		s.Set(ColMFI14, MFI(highs, lows, closes, volumes, 14))
		s.Set(ColOBV, OBV(closes, volumes))
		s.Set(ColAD, AD(highs, lows, closes, volumes))
		s.Set(ColCMF20, CMF(highs, lows, closes, volumes, 20))
	}

	return s
}
