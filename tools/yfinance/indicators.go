package yfinance

import "math"

// Indicators summarizes a closing price series
type Indicators struct {
	LastClose  float64  `json:"last_close"`
	SMA20      *float64 `json:"sma_20,omitempty"`
	SMA50      *float64 `json:"sma_50,omitempty"`
	EMA12      *float64 `json:"ema_12,omitempty"`
	EMA26      *float64 `json:"ema_26,omitempty"`
	MACD       *float64 `json:"macd,omitempty"`
	RSI14      *float64 `json:"rsi_14,omitempty"`
	Volatility *float64 `json:"annualized_volatility,omitempty"`
}

// computeIndicators derives indicators from closes ordered oldest first.
// Indicators whose window exceeds the series are omitted.
func computeIndicators(closes []float64) Indicators {
	var ind Indicators
	if len(closes) == 0 {
		return ind
	}
	ind.LastClose = round(closes[len(closes)-1])
	ind.SMA20 = sma(closes, 20)
	ind.SMA50 = sma(closes, 50)
	ind.EMA12 = ema(closes, 12)
	ind.EMA26 = ema(closes, 26)
	if ind.EMA12 != nil && ind.EMA26 != nil {
		ind.MACD = ptr(round(*ind.EMA12 - *ind.EMA26))
	}
	ind.RSI14 = rsi(closes, 14)
	ind.Volatility = volatility(closes)
	return ind
}

func sma(xs []float64, n int) *float64 {
	if len(xs) < n {
		return nil
	}
	var sum float64
	for _, x := range xs[len(xs)-n:] {
		sum += x
	}
	return ptr(round(sum / float64(n)))
}

func ema(xs []float64, n int) *float64 {
	if len(xs) < n {
		return nil
	}
	k := 2 / float64(n+1)
	var v float64
	for _, x := range xs[:n] {
		v += x
	}
	v /= float64(n)
	for _, x := range xs[n:] {
		v = x*k + v*(1-k)
	}
	return ptr(round(v))
}

// rsi uses Wilder smoothing
func rsi(xs []float64, n int) *float64 {
	if len(xs) <= n {
		return nil
	}
	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := xs[i] - xs[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(n)
	loss /= float64(n)
	for i := n + 1; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(n-1) + g) / float64(n)
		loss = (loss*float64(n-1) + l) / float64(n)
	}
	if loss == 0 {
		return ptr(100)
	}
	rs := gain / loss
	return ptr(round(100 - 100/(1+rs)))
}

func volatility(xs []float64) *float64 {
	if len(xs) < 3 {
		return nil
	}
	returns := make([]float64, 0, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		if xs[i-1] == 0 {
			continue
		}
		returns = append(returns, math.Log(xs[i]/xs[i-1]))
	}
	if len(returns) < 2 {
		return nil
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return ptr(round(math.Sqrt(variance) * math.Sqrt(252)))
}

func round(f float64) float64 { return math.Round(f*10000) / 10000 }

func ptr(f float64) *float64 { return &f }
