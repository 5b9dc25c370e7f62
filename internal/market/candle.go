package market

import (
	"strings"
	"time"
)

// Candle represents a single OHLCV candle. Series are expected to be
// ordered by ascending time with no duplicate timestamps.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Body returns the absolute body size of the candle.
func (c Candle) Body() float64 {
	return abs(c.Close - c.Open)
}

// Range returns the full high-to-low range of the candle.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// PipValue returns the pip size for an instrument.
// Gold trades in 0.1 increments, crypto in whole units, JPY pairs in 0.01.
func PipValue(instrument string) float64 {
	switch {
	case strings.Contains(instrument, "XAU"):
		return 0.1
	case strings.Contains(instrument, "BTC"), strings.Contains(instrument, "ETH"):
		return 1.0
	case strings.Contains(instrument, "JPY"):
		return 0.01
	default:
		return 0.0001
	}
}

// AverageBody calculates the mean body size over the last `lookback` candles.
// Returns 0 if the series is empty.
func AverageBody(candles []Candle, lookback int) float64 {
	if len(candles) == 0 {
		return 0
	}
	start := 0
	if len(candles) > lookback {
		start = len(candles) - lookback
	}
	sum := 0.0
	for _, c := range candles[start:] {
		sum += c.Body()
	}
	return sum / float64(len(candles)-start)
}

// ATR calculates the Average True Range over the last `period` bars.
// Returns 0 if there is not enough data.
func ATR(candles []Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close
		tr := high - low
		if hc := abs(high - prevClose); hc > tr {
			tr = hc
		}
		if lc := abs(low - prevClose); lc > tr {
			tr = lc
		}
		trueRanges = append(trueRanges, tr)
	}
	if len(trueRanges) < period {
		return 0
	}
	sum := 0.0
	for _, tr := range trueRanges[len(trueRanges)-period:] {
		sum += tr
	}
	return sum / float64(period)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
