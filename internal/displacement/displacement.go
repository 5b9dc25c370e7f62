// Package displacement detects institutional impulse moves: candles with
// an outsized body and minimal wicks, showing one-sided order flow.
package displacement

import (
	"time"

	"forex-smc-engine/internal/market"
	"forex-smc-engine/internal/structure"
)

// Detection defaults.
const (
	DefaultMinRatio   = 2.0  // Body must exceed this multiple of the average body
	DefaultMaxWickPct = 0.30 // Combined wicks must stay under 30% of the range
	DefaultLookback   = 20   // Bars used for the average body
)

// Displacement is a detected impulse candle.
type Displacement struct {
	Direction    structure.Direction `json:"direction"`
	CandleIndex  int                 `json:"candle_index"`
	BodySize     float64             `json:"body_size"`
	AvgBodyRatio float64             `json:"avg_body_ratio"`
	Timestamp    time.Time           `json:"timestamp"`
}

// Detect finds displacement candles.
//
// A displacement has a body at least minRatio times the average body of the
// preceding `lookback` candles and combined wicks no more than maxWickPct
// of the candle's full range. Returns an empty slice when the series is
// shorter than lookback+1.
func Detect(candles []market.Candle, minRatio, maxWickPct float64, lookback int) []Displacement {
	if minRatio <= 0 {
		minRatio = DefaultMinRatio
	}
	if maxWickPct <= 0 {
		maxWickPct = DefaultMaxWickPct
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if len(candles) < lookback+1 {
		return nil
	}

	var out []Displacement

	for i := lookback; i < len(candles); i++ {
		candle := candles[i]
		body := candle.Body()
		totalRange := candle.Range()
		if totalRange == 0 {
			continue
		}

		avgBody := 0.0
		for j := i - lookback; j < i; j++ {
			avgBody += candles[j].Body()
		}
		avgBody /= float64(lookback)
		if avgBody == 0 {
			continue
		}

		ratio := body / avgBody
		if ratio < minRatio {
			continue
		}

		var direction structure.Direction
		var upperWick, lowerWick float64
		if candle.IsBullish() {
			direction = structure.Bullish
			upperWick = candle.High - candle.Close
			lowerWick = candle.Open - candle.Low
		} else {
			direction = structure.Bearish
			upperWick = candle.High - candle.Open
			lowerWick = candle.Close - candle.Low
		}

		if (upperWick+lowerWick)/totalRange > maxWickPct {
			continue
		}

		out = append(out, Displacement{
			Direction:    direction,
			CandleIndex:  i,
			BodySize:     body,
			AvgBodyRatio: ratio,
			Timestamp:    candle.Time,
		})
	}

	return out
}
