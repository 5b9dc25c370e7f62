package zones

import (
	"time"

	"forex-smc-engine/internal/market"
	"forex-smc-engine/internal/structure"
)

// avgBodyLookback is the window used for average-body based filters.
const avgBodyLookback = 30

// FairValueGap is a three-candle imbalance that tends to act as a price
// magnet until filled.
type FairValueGap struct {
	StartPrice     float64             `json:"start_price"` // Gap edge closer to price
	EndPrice       float64             `json:"end_price"`   // Gap edge farther from price
	Direction      structure.Direction `json:"direction"`
	CandleIndex    int                 `json:"candle_index"` // Middle candle of the pattern
	Filled         bool                `json:"filled"`
	FillPercentage float64             `json:"fill_percentage"` // 0-100, monotone non-decreasing
	Timestamp      time.Time           `json:"timestamp"`
}

// Midpoint returns the center price of the gap.
func (f FairValueGap) Midpoint() float64 {
	return (f.StartPrice + f.EndPrice) / 2
}

// Size returns the gap height.
func (f FairValueGap) Size() float64 {
	if f.EndPrice > f.StartPrice {
		return f.EndPrice - f.StartPrice
	}
	return f.StartPrice - f.EndPrice
}

// Bounds returns the gap's low and high edges in order.
func (f FairValueGap) Bounds() (low, high float64) {
	if f.StartPrice < f.EndPrice {
		return f.StartPrice, f.EndPrice
	}
	return f.EndPrice, f.StartPrice
}

// DetectFVG finds Fair Value Gaps in the candle series.
//
// Bullish FVG: candle[i-1].High < candle[i+1].Low (gap up around i).
// Bearish FVG: candle[i-1].Low > candle[i+1].High (gap down around i).
// minGapRatio filters gaps smaller than that multiple of the 30-bar
// average body; zero disables the filter. Fill percentage is the maximum
// penetration of the gap by later candles, clamped to [0,100].
func DetectFVG(candles []market.Candle, minGapRatio float64) []FairValueGap {
	if len(candles) < 3 {
		return nil
	}

	avgBody := market.AverageBody(candles, avgBodyLookback)

	var fvgs []FairValueGap

	for i := 1; i < len(candles)-1; i++ {
		prev := candles[i-1]
		curr := candles[i]
		next := candles[i+1]

		if prev.High < next.Low {
			gapSize := next.Low - prev.High
			if minGapRatio == 0 || (avgBody > 0 && gapSize/avgBody >= minGapRatio) {
				fvg := FairValueGap{
					StartPrice:  next.Low,
					EndPrice:    prev.High,
					Direction:   structure.Bullish,
					CandleIndex: i,
					Timestamp:   curr.Time,
				}
				updateFVGFill(&fvg, candles[i+1:])
				fvgs = append(fvgs, fvg)
			}
		}

		if prev.Low > next.High {
			gapSize := prev.Low - next.High
			if minGapRatio == 0 || (avgBody > 0 && gapSize/avgBody >= minGapRatio) {
				fvg := FairValueGap{
					StartPrice:  next.High,
					EndPrice:    prev.Low,
					Direction:   structure.Bearish,
					CandleIndex: i,
					Timestamp:   curr.Time,
				}
				updateFVGFill(&fvg, candles[i+1:])
				fvgs = append(fvgs, fvg)
			}
		}
	}

	return fvgs
}

// updateFVGFill computes the maximum historical penetration of the gap by
// the given later candles. A zero-width gap is treated as fully filled.
func updateFVGFill(fvg *FairValueGap, laterCandles []market.Candle) {
	low, high := fvg.Bounds()
	gapSize := high - low

	if gapSize <= 0 {
		fvg.Filled = true
		fvg.FillPercentage = 100
		return
	}

	maxFill := 0.0
	for _, candle := range laterCandles {
		var penetration float64
		if fvg.Direction == structure.Bullish {
			// Bullish gaps fill from above as price trades back down into them
			if candle.Low <= high {
				bottom := candle.Low
				if bottom < low {
					bottom = low
				}
				penetration = high - bottom
			}
		} else {
			// Bearish gaps fill from below
			if candle.High >= low {
				top := candle.High
				if top > high {
					top = high
				}
				penetration = top - low
			}
		}
		if pct := penetration / gapSize * 100; pct > maxFill {
			maxFill = pct
		}
	}

	if maxFill > 100 {
		maxFill = 100
	}
	fvg.FillPercentage = maxFill
	fvg.Filled = maxFill >= 100
}
