package zones

import (
	"time"

	"forex-smc-engine/internal/market"
	"forex-smc-engine/internal/structure"
)

// DefaultMinDisplacementRatio is the minimum body-to-average ratio for the
// candle following an order block to count as displacement.
const DefaultMinDisplacementRatio = 2.0

// OrderBlock is the last opposing candle before a strong displacement
// move, treated as a future reaction zone.
type OrderBlock struct {
	High                 float64             `json:"high"`
	Low                  float64             `json:"low"`
	Direction            structure.Direction `json:"direction"`
	CandleIndex          int                 `json:"candle_index"`
	Mitigated            bool                `json:"mitigated"` // Once true, stays true
	DisplacementStrength float64             `json:"displacement_strength"`
	Timestamp            time.Time           `json:"timestamp"`
}

// Midpoint returns the center price of the block.
func (ob OrderBlock) Midpoint() float64 {
	return (ob.High + ob.Low) / 2
}

// DetectOrderBlocks finds order blocks in the candle series.
//
// A bullish order block is a bearish candle immediately followed by a
// bullish candle whose body is at least minDisplacementRatio times the
// 30-bar average body (bearish blocks mirrored). A block is mitigated once
// a later close passes its far boundary.
func DetectOrderBlocks(candles []market.Candle, minDisplacementRatio float64) []OrderBlock {
	if len(candles) < 5 {
		return nil
	}
	if minDisplacementRatio <= 0 {
		minDisplacementRatio = DefaultMinDisplacementRatio
	}

	avgBody := market.AverageBody(candles, avgBodyLookback)
	if avgBody == 0 {
		return nil
	}

	var blocks []OrderBlock

	for i := 1; i < len(candles)-1; i++ {
		curr := candles[i]
		next := candles[i+1]
		nextBody := next.Body()

		if curr.IsBearish() && next.IsBullish() && nextBody >= avgBody*minDisplacementRatio {
			ob := OrderBlock{
				High:                 curr.High,
				Low:                  curr.Low,
				Direction:            structure.Bullish,
				CandleIndex:          i,
				DisplacementStrength: nextBody / avgBody,
				Timestamp:            curr.Time,
			}
			ob.Mitigated = isMitigated(ob, candles[i+2:])
			blocks = append(blocks, ob)
		}

		if curr.IsBullish() && next.IsBearish() && nextBody >= avgBody*minDisplacementRatio {
			ob := OrderBlock{
				High:                 curr.High,
				Low:                  curr.Low,
				Direction:            structure.Bearish,
				CandleIndex:          i,
				DisplacementStrength: nextBody / avgBody,
				Timestamp:            curr.Time,
			}
			ob.Mitigated = isMitigated(ob, candles[i+2:])
			blocks = append(blocks, ob)
		}
	}

	return blocks
}

// isMitigated reports whether a later close passed through the block's far
// boundary: below the low for bullish blocks, above the high for bearish.
func isMitigated(ob OrderBlock, laterCandles []market.Candle) bool {
	for _, candle := range laterCandles {
		if ob.Direction == structure.Bullish && candle.Close < ob.Low {
			return true
		}
		if ob.Direction == structure.Bearish && candle.Close > ob.High {
			return true
		}
	}
	return false
}
