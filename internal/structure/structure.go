package structure

import (
	"time"

	"forex-smc-engine/internal/market"
)

// SwingKind distinguishes swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "HIGH"
	SwingLow  SwingKind = "LOW"
)

// ShiftKind distinguishes the two structure shift types.
type ShiftKind string

const (
	ShiftCHoCH ShiftKind = "CHOCH" // Change of Character - reversal signal
	ShiftBOS   ShiftKind = "BOS"   // Break of Structure - continuation signal
)

// Direction of a structure shift.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
)

// Trend classification from swing point sequence.
type Trend string

const (
	TrendHHHL    Trend = "HH_HL" // Higher highs and higher lows (bullish)
	TrendLHLL    Trend = "LH_LL" // Lower highs and lower lows (bearish)
	TrendRanging Trend = "RANGING"
)

// SwingPoint is a local high or low pivot.
type SwingPoint struct {
	Index     int       `json:"index"`
	Price     float64   `json:"price"`
	Kind      SwingKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Shift is a detected market structure shift (CHoCH or BOS).
type Shift struct {
	Kind               ShiftKind  `json:"kind"`
	Direction          Direction  `json:"direction"`
	BreakLevel         float64    `json:"break_level"`
	SwingPoint         SwingPoint `json:"swing_point"`
	ConfirmationCandle int        `json:"confirmation_candle_idx"`
	Timestamp          time.Time  `json:"timestamp"`
}

// DetectSwingPoints finds swing highs and lows using pivot logic.
//
// A swing high requires `leftBars` strictly lower highs to its left and
// `rightBars` strictly lower highs to its right; swing lows mirror on lows.
// Returns an empty slice when there are fewer than leftBars+rightBars+1 candles.
func DetectSwingPoints(candles []market.Candle, leftBars, rightBars int) []SwingPoint {
	if len(candles) < leftBars+rightBars+1 {
		return nil
	}

	var swings []SwingPoint

	for i := leftBars; i < len(candles)-rightBars; i++ {
		high := candles[i].High
		low := candles[i].Low

		isSwingHigh := true
		for j := 1; j <= leftBars && isSwingHigh; j++ {
			if candles[i-j].High >= high {
				isSwingHigh = false
			}
		}
		for j := 1; j <= rightBars && isSwingHigh; j++ {
			if candles[i+j].High >= high {
				isSwingHigh = false
			}
		}
		if isSwingHigh {
			swings = append(swings, SwingPoint{
				Index:     i,
				Price:     high,
				Kind:      SwingHigh,
				Timestamp: candles[i].Time,
			})
		}

		isSwingLow := true
		for j := 1; j <= leftBars && isSwingLow; j++ {
			if candles[i-j].Low <= low {
				isSwingLow = false
			}
		}
		for j := 1; j <= rightBars && isSwingLow; j++ {
			if candles[i+j].Low <= low {
				isSwingLow = false
			}
		}
		if isSwingLow {
			swings = append(swings, SwingPoint{
				Index:     i,
				Price:     low,
				Kind:      SwingLow,
				Timestamp: candles[i].Time,
			})
		}
	}

	return swings
}

// Highs filters swing highs from a swing point sequence.
func Highs(swings []SwingPoint) []SwingPoint {
	var out []SwingPoint
	for _, sp := range swings {
		if sp.Kind == SwingHigh {
			out = append(out, sp)
		}
	}
	return out
}

// Lows filters swing lows from a swing point sequence.
func Lows(swings []SwingPoint) []SwingPoint {
	var out []SwingPoint
	for _, sp := range swings {
		if sp.Kind == SwingLow {
			out = append(out, sp)
		}
	}
	return out
}

// ClassifyStructure classifies market structure by comparing the last two
// swing highs and last two swing lows. Needs at least two of each side,
// otherwise the structure is RANGING.
func ClassifyStructure(swings []SwingPoint) Trend {
	highs := Highs(swings)
	lows := Lows(swings)

	if len(highs) < 2 || len(lows) < 2 {
		return TrendRanging
	}

	higherHighs := highs[len(highs)-1].Price > highs[len(highs)-2].Price
	higherLows := lows[len(lows)-1].Price > lows[len(lows)-2].Price
	lowerHighs := highs[len(highs)-1].Price < highs[len(highs)-2].Price
	lowerLows := lows[len(lows)-1].Price < lows[len(lows)-2].Price

	switch {
	case higherHighs && higherLows:
		return TrendHHHL
	case lowerHighs && lowerLows:
		return TrendLHLL
	default:
		return TrendRanging
	}
}

// DetectCHoCH detects a Change of Character.
//
// In an uptrend (HH_HL) a CHoCH is the first candle closing below the last
// higher low; in a downtrend (LH_LL) the first close above the last lower
// high. At most one shift is returned.
func DetectCHoCH(candles []market.Candle, swings []SwingPoint) *Shift {
	trend := ClassifyStructure(swings)
	highs := Highs(swings)
	lows := Lows(swings)

	switch trend {
	case TrendHHHL:
		if len(lows) == 0 {
			return nil
		}
		lastHL := lows[len(lows)-1]
		for i := lastHL.Index + 1; i < len(candles); i++ {
			if candles[i].Close < lastHL.Price {
				return &Shift{
					Kind:               ShiftCHoCH,
					Direction:          Bearish,
					BreakLevel:         lastHL.Price,
					SwingPoint:         lastHL,
					ConfirmationCandle: i,
					Timestamp:          candles[i].Time,
				}
			}
		}
	case TrendLHLL:
		if len(highs) == 0 {
			return nil
		}
		lastLH := highs[len(highs)-1]
		for i := lastLH.Index + 1; i < len(candles); i++ {
			if candles[i].Close > lastLH.Price {
				return &Shift{
					Kind:               ShiftCHoCH,
					Direction:          Bullish,
					BreakLevel:         lastLH.Price,
					SwingPoint:         lastLH,
					ConfirmationCandle: i,
					Timestamp:          candles[i].Time,
				}
			}
		}
	}

	return nil
}

// DetectBOS detects a Break of Structure.
//
// In an uptrend a BOS is the first candle closing above the last higher
// high; in a downtrend the first close below the last lower low. At most
// one shift is returned.
func DetectBOS(candles []market.Candle, swings []SwingPoint) *Shift {
	trend := ClassifyStructure(swings)
	highs := Highs(swings)
	lows := Lows(swings)

	switch trend {
	case TrendHHHL:
		if len(highs) == 0 {
			return nil
		}
		lastHH := highs[len(highs)-1]
		for i := lastHH.Index + 1; i < len(candles); i++ {
			if candles[i].Close > lastHH.Price {
				return &Shift{
					Kind:               ShiftBOS,
					Direction:          Bullish,
					BreakLevel:         lastHH.Price,
					SwingPoint:         lastHH,
					ConfirmationCandle: i,
					Timestamp:          candles[i].Time,
				}
			}
		}
	case TrendLHLL:
		if len(lows) == 0 {
			return nil
		}
		lastLL := lows[len(lows)-1]
		for i := lastLL.Index + 1; i < len(candles); i++ {
			if candles[i].Close < lastLL.Price {
				return &Shift{
					Kind:               ShiftBOS,
					Direction:          Bearish,
					BreakLevel:         lastLL.Price,
					SwingPoint:         lastLL,
					ConfirmationCandle: i,
					Timestamp:          candles[i].Time,
				}
			}
		}
	}

	return nil
}
