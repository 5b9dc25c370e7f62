package liquidity

import (
	"sort"

	"forex-smc-engine/internal/market"
	"forex-smc-engine/internal/structure"
)

// Side of a liquidity level relative to price.
type Side string

const (
	Buyside  Side = "BUYSIDE"  // Above price: buy stops cluster here
	Sellside Side = "SELLSIDE" // Below price: sell stops cluster here
)

// Source of a liquidity level.
type Source string

const (
	SourceSwing      Source = "SWING"
	SourceEqualHighs Source = "EQUAL_HIGHS"
	SourceEqualLows  Source = "EQUAL_LOWS"
	SourceSession    Source = "SESSION"
)

// Level is a price level where stop orders cluster.
type Level struct {
	Price    float64 `json:"price"`
	Side     Side    `json:"side"`
	Source   Source  `json:"source"`
	Strength int     `json:"strength"` // Number of touches forming the level
	Swept    bool    `json:"swept"`
}

// Map holds all identified liquidity levels for an instrument.
// Buyside is sorted ascending by price, sellside descending, so the
// nearest level beyond current price is first past the scan point.
type Map struct {
	Buyside         []Level `json:"buyside"`
	Sellside        []Level `json:"sellside"`
	NearestBuyside  *Level  `json:"nearest_buyside,omitempty"`
	NearestSellside *Level  `json:"nearest_sellside,omitempty"`
}

// MapLiquidity builds a liquidity map from candles and swing points.
//
// Swing highs become buyside targets, swing lows sellside targets. Clusters
// of highs/lows within `tolerancePips` of each other (at least two members)
// become equal-high/equal-low levels with strength equal to the cluster size.
func MapLiquidity(candles []market.Candle, swings []structure.SwingPoint, instrument string, tolerancePips float64) Map {
	pip := market.PipValue(instrument)
	tolerance := tolerancePips * pip

	var buyside, sellside []Level

	currentPrice := 0.0
	if len(candles) > 0 {
		currentPrice = candles[len(candles)-1].Close
	}

	for _, sp := range structure.Highs(swings) {
		buyside = append(buyside, Level{Price: sp.Price, Side: Buyside, Source: SourceSwing, Strength: 1})
	}
	for _, sp := range structure.Lows(swings) {
		sellside = append(sellside, Level{Price: sp.Price, Side: Sellside, Source: SourceSwing, Strength: 1})
	}

	if len(candles) >= 10 {
		highs := make([]float64, len(candles))
		lows := make([]float64, len(candles))
		for i, c := range candles {
			highs[i] = c.High
			lows[i] = c.Low
		}

		for _, group := range findEqualLevels(highs, tolerance, 2) {
			buyside = append(buyside, Level{
				Price:    mean(group),
				Side:     Buyside,
				Source:   SourceEqualHighs,
				Strength: len(group),
			})
		}
		for _, group := range findEqualLevels(lows, tolerance, 2) {
			sellside = append(sellside, Level{
				Price:    mean(group),
				Side:     Sellside,
				Source:   SourceEqualLows,
				Strength: len(group),
			})
		}
	}

	sort.Slice(buyside, func(i, j int) bool { return buyside[i].Price < buyside[j].Price })
	sort.Slice(sellside, func(i, j int) bool { return sellside[i].Price > sellside[j].Price })

	m := Map{Buyside: buyside, Sellside: sellside}

	for i := range m.Buyside {
		if m.Buyside[i].Price > currentPrice {
			m.NearestBuyside = &m.Buyside[i]
			break
		}
	}
	for i := range m.Sellside {
		if m.Sellside[i].Price < currentPrice {
			m.NearestSellside = &m.Sellside[i]
			break
		}
	}

	return m
}

// findEqualLevels groups prices that sit within tolerance of each other.
// Prices are sorted first, so each group is a contiguous run and scanning
// can stop at the first price outside tolerance.
func findEqualLevels(prices []float64, tolerance float64, minCount int) [][]float64 {
	if len(prices) == 0 {
		return nil
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	var groups [][]float64
	used := make([]bool, len(sorted))

	for i, anchor := range sorted {
		if used[i] {
			continue
		}
		group := []float64{anchor}
		used[i] = true
		for j := i + 1; j < len(sorted); j++ {
			if used[j] {
				continue
			}
			if sorted[j]-anchor <= tolerance {
				group = append(group, sorted[j])
				used[j] = true
			} else {
				break
			}
		}
		if len(group) >= minCount {
			groups = append(groups, group)
		}
	}

	return groups
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
