// Package heatmap scores liquidity levels by estimated stop-loss density
// to predict where the next sweep is most likely to occur, instead of
// waiting for one to happen.
package heatmap

import (
	"math"

	"forex-smc-engine/internal/liquidity"
	"forex-smc-engine/internal/market"
)

// Source weights model how heavily stops cluster at each level type.
const (
	EqualLevelWeight = 3.0
	SwingWeight      = 1.5

	// DecayRate is the exponential density decay per hour of level age
	// (half-life around 13.9 hours).
	DecayRate = 0.05
)

// sessionWeights tier session extremes by importance for stop clustering.
var sessionWeights = map[string]float64{
	liquidity.SessionLondon: 3.0,
	liquidity.SessionNY:     2.5,
	liquidity.SessionAsian:  2.0,
}

// Bias summarizes which side of the book carries more density.
type Bias string

const (
	BiasBuysideHeavy  Bias = "BUYSIDE_HEAVY"
	BiasSellsideHeavy Bias = "SELLSIDE_HEAVY"
	BiasBalanced      Bias = "BALANCED"
)

// Level is a liquidity level with its estimated density.
type Level struct {
	Price          float64        `json:"price"`
	Side           liquidity.Side `json:"side"`
	DensityScore   float64        `json:"density_score"`
	Sources        []string       `json:"sources"`
	TouchCount     int            `json:"touch_count"`
	AgeHours       float64        `json:"age_hours"`
	TemporalWeight float64        `json:"temporal_weight"`
	Attraction     float64        `json:"attraction"`
}

// HeatMap is the aggregate predictive liquidity picture.
type HeatMap struct {
	BuysideLevels  []Level `json:"buyside_levels"`
	SellsideLevels []Level `json:"sellside_levels"`
	BuysideDensity float64 `json:"buyside_density"`
	SellsideDensity float64 `json:"sellside_density"`
	// SweepDirectionProbability is P(sellside sweep first); above 0.5
	// implies a bullish reversal setup.
	SweepDirectionProbability float64 `json:"sweep_direction_probability"`
	PrimaryTarget             *Level  `json:"primary_target,omitempty"`
	TemporalBias              Bias    `json:"temporal_bias"`
}

// Mapper builds predictive liquidity heat maps.
type Mapper struct{}

// NewMapper creates a heat map builder.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Build combines the liquidity map and session levels into a density-scored
// heat map. h1Candles supply level-age estimates and the HTF bias;
// currentPrice defaults to the last H1 close when zero.
func (m *Mapper) Build(h1Candles []market.Candle, liqMap liquidity.Map, sessions map[string]liquidity.SessionLevel, currentPrice float64) HeatMap {
	hm := HeatMap{SweepDirectionProbability: 0.5, TemporalBias: BiasBalanced}

	if currentPrice == 0 && len(h1Candles) > 0 {
		currentPrice = h1Candles[len(h1Candles)-1].Close
	}

	ageHours := estimateAgeHours(h1Candles)

	for _, level := range liqMap.Buyside {
		if level.Swept {
			continue
		}
		hm.BuysideLevels = append(hm.BuysideLevels, scoreLevel(level, ageHours))
	}
	for _, level := range liqMap.Sellside {
		if level.Swept {
			continue
		}
		hm.SellsideLevels = append(hm.SellsideLevels, scoreLevel(level, ageHours))
	}

	addSessionLevels(&hm, sessions, currentPrice)

	for _, l := range hm.BuysideLevels {
		hm.BuysideDensity += l.DensityScore
	}
	for _, l := range hm.SellsideLevels {
		hm.SellsideDensity += l.DensityScore
	}

	total := hm.BuysideDensity + hm.SellsideDensity
	if total > 0 {
		buyRatio := hm.BuysideDensity / total
		switch {
		case buyRatio > 0.6:
			hm.TemporalBias = BiasBuysideHeavy
		case buyRatio < 0.4:
			hm.TemporalBias = BiasSellsideHeavy
		default:
			hm.TemporalBias = BiasBalanced
		}
	}

	hm.SweepDirectionProbability = predictSweepDirection(
		hm.BuysideDensity, hm.SellsideDensity, InferHTFBias(h1Candles),
	)

	hm.PrimaryTarget = findPrimaryTarget(append(append([]Level{}, hm.BuysideLevels...), hm.SellsideLevels...), currentPrice)

	return hm
}

// scoreLevel converts a liquidity level into a density-scored entry.
func scoreLevel(level liquidity.Level, ageHours float64) Level {
	touchCount := level.Strength

	var baseWeight float64
	switch level.Source {
	case liquidity.SourceEqualHighs, liquidity.SourceEqualLows:
		baseWeight = EqualLevelWeight
	case liquidity.SourceSession:
		baseWeight = sessionWeights[liquidity.SessionLondon]
	default:
		baseWeight = SwingWeight
	}

	weight := TemporalWeight(ageHours)
	density := baseWeight * float64(touchCount) * weight

	return Level{
		Price:          level.Price,
		Side:           level.Side,
		DensityScore:   density,
		Sources:        []string{string(level.Source)},
		TouchCount:     touchCount,
		AgeHours:       ageHours,
		TemporalWeight: weight,
		Attraction:     density * (1 + 0.5*float64(touchCount)),
	}
}

// addSessionLevels scores session extremes. Session levels are at most a
// day old, so a mid-session age of 12 hours is assumed.
func addSessionLevels(hm *HeatMap, sessions map[string]liquidity.SessionLevel, currentPrice float64) {
	if len(sessions) == 0 || currentPrice == 0 {
		return
	}

	const sessionAgeHours = 12.0
	weight := TemporalWeight(sessionAgeHours)

	for name, sl := range sessions {
		sessionWeight, ok := sessionWeights[name]
		if !ok {
			continue
		}
		for _, price := range []float64{sl.High, sl.Low} {
			if price == 0 {
				continue
			}
			side := liquidity.Sellside
			if price > currentPrice {
				side = liquidity.Buyside
			}
			density := sessionWeight * weight
			level := Level{
				Price:          price,
				Side:           side,
				DensityScore:   density,
				Sources:        []string{string(liquidity.SourceSession) + ":" + name},
				TouchCount:     1,
				AgeHours:       sessionAgeHours,
				TemporalWeight: weight,
				Attraction:     density * 1.5,
			}
			if side == liquidity.Buyside {
				hm.BuysideLevels = append(hm.BuysideLevels, level)
			} else {
				hm.SellsideLevels = append(hm.SellsideLevels, level)
			}
		}
	}
}

// TemporalWeight is the exponential decay applied to a level's density as
// it ages. Equals 1.0 at age zero and is strictly decreasing.
func TemporalWeight(ageHours float64) float64 {
	return math.Exp(-DecayRate * ageHours)
}

// estimateAgeHours approximates level age from the H1 series length,
// capped at 100 hours. With no candles a day-old default is used.
func estimateAgeHours(h1Candles []market.Candle) float64 {
	if len(h1Candles) == 0 {
		return 24
	}
	age := float64(len(h1Candles))
	if age > 100 {
		age = 100
	}
	return age
}

// predictSweepDirection returns P(sellside sweep first) from the density
// split, nudged 0.1 toward the HTF bias and clamped to [0,1].
func predictSweepDirection(buysideDensity, sellsideDensity float64, htfBias string) float64 {
	total := buysideDensity + sellsideDensity
	base := 0.5
	if total > 0 {
		base = sellsideDensity / total
	}

	switch htfBias {
	case "BULLISH":
		base += 0.1
	case "BEARISH":
		base -= 0.1
	}

	return math.Max(0, math.Min(1, base))
}

// findPrimaryTarget picks the level maximizing density weighted by
// proximity to current price. Undefined without levels or a price.
func findPrimaryTarget(levels []Level, currentPrice float64) *Level {
	if len(levels) == 0 || currentPrice == 0 {
		return nil
	}

	var best *Level
	bestScore := -1.0

	for i := range levels {
		level := &levels[i]
		distance := math.Abs(level.Price - currentPrice)
		if distance == 0 {
			continue
		}
		proximity := 1.0 / (1.0 + distance/currentPrice*1000)
		score := level.DensityScore * proximity
		if score > bestScore {
			bestScore = score
			best = level
		}
	}

	return best
}

// InferHTFBias derives a coarse higher-timeframe bias by comparing the
// average close of the first and second halves of the last 20 H1 candles,
// with a 0.1% dead-band.
func InferHTFBias(h1Candles []market.Candle) string {
	if len(h1Candles) < 10 {
		return "NEUTRAL"
	}
	recent := h1Candles
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}

	mid := len(recent) / 2
	firstAvg := 0.0
	for _, c := range recent[:mid] {
		firstAvg += c.Close
	}
	firstAvg /= float64(mid)

	secondAvg := 0.0
	for _, c := range recent[mid:] {
		secondAvg += c.Close
	}
	secondAvg /= float64(len(recent) - mid)

	if firstAvg == 0 {
		return "NEUTRAL"
	}
	diffPct := (secondAvg - firstAvg) / firstAvg * 100
	switch {
	case diffPct > 0.1:
		return "BULLISH"
	case diffPct < -0.1:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}
