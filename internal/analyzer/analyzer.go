// Package analyzer orchestrates the full Smart Money Concepts pipeline:
// higher-timeframe bias, liquidity mapping, lower-timeframe signal
// detection, setup grading and SMC-based stop/target placement.
package analyzer

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forex-smc-engine/internal/displacement"
	"forex-smc-engine/internal/heatmap"
	"forex-smc-engine/internal/liquidity"
	"forex-smc-engine/internal/market"
	"forex-smc-engine/internal/structure"
	"forex-smc-engine/internal/zones"
)

// Bias is the higher-timeframe directional bias.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// TradeDirection is the resolved trade side.
type TradeDirection string

const (
	DirectionLong  TradeDirection = "LONG"
	DirectionShort TradeDirection = "SHORT"
	DirectionNone  TradeDirection = ""
)

// Grade classifies setup quality.
type Grade string

const (
	GradeAPlus   Grade = "A+"
	GradeA       Grade = "A"
	GradeB       Grade = "B"
	GradeNoTrade Grade = "NO_TRADE"
)

// gradeConfidence maps a grade to its raw confidence score.
var gradeConfidence = map[Grade]int{
	GradeAPlus:   92,
	GradeA:       82,
	GradeB:       68,
	GradeNoTrade: 30,
}

// HTFResult carries the higher-timeframe context into LTF analysis.
type HTFResult struct {
	Bias          Bias                               `json:"htf_bias"`
	Structure     structure.Trend                    `json:"htf_structure"`
	SwingHigh     float64                            `json:"htf_swing_high"`
	SwingLow      float64                            `json:"htf_swing_low"`
	LiquidityMap  liquidity.Map                      `json:"liquidity_map"`
	SessionLevels map[string]liquidity.SessionLevel  `json:"session_levels"`
	HeatMap       heatmap.HeatMap                    `json:"heat_map"`
	H4Swings      []structure.SwingPoint             `json:"-"`
	H1Swings      []structure.SwingPoint             `json:"-"`
}

// EntryZone is the price band of the best entry FVG or order block.
type EntryZone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// TradeTargets holds SMC-derived stop and target levels. Present only for
// graded setups with a direction.
type TradeTargets struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	RiskReward float64 `json:"risk_reward"`
}

// Analysis is a complete SMC analysis result for one instrument scan.
type Analysis struct {
	ScanID     string    `json:"scan_id"`
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"timestamp"`

	HTFBias      Bias            `json:"htf_bias"`
	HTFStructure structure.Trend `json:"htf_structure"`
	HTFSwingHigh float64         `json:"htf_swing_high"`
	HTFSwingLow  float64         `json:"htf_swing_low"`

	LiquidityMap  liquidity.Map                     `json:"liquidity_map"`
	SessionLevels map[string]liquidity.SessionLevel `json:"session_levels"`
	Sweep         *liquidity.Sweep                  `json:"sweep,omitempty"`

	LTFStructure structure.Trend            `json:"ltf_structure"`
	CHoCH        *structure.Shift           `json:"ltf_choch,omitempty"`
	BOS          *structure.Shift           `json:"ltf_bos,omitempty"`
	Displacement *displacement.Displacement `json:"ltf_displacement,omitempty"`

	FVGs            []zones.FairValueGap   `json:"fvgs"`
	OrderBlocks     []zones.OrderBlock     `json:"order_blocks"`
	PremiumDiscount *zones.PremiumDiscount `json:"premium_discount,omitempty"`

	Grade        Grade    `json:"setup_grade"`
	GradeReasons []string `json:"grade_reasons"`
	Confidence   int      `json:"confidence"`

	Direction    TradeDirection `json:"direction,omitempty"`
	CurrentPrice float64        `json:"current_price"`

	EntryZone *EntryZone    `json:"entry_zone,omitempty"`
	Targets   *TradeTargets `json:"targets,omitempty"`

	HeatMap                   heatmap.HeatMap `json:"heat_map"`
	SweepDirectionProbability float64         `json:"sweep_direction_probability"`
}

// Analysis defaults, overridable through Config.
const (
	DefaultMinM5Candles            = 30
	DefaultEqualLevelTolerancePips = 3.0
)

// Config holds the analyzer tunables. Zero values use the defaults.
type Config struct {
	MinM5Candles            int     `json:"min_m5_candles"`
	EqualLevelTolerancePips float64 `json:"equal_level_tolerance_pips"`
}

// Analyzer runs the SMC pipeline.
type Analyzer struct {
	minM5Candles   int
	equalTolerance float64
	mapper         *heatmap.Mapper
	logger         zerolog.Logger
}

// New creates an Analyzer with default settings.
func New(logger zerolog.Logger) *Analyzer {
	return NewWithConfig(Config{}, logger)
}

// NewWithConfig creates an Analyzer with explicit tunables.
func NewWithConfig(cfg Config, logger zerolog.Logger) *Analyzer {
	if cfg.MinM5Candles <= 0 {
		cfg.MinM5Candles = DefaultMinM5Candles
	}
	if cfg.EqualLevelTolerancePips <= 0 {
		cfg.EqualLevelTolerancePips = DefaultEqualLevelTolerancePips
	}
	return &Analyzer{
		minM5Candles:   cfg.MinM5Candles,
		equalTolerance: cfg.EqualLevelTolerancePips,
		mapper:         heatmap.NewMapper(),
		logger:         logger.With().Str("component", "analyzer").Logger(),
	}
}

// AnalyzeHTF determines the higher-timeframe bias and builds the liquidity
// map. H4 sets the broad structure; H1 supplies liquidity, session levels
// and the heat map, and stands in for structure when H4 is too short.
func (a *Analyzer) AnalyzeHTF(h4Candles, h1Candles []market.Candle, instrument string) HTFResult {
	result := HTFResult{
		Bias:          BiasNeutral,
		Structure:     structure.TrendRanging,
		SessionLevels: map[string]liquidity.SessionLevel{},
	}

	if len(h4Candles) >= 20 {
		h4Swings := structure.DetectSwingPoints(h4Candles, 5, 2)
		result.H4Swings = h4Swings
		result.Structure = structure.ClassifyStructure(h4Swings)
		result.Bias = biasFromTrend(result.Structure)

		for _, sp := range structure.Highs(h4Swings) {
			if sp.Price > result.SwingHigh {
				result.SwingHigh = sp.Price
			}
		}
		for _, sp := range structure.Lows(h4Swings) {
			if result.SwingLow == 0 || sp.Price < result.SwingLow {
				result.SwingLow = sp.Price
			}
		}
	}

	if len(h1Candles) >= 20 {
		h1Swings := structure.DetectSwingPoints(h1Candles, 5, 2)
		result.H1Swings = h1Swings
		result.LiquidityMap = liquidity.MapLiquidity(h1Candles, h1Swings, instrument, a.equalTolerance)
		result.SessionLevels = liquidity.DetectSessionLevels(h1Candles)

		// H1 fallback when H4 gave no read
		if result.Bias == BiasNeutral && len(h1Swings) >= 4 {
			h1Trend := structure.ClassifyStructure(h1Swings)
			if h1Trend != structure.TrendRanging {
				result.Structure = h1Trend
				result.Bias = biasFromTrend(h1Trend)
			}
			if result.SwingHigh == 0 {
				for _, sp := range structure.Highs(h1Swings) {
					if sp.Price > result.SwingHigh {
						result.SwingHigh = sp.Price
					}
				}
			}
			if result.SwingLow == 0 {
				for _, sp := range structure.Lows(h1Swings) {
					if result.SwingLow == 0 || sp.Price < result.SwingLow {
						result.SwingLow = sp.Price
					}
				}
			}
		}
	}

	result.HeatMap = a.mapper.Build(h1Candles, result.LiquidityMap, result.SessionLevels, 0)

	a.logger.Info().
		Str("instrument", instrument).
		Str("bias", string(result.Bias)).
		Str("structure", string(result.Structure)).
		Int("buyside_levels", len(result.LiquidityMap.Buyside)).
		Int("sellside_levels", len(result.LiquidityMap.Sellside)).
		Str("heat_map_bias", string(result.HeatMap.TemporalBias)).
		Msg("HTF analysis complete")

	return result
}

// AnalyzeLTF runs the lower-timeframe signal pipeline against the HTF
// context: sweep, structure shift, displacement, zones, direction, grade
// and targets. Fewer M5 candles than the configured minimum is an
// automatic NO_TRADE.
func (a *Analyzer) AnalyzeLTF(m5Candles []market.Candle, htf HTFResult, instrument string) *Analysis {
	profile := GetProfile(instrument)

	analysis := &Analysis{
		ScanID:                    uuid.NewString(),
		Instrument:                instrument,
		Timestamp:                 time.Now().UTC(),
		HTFBias:                   htf.Bias,
		HTFStructure:              htf.Structure,
		HTFSwingHigh:              htf.SwingHigh,
		HTFSwingLow:               htf.SwingLow,
		LiquidityMap:              htf.LiquidityMap,
		SessionLevels:             htf.SessionLevels,
		LTFStructure:              structure.TrendRanging,
		Grade:                     GradeNoTrade,
		HeatMap:                   htf.HeatMap,
		SweepDirectionProbability: htf.HeatMap.SweepDirectionProbability,
	}

	if len(m5Candles) < a.minM5Candles {
		analysis.GradeReasons = []string{"Insufficient M5 data"}
		analysis.Confidence = gradeConfidence[GradeNoTrade]
		return analysis
	}

	analysis.Sweep = liquidity.DetectSweep(
		m5Candles, htf.LiquidityMap, htf.SessionLevels, profile.SweepScope, instrument, 0,
	)

	ltfSwings := structure.DetectSwingPoints(m5Candles, 3, 2)
	analysis.LTFStructure = structure.ClassifyStructure(ltfSwings)
	analysis.CHoCH = structure.DetectCHoCH(m5Candles, ltfSwings)
	analysis.BOS = structure.DetectBOS(m5Candles, ltfSwings)

	if disps := displacement.Detect(m5Candles, displacement.DefaultMinRatio, displacement.DefaultMaxWickPct, displacement.DefaultLookback); len(disps) > 0 {
		analysis.Displacement = &disps[len(disps)-1]
	}

	analysis.FVGs = zones.DetectFVG(m5Candles, 0)
	analysis.OrderBlocks = zones.DetectOrderBlocks(m5Candles, 0)

	analysis.CurrentPrice = m5Candles[len(m5Candles)-1].Close

	if analysis.HTFSwingHigh > 0 && analysis.HTFSwingLow > 0 {
		pd := zones.CalculatePremiumDiscount(analysis.HTFSwingHigh, analysis.HTFSwingLow, analysis.CurrentPrice)
		analysis.PremiumDiscount = &pd
	}

	analysis.Direction = a.determineDirection(analysis)
	analysis.Grade = a.gradeSetup(analysis, profile)
	analysis.Confidence = gradeConfidence[analysis.Grade]

	if analysis.Direction != DirectionNone && analysis.Grade != GradeNoTrade {
		a.calculateTargets(analysis, m5Candles, profile)
	}

	a.logger.Info().
		Str("instrument", instrument).
		Str("scan_id", analysis.ScanID).
		Bool("sweep", analysis.Sweep != nil).
		Bool("choch", analysis.CHoCH != nil).
		Bool("bos", analysis.BOS != nil).
		Bool("displacement", analysis.Displacement != nil).
		Int("fvgs", len(analysis.FVGs)).
		Int("order_blocks", len(analysis.OrderBlocks)).
		Str("grade", string(analysis.Grade)).
		Str("direction", string(analysis.Direction)).
		Msg("LTF analysis complete")

	return analysis
}

// determineDirection resolves the trade direction from sweep + confirming
// structure shift, vetoed by an opposing HTF bias.
//
// Sellside sweep + bullish CHoCH/BOS = LONG; buyside sweep + bearish
// CHoCH/BOS = SHORT. A neutral HTF allows the trade (graded lower); an
// opposing HTF bias rejects it.
func (a *Analyzer) determineDirection(analysis *Analysis) TradeDirection {
	sweep := analysis.Sweep
	if sweep == nil {
		return DirectionNone
	}

	var dir TradeDirection
	switch sweep.Direction {
	case liquidity.SellsideSweep:
		if shiftConfirms(analysis, structure.Bullish) {
			dir = DirectionLong
		}
	case liquidity.BuysideSweep:
		if shiftConfirms(analysis, structure.Bearish) {
			dir = DirectionShort
		}
	}

	if dir == DirectionNone {
		return DirectionNone
	}

	if analysis.HTFBias == BiasNeutral {
		return dir
	}

	if (analysis.HTFBias == BiasBullish && dir == DirectionShort) ||
		(analysis.HTFBias == BiasBearish && dir == DirectionLong) {
		analysis.GradeReasons = append(analysis.GradeReasons,
			"HTF "+string(analysis.HTFBias)+" opposes LTF "+string(dir))
		return DirectionNone
	}

	return dir
}

func shiftConfirms(analysis *Analysis, want structure.Direction) bool {
	if analysis.CHoCH != nil && analysis.CHoCH.Direction == want {
		return true
	}
	return analysis.BOS != nil && analysis.BOS.Direction == want
}

// gradeSetup scores the setup.
//
// Hard gates (NO_TRADE when missing): sweep, structure shift, direction.
// Quality factors add on top; A+ at 80, A at 60, B at 45.
func (a *Analyzer) gradeSetup(analysis *Analysis, profile Profile) Grade {
	reasons := analysis.GradeReasons
	score := 0

	if analysis.Sweep != nil {
		score += 25
		reasons = append(reasons, "Sweep detected")
		if analysis.Sweep.ReversalConfirmed {
			score += 5
			reasons = append(reasons, "Sweep reversal confirmed")
		}
	} else {
		analysis.GradeReasons = append(reasons, "NO SWEEP - cannot trade")
		return GradeNoTrade
	}

	if analysis.CHoCH != nil || analysis.BOS != nil {
		score += 20
		if analysis.CHoCH != nil {
			reasons = append(reasons, "CHoCH "+string(analysis.CHoCH.Direction))
		}
		if analysis.BOS != nil {
			reasons = append(reasons, "BOS "+string(analysis.BOS.Direction))
		}
	} else {
		analysis.GradeReasons = append(reasons, "NO CHoCH/BOS - cannot trade")
		return GradeNoTrade
	}

	if analysis.Direction == DirectionNone {
		analysis.GradeReasons = append(reasons, "No clear direction")
		return GradeNoTrade
	}

	if analysis.HTFBias != BiasNeutral {
		if (analysis.HTFBias == BiasBullish && analysis.Direction == DirectionLong) ||
			(analysis.HTFBias == BiasBearish && analysis.Direction == DirectionShort) {
			score += 15
			reasons = append(reasons, "HTF aligned ("+string(analysis.HTFBias)+")")
		}
	} else {
		reasons = append(reasons, "HTF neutral (weaker setup)")
	}

	if disp := analysis.Displacement; disp != nil {
		if directionMatches(analysis.Direction, disp.Direction) {
			score += 10
			reasons = append(reasons, "Displacement "+string(disp.Direction))
		}
	}

	if n := countRelevantFVGs(analysis); n > 0 {
		score += 10
		reasons = append(reasons, "Unfilled FVGs in direction")
	}

	if n := countFreshOBs(analysis); n > 0 {
		score += 10
		reasons = append(reasons, "Fresh order blocks in direction")
	}

	if pd := analysis.PremiumDiscount; pd != nil {
		switch {
		case analysis.Direction == DirectionLong && pd.Zone == zones.ZoneDiscount,
			analysis.Direction == DirectionShort && pd.Zone == zones.ZonePremium:
			score += 10
			reasons = append(reasons, "Price in "+string(pd.Zone)+" zone")
		case pd.Zone == zones.ZoneEquilibrium:
			score -= 5
			reasons = append(reasons, "Price in equilibrium (weaker)")
		}
	}

	if analysis.CurrentPrice > 0 {
		if zone := findEntryZone(analysis, analysis.Direction); zone != nil {
			modifier, reason := entryZoneProximity(analysis.CurrentPrice, *zone, market.PipValue(profile.Instrument))
			score += modifier
			reasons = append(reasons, reason)
		}
	}

	analysis.GradeReasons = reasons

	switch {
	case score >= 80:
		return GradeAPlus
	case score >= 60:
		return GradeA
	case score >= 45:
		return GradeB
	default:
		return GradeNoTrade
	}
}

func directionMatches(trade TradeDirection, dir structure.Direction) bool {
	return (trade == DirectionLong && dir == structure.Bullish) ||
		(trade == DirectionShort && dir == structure.Bearish)
}

func countRelevantFVGs(analysis *Analysis) int {
	n := 0
	for _, f := range analysis.FVGs {
		if !f.Filled && directionMatches(analysis.Direction, f.Direction) {
			n++
		}
	}
	return n
}

func countFreshOBs(analysis *Analysis) int {
	n := 0
	for _, ob := range analysis.OrderBlocks {
		if !ob.Mitigated && directionMatches(analysis.Direction, ob.Direction) {
			n++
		}
	}
	return n
}

// entryZoneProximity scores distance to the entry zone: inside +10, within
// 5 pips of the midpoint +5, beyond 10 pips -15, otherwise 0.
func entryZoneProximity(currentPrice float64, zone EntryZone, pipValue float64) (int, string) {
	if zone.Low <= currentPrice && currentPrice <= zone.High {
		return 10, "Price inside entry zone"
	}

	mid := (zone.Low + zone.High) / 2
	distPips := math.Abs(currentPrice-mid) / pipValue
	switch {
	case distPips <= 5:
		return 5, "Price near entry zone"
	case distPips > 10:
		return -15, "Price far from entry zone"
	default:
		return 0, "Price at moderate distance from entry zone"
	}
}

// calculateTargets places the stop behind the swept level with an
// ATR-based buffer and the target at the densest heat-map level, falling
// back to the nearest liquidity level and finally to the minimum R:R.
func (a *Analyzer) calculateTargets(analysis *Analysis, m5Candles []market.Candle, profile Profile) {
	if analysis.Sweep == nil || analysis.Direction == DirectionNone {
		return
	}

	pipValue := market.PipValue(profile.Instrument)
	atrValue := market.ATR(m5Candles, 14)
	atrPips := 0.0
	if atrValue > 0 {
		atrPips = atrValue / pipValue
	}

	bufferPips := profile.MinSLPips
	if atrPips > 0 {
		bufferPips = math.Max(profile.MinSLPips, atrPips*profile.SLATRMultiplier)
	}
	slBuffer := bufferPips * pipValue

	currentPrice := analysis.CurrentPrice
	sweepLevel := analysis.Sweep.Level.Price

	var sl, tp float64

	if analysis.Direction == DirectionLong {
		sl = sweepLevel - slBuffer
		if (currentPrice-sl)/pipValue > profile.MaxSLPips {
			sl = currentPrice - profile.MaxSLPips*pipValue
		}

		if best := strongestLevel(analysis.HeatMap.BuysideLevels); best != nil && best.Price > currentPrice {
			tp = best.Price
		}
		if tp == 0 && analysis.LiquidityMap.NearestBuyside != nil {
			tp = analysis.LiquidityMap.NearestBuyside.Price
		}
		if tp <= currentPrice {
			tp = currentPrice + (currentPrice-sl)*profile.TargetRR
		}
	} else {
		sl = sweepLevel + slBuffer
		if (sl-currentPrice)/pipValue > profile.MaxSLPips {
			sl = currentPrice + profile.MaxSLPips*pipValue
		}

		if best := strongestLevel(analysis.HeatMap.SellsideLevels); best != nil && best.Price < currentPrice {
			tp = best.Price
		}
		if tp == 0 && analysis.LiquidityMap.NearestSellside != nil {
			tp = analysis.LiquidityMap.NearestSellside.Price
		}
		if tp == 0 || tp >= currentPrice {
			tp = currentPrice - (sl-currentPrice)*profile.TargetRR
		}
	}

	analysis.EntryZone = findEntryZone(analysis, analysis.Direction)

	risk := math.Abs(currentPrice - sl)
	reward := math.Abs(tp - currentPrice)
	rr := 0.0
	if risk > 0 {
		rr = math.Round(reward/risk*100) / 100
	}

	analysis.Targets = &TradeTargets{
		StopLoss:   math.Round(sl*1e5) / 1e5,
		TakeProfit: math.Round(tp*1e5) / 1e5,
		RiskReward: rr,
	}
}

func strongestLevel(levels []heatmap.Level) *heatmap.Level {
	var best *heatmap.Level
	for i := range levels {
		if best == nil || levels[i].DensityScore > best.DensityScore {
			best = &levels[i]
		}
	}
	return best
}

// findEntryZone returns the first unfilled directional FVG, else the first
// fresh directional order block.
func findEntryZone(analysis *Analysis, direction TradeDirection) *EntryZone {
	for _, fvg := range analysis.FVGs {
		if fvg.Filled || !directionMatches(direction, fvg.Direction) {
			continue
		}
		low, high := fvg.Bounds()
		return &EntryZone{Low: low, High: high}
	}

	for _, ob := range analysis.OrderBlocks {
		if ob.Mitigated || !directionMatches(direction, ob.Direction) {
			continue
		}
		return &EntryZone{Low: ob.Low, High: ob.High}
	}

	return nil
}

func biasFromTrend(trend structure.Trend) Bias {
	switch trend {
	case structure.TrendHHHL:
		return BiasBullish
	case structure.TrendLHLL:
		return BiasBearish
	default:
		return BiasNeutral
	}
}
