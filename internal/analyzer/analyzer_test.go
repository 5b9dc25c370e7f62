package analyzer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-smc-engine/internal/heatmap"
	"forex-smc-engine/internal/liquidity"
	"forex-smc-engine/internal/market"
	"forex-smc-engine/internal/structure"
)

func testAnalyzer() *Analyzer {
	return New(zerolog.Nop())
}

// candlesFromCloses builds candles along a close path: each candle opens at
// the previous close with a 3-pip wick band around the body.
func candlesFromCloses(closes []float64, start time.Time, step time.Duration) []market.Candle {
	candles := make([]market.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		open := prev
		hi, lo := open, c
		if c > open {
			hi, lo = c, open
		}
		candles[i] = market.Candle{
			Time:  start.Add(time.Duration(i) * step),
			Open:  open,
			High:  hi + 0.0003,
			Low:   lo - 0.0003,
			Close: c,
		}
		prev = c
	}
	return candles
}

// longScenarioM5 builds an M5 series with a downtrend, a sellside sweep of
// 1.1000 at index 33, and a rally that breaks the last lower high.
func longScenarioM5() []market.Candle {
	closes := []float64{
		1.1060, 1.1066, 1.1072, 1.1076, 1.1080, // rise into first peak
		1.1074, 1.1068, 1.1062, 1.1056, 1.1050, 1.1044, 1.1040, // down to first trough
		1.1046, 1.1052, 1.1058, 1.1064, 1.1070, // lower high
		1.1064, 1.1058, 1.1050, 1.1042, 1.1034, 1.1026, 1.1020, // lower low
		1.1026, 1.1032, 1.1040, 1.1048, 1.1055, // lower high
		1.1048, 1.1040, 1.1030, 1.1018, // sell-off into the sweep
		1.1015,                                 // sweep candle
		1.1025, 1.1035, 1.1045, 1.1052, 1.1058, // reversal rally
		1.1065, // breaks the last lower high
	}
	candles := candlesFromCloses(closes, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), 5*time.Minute)

	// Widen the pivot extremes so neighbors cannot tie them
	for _, i := range []int{4, 16, 28} {
		candles[i].High += 0.0003
	}
	for _, i := range []int{11, 23} {
		candles[i].Low -= 0.0003
	}
	// The sweep candle wicks 15 pips below the 1.1000 level and closes back above
	candles[33].Low = 1.0985

	return candles
}

func longScenarioHTF() HTFResult {
	return HTFResult{
		Bias:      BiasBullish,
		Structure: structure.TrendHHHL,
		SwingHigh: 1.1100,
		SwingLow:  1.0900,
		LiquidityMap: liquidity.Map{
			Buyside: []liquidity.Level{
				{Price: 1.1150, Side: liquidity.Buyside, Source: liquidity.SourceSwing, Strength: 1},
			},
			Sellside: []liquidity.Level{
				{Price: 1.1000, Side: liquidity.Sellside, Source: liquidity.SourceEqualLows, Strength: 2},
			},
		},
		SessionLevels: map[string]liquidity.SessionLevel{},
		HeatMap: heatmap.HeatMap{
			BuysideLevels: []heatmap.Level{
				{Price: 1.1150, Side: liquidity.Buyside, DensityScore: 5.0},
			},
			SweepDirectionProbability: 0.7,
		},
	}
}

// TestAnalyzeLTFLongSetup tests the full pipeline on a sweep-and-reverse
// long scenario
func TestAnalyzeLTFLongSetup(t *testing.T) {
	a := testAnalyzer()
	analysis := a.AnalyzeLTF(longScenarioM5(), longScenarioHTF(), "EUR_USD")

	if analysis.Sweep == nil {
		t.Fatal("Should detect the sellside sweep")
	}
	if analysis.Sweep.Direction != liquidity.SellsideSweep {
		t.Errorf("Expected SELLSIDE_SWEEP, got %s", analysis.Sweep.Direction)
	}
	if analysis.Sweep.CandleIndex != 33 {
		t.Errorf("Expected sweep at index 33, got %d", analysis.Sweep.CandleIndex)
	}
	if !analysis.Sweep.ReversalConfirmed {
		t.Error("Bullish candle after the sweep should confirm the reversal")
	}

	if analysis.CHoCH == nil {
		t.Fatal("Rally through the last lower high should produce a CHoCH")
	}
	if analysis.CHoCH.Direction != structure.Bullish {
		t.Errorf("Expected bullish CHoCH, got %s", analysis.CHoCH.Direction)
	}

	if analysis.Direction != DirectionLong {
		t.Errorf("Sellside sweep + bullish shift + bullish HTF should go LONG, got %q", analysis.Direction)
	}
	if analysis.Grade == GradeNoTrade {
		t.Fatalf("Valid setup should grade tradeable, reasons: %v", analysis.GradeReasons)
	}
	if analysis.Confidence != gradeConfidence[analysis.Grade] {
		t.Errorf("Confidence %d should match grade %s", analysis.Confidence, analysis.Grade)
	}

	if analysis.Targets == nil {
		t.Fatal("Graded directional setup should carry targets")
	}
	if analysis.Targets.StopLoss >= analysis.CurrentPrice {
		t.Errorf("Long stop %v should sit below price %v", analysis.Targets.StopLoss, analysis.CurrentPrice)
	}
	if analysis.Targets.TakeProfit <= analysis.CurrentPrice {
		t.Errorf("Long target %v should sit above price %v", analysis.Targets.TakeProfit, analysis.CurrentPrice)
	}
	// Heat map's densest buyside level is the target
	if analysis.Targets.TakeProfit < 1.1149 || analysis.Targets.TakeProfit > 1.1151 {
		t.Errorf("Expected take profit at the 1.1150 heat level, got %v", analysis.Targets.TakeProfit)
	}
	// Stop capped at the 30-pip maximum from current price
	slPips := (analysis.CurrentPrice - analysis.Targets.StopLoss) / 0.0001
	if slPips > 30.5 {
		t.Errorf("Stop distance %v pips should respect the 30-pip cap", slPips)
	}
	if analysis.Targets.RiskReward <= 0 {
		t.Errorf("Risk reward should be positive, got %v", analysis.Targets.RiskReward)
	}
}

// TestAnalyzeLTFInsufficientData tests the M5 minimum guard
func TestAnalyzeLTFInsufficientData(t *testing.T) {
	a := testAnalyzer()
	candles := longScenarioM5()[:20]

	analysis := a.AnalyzeLTF(candles, longScenarioHTF(), "EUR_USD")
	if analysis.Grade != GradeNoTrade {
		t.Errorf("Short M5 series should be NO_TRADE, got %s", analysis.Grade)
	}
	if analysis.Confidence != 30 {
		t.Errorf("NO_TRADE confidence should be 30, got %d", analysis.Confidence)
	}
	if len(analysis.GradeReasons) == 0 || analysis.GradeReasons[0] != "Insufficient M5 data" {
		t.Errorf("Expected insufficient data reason, got %v", analysis.GradeReasons)
	}
	if analysis.ScanID == "" {
		t.Error("Every analysis should carry a scan id")
	}
}

// TestAnalyzeLTFNoSweepNoTrade tests the sweep hard gate
func TestAnalyzeLTFNoSweepNoTrade(t *testing.T) {
	a := testAnalyzer()

	// Same structure but no liquidity level near the lows to sweep
	htf := longScenarioHTF()
	htf.LiquidityMap.Sellside = nil

	analysis := a.AnalyzeLTF(longScenarioM5(), htf, "EUR_USD")
	if analysis.Sweep != nil {
		t.Fatal("No sellside levels should mean no sweep")
	}
	if analysis.Grade != GradeNoTrade {
		t.Errorf("No sweep should be NO_TRADE, got %s", analysis.Grade)
	}
	if analysis.Direction != DirectionNone {
		t.Errorf("No sweep should leave direction empty, got %q", analysis.Direction)
	}
	if analysis.Targets != nil {
		t.Error("NO_TRADE should not carry targets")
	}
}

// TestDetermineDirectionHTFVeto tests the opposing-bias rejection
func TestDetermineDirectionHTFVeto(t *testing.T) {
	a := testAnalyzer()

	analysis := &Analysis{
		HTFBias: BiasBearish,
		Sweep:   &liquidity.Sweep{Direction: liquidity.SellsideSweep},
		CHoCH:   &structure.Shift{Kind: structure.ShiftCHoCH, Direction: structure.Bullish},
	}

	if dir := a.determineDirection(analysis); dir != DirectionNone {
		t.Errorf("Bearish HTF should veto a long, got %q", dir)
	}
	if len(analysis.GradeReasons) == 0 {
		t.Error("Veto should record a grade reason")
	}
}

// TestDetermineDirectionNeutralHTF tests that a neutral bias allows trades
func TestDetermineDirectionNeutralHTF(t *testing.T) {
	a := testAnalyzer()

	analysis := &Analysis{
		HTFBias: BiasNeutral,
		Sweep:   &liquidity.Sweep{Direction: liquidity.BuysideSweep},
		BOS:     &structure.Shift{Kind: structure.ShiftBOS, Direction: structure.Bearish},
	}

	if dir := a.determineDirection(analysis); dir != DirectionShort {
		t.Errorf("Buyside sweep + bearish BOS under neutral HTF should go SHORT, got %q", dir)
	}
}

// TestDetermineDirectionNoShift tests that a sweep alone is not enough
func TestDetermineDirectionNoShift(t *testing.T) {
	a := testAnalyzer()

	analysis := &Analysis{
		HTFBias: BiasBullish,
		Sweep:   &liquidity.Sweep{Direction: liquidity.SellsideSweep},
	}

	if dir := a.determineDirection(analysis); dir != DirectionNone {
		t.Errorf("Sweep without a confirming shift should stay flat, got %q", dir)
	}
}

// TestEntryZoneProximity tests the distance-based grade modifier
func TestEntryZoneProximity(t *testing.T) {
	zone := EntryZone{Low: 1.1000, High: 1.1004} // midpoint 1.1002
	pip := 0.0001

	if mod, _ := entryZoneProximity(1.1002, zone, pip); mod != 10 {
		t.Errorf("Inside the zone should score +10, got %d", mod)
	}
	if mod, _ := entryZoneProximity(1.1000, zone, pip); mod != 10 {
		t.Errorf("Zone edge should still score +10, got %d", mod)
	}
	// 4 pips from the midpoint, just outside the zone
	if mod, _ := entryZoneProximity(1.1006, zone, pip); mod != 5 {
		t.Errorf("Within 5 pips of the midpoint should score +5, got %d", mod)
	}
	// 8 pips out: moderate distance
	if mod, _ := entryZoneProximity(1.1010, zone, pip); mod != 0 {
		t.Errorf("Expected 0 at 8 pips, got %d", mod)
	}
	if mod, _ := entryZoneProximity(1.1020, zone, pip); mod != -15 {
		t.Errorf("Beyond 10 pips should score -15, got %d", mod)
	}
}

// flatSeriesWithDoubleTop builds 40 flat H1 candles with two highs one
// pip apart, far above the rest.
func flatSeriesWithDoubleTop() []market.Candle {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 40)
	for i := range candles {
		candles[i] = market.Candle{
			Time:  start.Add(time.Duration(i) * time.Hour),
			Open:  1.0960,
			High:  1.0965,
			Low:   1.0955,
			Close: 1.0962,
		}
	}
	candles[12].High = 1.1000
	candles[28].High = 1.1001
	return candles
}

func equalHighsNear(m liquidity.Map, price, within float64) *liquidity.Level {
	for i := range m.Buyside {
		l := m.Buyside[i]
		if l.Source == liquidity.SourceEqualHighs && l.Price > price-within && l.Price < price+within {
			return &l
		}
	}
	return nil
}

// TestAnalyzeHTFClustersNearEqualHighs tests that highs within the pip
// tolerance form one equal-highs level
func TestAnalyzeHTFClustersNearEqualHighs(t *testing.T) {
	candles := flatSeriesWithDoubleTop()

	result := testAnalyzer().AnalyzeHTF(nil, candles, "EUR_USD")
	level := equalHighsNear(result.LiquidityMap, 1.10005, 0.0002)
	if level == nil {
		t.Fatalf("Highs one pip apart should cluster into equal highs, buyside: %+v", result.LiquidityMap.Buyside)
	}
	if level.Strength < 2 {
		t.Errorf("Cluster strength should count both touches, got %d", level.Strength)
	}

	// A tighter tolerance splits the pair and drops the cluster
	tight := NewWithConfig(Config{EqualLevelTolerancePips: 0.5}, zerolog.Nop())
	result = tight.AnalyzeHTF(nil, candles, "EUR_USD")
	if level := equalHighsNear(result.LiquidityMap, 1.10005, 0.0002); level != nil {
		t.Errorf("Half-pip tolerance should not cluster highs one pip apart, got %+v", level)
	}
}

// TestAnalyzeLTFMinCandlesConfigurable tests the configurable scan minimum
func TestAnalyzeLTFMinCandlesConfigurable(t *testing.T) {
	candles := longScenarioM5() // 40 bars

	strict := NewWithConfig(Config{MinM5Candles: 45}, zerolog.Nop())
	analysis := strict.AnalyzeLTF(candles, longScenarioHTF(), "EUR_USD")
	if len(analysis.GradeReasons) == 0 || analysis.GradeReasons[0] != "Insufficient M5 data" {
		t.Errorf("Raised minimum should reject 40 bars, got %v", analysis.GradeReasons)
	}

	analysis = testAnalyzer().AnalyzeLTF(candles, longScenarioHTF(), "EUR_USD")
	for _, r := range analysis.GradeReasons {
		if r == "Insufficient M5 data" {
			t.Error("Default minimum should accept 40 bars")
		}
	}
}

// TestAnalyzeHTFBullishStructure tests H4 bias extraction
func TestAnalyzeHTFBullishStructure(t *testing.T) {
	a := testAnalyzer()

	// Rising triangular wave: higher highs and higher lows
	closes := make([]float64, 40)
	for i := range closes {
		phase := i % 14
		var wave float64
		if phase <= 7 {
			wave = float64(phase) / 7
		} else {
			wave = float64(14-phase) / 7
		}
		closes[i] = 1.1000 + float64(i)*0.0002 + wave*0.0030
	}
	h4 := candlesFromCloses(closes, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 4*time.Hour)
	// Widen the wave extremes so the opening-tie neighbor cannot match them
	for _, i := range []int{7, 21, 35} {
		h4[i].High += 0.0003
	}
	for _, i := range []int{14, 28} {
		h4[i].Low -= 0.0003
	}

	result := a.AnalyzeHTF(h4, nil, "EUR_USD")
	if result.Bias != BiasBullish {
		t.Errorf("Rising wave should give BULLISH bias, got %s", result.Bias)
	}
	if result.Structure != structure.TrendHHHL {
		t.Errorf("Expected HH_HL structure, got %s", result.Structure)
	}
	if result.SwingHigh <= result.SwingLow || result.SwingLow == 0 {
		t.Errorf("Swing extremes wrong: high %v low %v", result.SwingHigh, result.SwingLow)
	}
}

// TestAnalyzeHTFInsufficientData tests the neutral fallback
func TestAnalyzeHTFInsufficientData(t *testing.T) {
	a := testAnalyzer()

	result := a.AnalyzeHTF(nil, nil, "EUR_USD")
	if result.Bias != BiasNeutral {
		t.Errorf("No candles should give NEUTRAL bias, got %s", result.Bias)
	}
	if result.Structure != structure.TrendRanging {
		t.Errorf("No candles should give RANGING structure, got %s", result.Structure)
	}
}

// TestGetProfile tests per-instrument risk overrides
func TestGetProfile(t *testing.T) {
	eur := GetProfile("EUR_USD")
	if eur.MaxSLPips != 30 || eur.MinSLPips != 12 {
		t.Errorf("EUR_USD defaults wrong: max %v min %v", eur.MaxSLPips, eur.MinSLPips)
	}
	if eur.TargetRR != 2.0 {
		t.Errorf("Default target RR should be 2.0, got %v", eur.TargetRR)
	}
	if eur.SweepScope != liquidity.ScopeLondonNY {
		t.Errorf("Default sweep scope should be london_ny, got %s", eur.SweepScope)
	}

	gold := GetProfile("XAU_USD")
	if gold.MaxSLPips <= eur.MaxSLPips {
		t.Error("Gold should allow a wider stop than majors")
	}

	btc := GetProfile("BTC_USD")
	if btc.SweepScope != liquidity.ScopeAny {
		t.Errorf("Crypto should sweep any session, got %s", btc.SweepScope)
	}
}
