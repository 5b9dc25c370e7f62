package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-smc-engine/internal/analyzer"
	"forex-smc-engine/internal/liquidity"
	"forex-smc-engine/internal/market"
)

// institutionalCycleSeries builds 60 M5 candles walking a full cycle:
// a tight two-shelf accumulation range, a sellside sweep wick through
// the range floor, a five-bar bullish displacement leg and a pullback
// into the gap it left behind.
func institutionalCycleSeries() []market.Candle {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	at := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }

	candles := make([]market.Candle, 60)

	// Lower shelf of the range
	for i := 0; i < 25; i++ {
		candles[i] = market.Candle{Time: at(i), Open: 1.1004, High: 1.1007, Low: 1.1002, Close: 1.1005}
	}
	// Upper shelf, gapped so the handover bar stays inside the range
	for i := 25; i < 50; i++ {
		candles[i] = market.Candle{Time: at(i), Open: 1.1009, High: 1.1012, Low: 1.1007, Close: 1.1010}
	}
	// Sub-pip pokes forming the range's swing points; each pierce is
	// shallower than the one-pip sweep gate
	candles[10].Low = 1.10011
	candles[14].High = 1.10079
	candles[35].Low = 1.10061
	candles[40].High = 1.10129

	// Sweep wick through the range floor, close back inside
	candles[50] = market.Candle{Time: at(50), Open: 1.1010, High: 1.1011, Low: 1.0990, Close: 1.1009}
	// Reversal bar; shares the sweep low so no swing prints there
	candles[51] = market.Candle{Time: at(51), Open: 1.1009, High: 1.1015, Low: 1.0990, Close: 1.1014}

	// Bullish displacement leg with large bodies and tight wicks
	for i := 0; i < 5; i++ {
		o := 1.1014 + float64(i)*0.0010
		candles[52+i] = market.Candle{
			Time: at(52 + i), Open: o, High: o + 0.0011, Low: o - 0.0001, Close: o + 0.0010,
		}
	}

	// Pullback toward the gap zone; the first high revisits the leg top
	candles[57] = market.Candle{Time: at(57), Open: 1.1064, High: 1.1065, Low: 1.1049, Close: 1.1050}
	candles[58] = market.Candle{Time: at(58), Open: 1.1050, High: 1.1050, Low: 1.1039, Close: 1.1040}
	candles[59] = market.Candle{Time: at(59), Open: 1.1040, High: 1.1041, Low: 1.1038, Close: 1.1041}

	return candles
}

// TestFullCycleFromCandles walks the tracker through an entire cycle
// driven only by synthetic candles and the analyzer, no hand-built
// analysis structs: range, sweep, displacement, retracement.
func TestFullCycleFromCandles(t *testing.T) {
	candles := institutionalCycleSeries()
	smc := analyzer.New(zerolog.Nop())
	tracker, store := newTestTracker()
	ctx := context.Background()
	const instrument = "EUR_USD"

	scan := func(n int) *analyzer.Analysis {
		window := candles[:n]
		htf := smc.AnalyzeHTF(nil, window, instrument)
		return smc.AnalyzeLTF(window, htf, instrument)
	}

	// Scan 1: still inside the range, nothing has happened yet
	a1 := scan(50)
	if a1.Sweep != nil {
		t.Fatalf("No sweep expected inside the range, got %+v", a1.Sweep)
	}
	s1, err := tracker.Update(ctx, instrument, a1, TechnicalFromAnalysis(a1))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if s1.CurrentPhase != PhaseAccumulation {
		t.Fatalf("Range scan should stay in ACCUMULATION, got %s", s1.CurrentPhase)
	}

	// Scan 2: the wick below the range floor registers as a sellside sweep
	a2 := scan(52)
	if a2.Sweep == nil {
		t.Fatal("Sweep wick should be detected")
	}
	if a2.Sweep.Direction != liquidity.SellsideSweep {
		t.Fatalf("Expected sellside sweep, got %s", a2.Sweep.Direction)
	}
	s2, err := tracker.Update(ctx, instrument, a2, TechnicalFromAnalysis(a2))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if s2.CurrentPhase != PhaseManipulation {
		t.Fatalf("Sweep should advance to MANIPULATION, got %s", s2.CurrentPhase)
	}
	if s2.PhaseConfidence != 70.0 {
		t.Errorf("Expected confidence 70 after sweep, got %v", s2.PhaseConfidence)
	}
	if s2.SweepDirection != string(liquidity.SellsideSweep) {
		t.Errorf("Sweep direction should be recorded, got %q", s2.SweepDirection)
	}

	// Scan 3: displacement leg breaks the range high
	a3 := scan(57)
	if a3.Displacement == nil {
		t.Fatal("Displacement leg should be detected")
	}
	if a3.BOS == nil {
		t.Fatal("Leg through the range high should print a BOS")
	}
	s3, err := tracker.Update(ctx, instrument, a3, TechnicalFromAnalysis(a3))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if s3.CurrentPhase != PhaseDisplacement {
		t.Fatalf("Shift plus displacement should advance to DISPLACEMENT, got %s", s3.CurrentPhase)
	}
	if s3.PhaseConfidence != 80.0 {
		t.Errorf("Expected confidence 80, got %v", s3.PhaseConfidence)
	}
	if s3.DisplacementMagnitude == nil {
		t.Error("Displacement magnitude should be recorded")
	}

	// Scan 4: pullback leaves an unfilled gap as the entry zone
	a4 := scan(60)
	if a4.Direction != analyzer.DirectionLong {
		t.Fatalf("Sellside sweep plus bullish break should read LONG, got %s", a4.Direction)
	}
	if a4.Grade == analyzer.GradeNoTrade {
		t.Fatalf("Full sequence should grade as tradeable, reasons: %v", a4.GradeReasons)
	}
	if a4.EntryZone == nil {
		t.Fatal("Unfilled gap should become the entry zone")
	}
	s4, err := tracker.Update(ctx, instrument, a4, TechnicalFromAnalysis(a4))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if s4.CurrentPhase != PhaseRetracement {
		t.Fatalf("Entry zone during displacement should advance to RETRACEMENT, got %s", s4.CurrentPhase)
	}
	if s4.PhaseConfidence != 85.0 {
		t.Errorf("Expected confidence 85, got %v", s4.PhaseConfidence)
	}
	if s4.SweepDirection != string(liquidity.SellsideSweep) {
		t.Errorf("Sweep direction should persist across phases, got %q", s4.SweepDirection)
	}
	if s4.MaxPhaseReached != PhaseRetracement {
		t.Errorf("Max phase should be RETRACEMENT, got %s", s4.MaxPhaseReached)
	}
	if mod := tracker.ConfidenceModifier(instrument); mod != 15 {
		t.Errorf("Retracement phase should modify confidence by +15, got %d", mod)
	}

	// The audit trail shows each advance in order
	transitions := store.Transitions()
	if len(transitions) != 3 {
		t.Fatalf("Expected three transitions, got %d", len(transitions))
	}
	wantPhases := [][2]Phase{
		{PhaseAccumulation, PhaseManipulation},
		{PhaseManipulation, PhaseDisplacement},
		{PhaseDisplacement, PhaseRetracement},
	}
	for i, want := range wantPhases {
		if transitions[i].OldPhase != want[0] || transitions[i].NewPhase != want[1] {
			t.Errorf("Transition %d: expected %s to %s, got %s to %s",
				i, want[0], want[1], transitions[i].OldPhase, transitions[i].NewPhase)
		}
	}
}
