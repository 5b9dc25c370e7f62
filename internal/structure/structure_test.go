package structure

import (
	"testing"
	"time"

	"forex-smc-engine/internal/market"
)

func candlesFromHighs(highs []float64) []market.Candle {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(highs))
	for i, h := range highs {
		candles[i] = market.Candle{
			Time:  base.Add(time.Duration(i) * time.Hour),
			Open:  h - 0.0030,
			High:  h,
			Low:   h - 0.0050,
			Close: h - 0.0020,
		}
	}
	return candles
}

// TestDetectSwingHigh tests pivot high detection
func TestDetectSwingHigh(t *testing.T) {
	// Clear peak at index 4
	highs := []float64{1.1000, 1.1010, 1.1020, 1.1030, 1.1080, 1.1040, 1.1030, 1.1020, 1.1010, 1.1000, 1.0990}
	candles := candlesFromHighs(highs)

	swings := DetectSwingPoints(candles, 3, 2)
	swingHighs := Highs(swings)

	if len(swingHighs) != 1 {
		t.Fatalf("Expected exactly one swing high, got %d", len(swingHighs))
	}
	if swingHighs[0].Index != 4 {
		t.Errorf("Expected swing high at index 4, got %d", swingHighs[0].Index)
	}
	if swingHighs[0].Price != 1.1080 {
		t.Errorf("Expected swing high price 1.1080, got %v", swingHighs[0].Price)
	}
}

// TestDetectSwingLow tests pivot low detection
func TestDetectSwingLow(t *testing.T) {
	// Lows mirror highs, trough at index 4
	highs := []float64{1.1080, 1.1070, 1.1060, 1.1050, 1.1000, 1.1040, 1.1050, 1.1060, 1.1070, 1.1080, 1.1090}
	candles := candlesFromHighs(highs)

	swings := DetectSwingPoints(candles, 3, 2)
	swingLows := Lows(swings)

	if len(swingLows) != 1 {
		t.Fatalf("Expected exactly one swing low, got %d", len(swingLows))
	}
	if swingLows[0].Index != 4 {
		t.Errorf("Expected swing low at index 4, got %d", swingLows[0].Index)
	}
}

// TestSwingPointsRejectPlateau tests that equal neighboring highs do not
// qualify as pivots
func TestSwingPointsRejectPlateau(t *testing.T) {
	highs := []float64{1.1000, 1.1010, 1.1020, 1.1030, 1.1080, 1.1080, 1.1030, 1.1020, 1.1010, 1.1000, 1.0990}
	candles := candlesFromHighs(highs)

	swings := DetectSwingPoints(candles, 3, 2)
	if len(Highs(swings)) != 0 {
		t.Error("Plateau highs should not produce a swing high")
	}
}

// TestSwingPointsShortSeries tests the minimum length guard
func TestSwingPointsShortSeries(t *testing.T) {
	candles := candlesFromHighs([]float64{1.1000, 1.1010, 1.1020})
	if swings := DetectSwingPoints(candles, 3, 2); swings != nil {
		t.Errorf("Short series should return nil, got %d swings", len(swings))
	}
}

// TestClassifyStructure tests trend classification from swing sequences
func TestClassifyStructure(t *testing.T) {
	uptrend := []SwingPoint{
		{Index: 2, Price: 1.1020, Kind: SwingHigh},
		{Index: 4, Price: 1.1000, Kind: SwingLow},
		{Index: 6, Price: 1.1050, Kind: SwingHigh},
		{Index: 8, Price: 1.1030, Kind: SwingLow},
	}
	if trend := ClassifyStructure(uptrend); trend != TrendHHHL {
		t.Errorf("Higher highs + higher lows should classify HH_HL, got %s", trend)
	}

	downtrend := []SwingPoint{
		{Index: 2, Price: 1.1050, Kind: SwingHigh},
		{Index: 4, Price: 1.1030, Kind: SwingLow},
		{Index: 6, Price: 1.1040, Kind: SwingHigh},
		{Index: 8, Price: 1.1010, Kind: SwingLow},
	}
	if trend := ClassifyStructure(downtrend); trend != TrendLHLL {
		t.Errorf("Lower highs + lower lows should classify LH_LL, got %s", trend)
	}

	mixed := []SwingPoint{
		{Index: 2, Price: 1.1050, Kind: SwingHigh},
		{Index: 4, Price: 1.1000, Kind: SwingLow},
		{Index: 6, Price: 1.1060, Kind: SwingHigh},
		{Index: 8, Price: 1.0990, Kind: SwingLow},
	}
	if trend := ClassifyStructure(mixed); trend != TrendRanging {
		t.Errorf("Higher high with lower low should classify RANGING, got %s", trend)
	}

	if trend := ClassifyStructure(uptrend[:2]); trend != TrendRanging {
		t.Errorf("Fewer than two highs and lows should classify RANGING, got %s", trend)
	}
}

// TestDetectCHoCH tests bearish change of character in an uptrend
func TestDetectCHoCH(t *testing.T) {
	swings := []SwingPoint{
		{Index: 2, Price: 1.1020, Kind: SwingHigh},
		{Index: 4, Price: 1.1000, Kind: SwingLow},
		{Index: 6, Price: 1.1050, Kind: SwingHigh},
		{Index: 8, Price: 1.1030, Kind: SwingLow},
	}

	closes := []float64{1.1010, 1.1015, 1.1018, 1.1012, 1.1005, 1.1020, 1.1045, 1.1040, 1.1035, 1.1032, 1.1025, 1.1028}
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{Close: c}
	}

	choch := DetectCHoCH(candles, swings)
	if choch == nil {
		t.Fatal("Should detect CHoCH when close breaks the last higher low")
	}
	if choch.Direction != Bearish {
		t.Errorf("CHoCH in an uptrend should be bearish, got %s", choch.Direction)
	}
	if choch.BreakLevel != 1.1030 {
		t.Errorf("Expected break level 1.1030, got %v", choch.BreakLevel)
	}
	if choch.ConfirmationCandle != 10 {
		t.Errorf("Expected confirmation at index 10, got %d", choch.ConfirmationCandle)
	}
	if choch.Kind != ShiftCHoCH {
		t.Errorf("Expected kind CHOCH, got %s", choch.Kind)
	}
}

// TestDetectCHoCHNone tests that an intact uptrend yields no CHoCH
func TestDetectCHoCHNone(t *testing.T) {
	swings := []SwingPoint{
		{Index: 2, Price: 1.1020, Kind: SwingHigh},
		{Index: 4, Price: 1.1000, Kind: SwingLow},
		{Index: 6, Price: 1.1050, Kind: SwingHigh},
		{Index: 8, Price: 1.1030, Kind: SwingLow},
	}

	candles := make([]market.Candle, 12)
	for i := range candles {
		candles[i] = market.Candle{Close: 1.1040}
	}

	if choch := DetectCHoCH(candles, swings); choch != nil {
		t.Error("Should not detect CHoCH while price holds above the higher low")
	}
}

// TestDetectBOS tests bullish break of structure in an uptrend
func TestDetectBOS(t *testing.T) {
	swings := []SwingPoint{
		{Index: 2, Price: 1.1020, Kind: SwingHigh},
		{Index: 4, Price: 1.1000, Kind: SwingLow},
		{Index: 6, Price: 1.1050, Kind: SwingHigh},
		{Index: 8, Price: 1.1030, Kind: SwingLow},
	}

	closes := []float64{1.1010, 1.1015, 1.1018, 1.1012, 1.1005, 1.1020, 1.1045, 1.1040, 1.1035, 1.1040, 1.1060, 1.1055}
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{Close: c}
	}

	bos := DetectBOS(candles, swings)
	if bos == nil {
		t.Fatal("Should detect BOS when close breaks the last higher high")
	}
	if bos.Direction != Bullish {
		t.Errorf("BOS in an uptrend should be bullish, got %s", bos.Direction)
	}
	if bos.BreakLevel != 1.1050 {
		t.Errorf("Expected break level 1.1050, got %v", bos.BreakLevel)
	}
	if bos.ConfirmationCandle != 10 {
		t.Errorf("Expected confirmation at index 10, got %d", bos.ConfirmationCandle)
	}
}

// TestDetectBOSDowntrend tests bearish break of structure in a downtrend
func TestDetectBOSDowntrend(t *testing.T) {
	swings := []SwingPoint{
		{Index: 2, Price: 1.1050, Kind: SwingHigh},
		{Index: 4, Price: 1.1030, Kind: SwingLow},
		{Index: 6, Price: 1.1040, Kind: SwingHigh},
		{Index: 8, Price: 1.1010, Kind: SwingLow},
	}

	closes := []float64{1.1045, 1.1040, 1.1048, 1.1035, 1.1032, 1.1036, 1.1038, 1.1020, 1.1015, 1.1012, 1.1005, 1.1008}
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{Close: c}
	}

	bos := DetectBOS(candles, swings)
	if bos == nil {
		t.Fatal("Should detect BOS when close breaks the last lower low")
	}
	if bos.Direction != Bearish {
		t.Errorf("BOS in a downtrend should be bearish, got %s", bos.Direction)
	}
	if bos.ConfirmationCandle != 10 {
		t.Errorf("Expected confirmation at index 10, got %d", bos.ConfirmationCandle)
	}
}

// TestRangingNoShifts tests that a ranging structure produces no shifts
func TestRangingNoShifts(t *testing.T) {
	candles := make([]market.Candle, 10)
	for i := range candles {
		candles[i] = market.Candle{Close: 1.1000}
	}

	if shift := DetectCHoCH(candles, nil); shift != nil {
		t.Error("No swings should mean no CHoCH")
	}
	if shift := DetectBOS(candles, nil); shift != nil {
		t.Error("No swings should mean no BOS")
	}
}
