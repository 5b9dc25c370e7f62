package calibrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

type memoryJournal struct {
	samples []Sample
	count   int
}

func (j *memoryJournal) TrainingSamples(_ context.Context) ([]Sample, error) {
	return j.samples, nil
}

func (j *memoryJournal) ClosedTradeCount(_ context.Context) (int, error) {
	return j.count, nil
}

type memoryParamsStore struct {
	saved *Params
}

func (s *memoryParamsStore) SaveParams(_ context.Context, p Params) error {
	s.saved = &p
	return nil
}

func (s *memoryParamsStore) LoadActiveParams(_ context.Context) (*Params, error) {
	return s.saved, nil
}

// trainingJournal builds a journal where high confidence mostly wins and
// low confidence mostly loses.
func trainingJournal() *memoryJournal {
	j := &memoryJournal{}
	for i := 0; i < 30; i++ {
		j.samples = append(j.samples, Sample{Confidence: 30, Won: i < 5})
		j.samples = append(j.samples, Sample{Confidence: 90, Won: i >= 5})
	}
	j.count = len(j.samples)
	return j
}

// TestCalibrateIdentityBeforeFit tests the identity passthrough
func TestCalibrateIdentityBeforeFit(t *testing.T) {
	cal := New(&memoryJournal{}, &memoryParamsStore{}, zerolog.Nop())

	for _, raw := range []int{0, 30, 68, 82, 92, 100} {
		if got := cal.Calibrate(raw); got != raw {
			t.Errorf("Unfitted calibrator should be identity, got %d for %d", got, raw)
		}
	}

	stats := cal.Stats()
	if stats.IsFitted {
		t.Error("Fresh calibrator should not report fitted")
	}
	if stats.MinTradesToFit != DefaultMinTradesToFit {
		t.Errorf("Expected min trades %d, got %d", DefaultMinTradesToFit, stats.MinTradesToFit)
	}
}

// TestFitDeclinesWithoutData tests the minimum sample guard
func TestFitDeclinesWithoutData(t *testing.T) {
	journal := &memoryJournal{}
	for i := 0; i < 20; i++ {
		journal.samples = append(journal.samples, Sample{Confidence: 70, Won: i%2 == 0})
	}
	cal := New(journal, &memoryParamsStore{}, zerolog.Nop())

	result, err := cal.Fit(context.Background())
	if err != nil {
		t.Fatalf("Declining should not error: %v", err)
	}
	if result.Fitted {
		t.Error("Fit on 20 samples should decline")
	}
	if result.TrainingTrades != 20 {
		t.Errorf("Result should report the sample count, got %d", result.TrainingTrades)
	}
	if cal.Calibrate(70) != 70 {
		t.Error("Declined fit should leave the identity mapping")
	}
}

// TestFitProducesMonotoneMapping tests fitting on separably skewed outcomes
func TestFitProducesMonotoneMapping(t *testing.T) {
	store := &memoryParamsStore{}
	cal := New(trainingJournal(), store, zerolog.Nop())

	result, err := cal.Fit(context.Background())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !result.Fitted {
		t.Fatalf("Fit should succeed with 60 samples, reason: %s", result.Reason)
	}
	if result.ParamA <= 0 {
		t.Errorf("Winning high-confidence data should fit a positive slope, got %v", result.ParamA)
	}

	low := cal.Calibrate(30)
	high := cal.Calibrate(90)
	if high <= low {
		t.Errorf("Calibrated mapping should be monotone: %d at 30 vs %d at 90", low, high)
	}
	// 5/30 win rate at low confidence, 25/30 at high
	if low > 40 {
		t.Errorf("Low confidence should calibrate down toward its win rate, got %d", low)
	}
	if high < 60 {
		t.Errorf("High confidence should calibrate up toward its win rate, got %d", high)
	}

	if result.BrierScore >= 0.25 {
		t.Errorf("Skewed outcomes should calibrate under 0.25 Brier, got %v", result.BrierScore)
	}

	if store.saved == nil {
		t.Fatal("Fit should persist the parameters")
	}
	if store.saved.TrainingTrades != 60 {
		t.Errorf("Saved params should record 60 training trades, got %d", store.saved.TrainingTrades)
	}
}

// TestLoadRestoresParams tests the startup restore path
func TestLoadRestoresParams(t *testing.T) {
	store := &memoryParamsStore{}
	first := New(trainingJournal(), store, zerolog.Nop())
	if _, err := first.Fit(context.Background()); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	second := New(&memoryJournal{}, store, zerolog.Nop())
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !second.Stats().IsFitted {
		t.Fatal("Load should restore the fitted flag")
	}
	if first.Calibrate(75) != second.Calibrate(75) {
		t.Error("Restored calibrator should reproduce the fitted mapping")
	}
}

// TestLoadWithoutParams tests that a missing row keeps the identity
func TestLoadWithoutParams(t *testing.T) {
	cal := New(&memoryJournal{}, &memoryParamsStore{}, zerolog.Nop())
	if err := cal.Load(context.Background()); err != nil {
		t.Fatalf("Load with no saved params should not error: %v", err)
	}
	if cal.Stats().IsFitted {
		t.Error("Missing params should leave the calibrator unfitted")
	}
}

// TestShouldRefit tests the new-trade accumulation threshold
func TestShouldRefit(t *testing.T) {
	journal := trainingJournal()
	cal := New(journal, &memoryParamsStore{}, zerolog.Nop())
	ctx := context.Background()

	if _, err := cal.Fit(ctx); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	journal.count = 60 + DefaultRefitInterval - 1
	if refit, _ := cal.ShouldRefit(ctx); refit {
		t.Error("Should not refit below the interval")
	}

	journal.count = 60 + DefaultRefitInterval
	if refit, _ := cal.ShouldRefit(ctx); !refit {
		t.Error("Should refit once the interval is reached")
	}
}

// TestGradientDescentSolver tests the fallback solver directly
func TestGradientDescentSolver(t *testing.T) {
	journal := trainingJournal()
	xs := make([]float64, len(journal.samples))
	ys := make([]float64, len(journal.samples))
	for i, s := range journal.samples {
		xs[i] = float64(s.Confidence) / 100.0
		if s.Won {
			ys[i] = 1
		}
	}

	ctx := context.Background()
	a, b, err := GradientDescentSolver{}.Fit(ctx, xs, ys)
	if err != nil {
		t.Fatalf("Gradient descent failed: %v", err)
	}
	if a <= 0 {
		t.Errorf("Expected positive slope, got %v", a)
	}
	if logLoss(xs, ys, a, b) >= logLoss(xs, ys, 0, 0) {
		t.Error("Fitted parameters should beat the zero initialization")
	}

	if _, _, err := (GradientDescentSolver{}).Fit(ctx, nil, nil); err == nil {
		t.Error("Empty training data should error")
	}
}

// TestSolversHonorCancellation tests that a dead context stops both solvers
func TestSolversHonorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	xs := []float64{0.3, 0.9, 0.3, 0.9}
	ys := []float64{0, 1, 0, 1}

	if _, _, err := (GradientDescentSolver{}).Fit(ctx, xs, ys); err == nil {
		t.Error("Cancelled context should abort gradient descent")
	}
	if _, _, err := (LBFGSSolver{}).Fit(ctx, xs, ys); err == nil {
		t.Error("Cancelled context should abort the L-BFGS solver")
	}
}

// TestConfigOverridesThresholds tests the wired fit thresholds
func TestConfigOverridesThresholds(t *testing.T) {
	journal := &memoryJournal{}
	for i := 0; i < 20; i++ {
		journal.samples = append(journal.samples, Sample{Confidence: 30, Won: i%5 == 0})
		journal.samples = append(journal.samples, Sample{Confidence: 90, Won: i%5 != 0})
	}
	journal.count = len(journal.samples)

	cal := NewWithConfig(journal, &memoryParamsStore{}, Config{MinTradesToFit: 10, RefitInterval: 5}, zerolog.Nop())
	ctx := context.Background()

	stats := cal.Stats()
	if stats.MinTradesToFit != 10 || stats.RefitInterval != 5 {
		t.Fatalf("Config should override thresholds, got min %d interval %d", stats.MinTradesToFit, stats.RefitInterval)
	}

	result, err := cal.Fit(ctx)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !result.Fitted {
		t.Fatalf("40 samples over a 10-trade minimum should fit, reason: %s", result.Reason)
	}

	journal.count = 40 + 4
	if refit, _ := cal.ShouldRefit(ctx); refit {
		t.Error("Should not refit below the configured interval")
	}
	journal.count = 40 + 5
	if refit, _ := cal.ShouldRefit(ctx); !refit {
		t.Error("Should refit at the configured interval")
	}
}

// TestBrierScore tests the probability error metric
func TestBrierScore(t *testing.T) {
	// Strong positive slope puts high probability on the right outcomes
	xs := []float64{0.1, 0.9}
	ys := []float64{0, 1}
	confident := BrierScore(xs, ys, 20, -10)
	if confident > 0.05 {
		t.Errorf("Near-perfect predictions should score near 0, got %v", confident)
	}

	uninformed := BrierScore(xs, ys, 0, 0)
	if uninformed < 0.24 || uninformed > 0.26 {
		t.Errorf("Coin-flip predictions should score 0.25, got %v", uninformed)
	}

	if BrierScore(nil, nil, 1, 0) != 0 {
		t.Errorf("Empty data should score 0")
	}
}
