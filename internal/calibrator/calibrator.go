// Package calibrator maps raw setup confidence scores to calibrated win
// probabilities with Platt scaling, fitted on closed trade outcomes:
//
//	P(win) = 1 / (1 + exp(-(A*raw/100 + B)))
//
// Until fitted the mapping is the identity. A Brier score under 0.25
// indicates a usable calibration.
package calibrator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Fit thresholds.
const (
	DefaultMinTradesToFit = 30
	DefaultRefitInterval  = 50

	// fitBudget bounds the wall-clock time a single solver run may take.
	fitBudget = 10 * time.Second
)

// Config overrides the fit thresholds. Zero values use the defaults.
type Config struct {
	MinTradesToFit int `json:"min_trades_to_fit"`
	RefitInterval  int `json:"refit_interval"`
}

// Sample is one closed trade outcome used for fitting.
type Sample struct {
	Confidence int  `json:"confidence"`
	Won        bool `json:"won"`
}

// Journal supplies closed trade outcomes for training.
type Journal interface {
	TrainingSamples(ctx context.Context) ([]Sample, error)
	ClosedTradeCount(ctx context.Context) (int, error)
}

// Params are fitted calibration parameters with their quality metrics.
type Params struct {
	A               float64   `json:"param_a"`
	B               float64   `json:"param_b"`
	TrainingTrades  int       `json:"training_trades"`
	TrainingWinRate float64   `json:"training_win_rate"`
	BrierScore      float64   `json:"brier_score"`
	FittedAt        time.Time `json:"fitted_at"`
}

// ParamsStore persists fitted parameters, versioned with a single active
// row like sequence state.
type ParamsStore interface {
	SaveParams(ctx context.Context, p Params) error
	LoadActiveParams(ctx context.Context) (*Params, error)
}

// FitResult reports the outcome of a fit attempt.
type FitResult struct {
	Fitted          bool    `json:"fitted"`
	Reason          string  `json:"reason,omitempty"`
	ParamA          float64 `json:"param_a,omitempty"`
	ParamB          float64 `json:"param_b,omitempty"`
	TrainingTrades  int     `json:"training_trades"`
	TrainingWinRate float64 `json:"training_win_rate,omitempty"`
	BrierScore      float64 `json:"brier_score,omitempty"`
}

// Stats summarizes the calibrator's current configuration.
type Stats struct {
	IsFitted       bool    `json:"is_fitted"`
	ParamA         float64 `json:"param_a"`
	ParamB         float64 `json:"param_b"`
	LastTradeCount int     `json:"last_trade_count"`
	MinTradesToFit int     `json:"min_trades_to_fit"`
	RefitInterval  int     `json:"refit_interval"`
}

// Calibrator applies and refits Platt scaling.
type Calibrator struct {
	mu             sync.RWMutex
	journal        Journal
	store          ParamsStore
	solver         Solver
	fallback       Solver
	paramA         float64
	paramB         float64
	fitted         bool
	lastTradeCount int
	minTradesToFit int
	refitInterval  int
	logger         zerolog.Logger
}

// New creates a calibrator with default thresholds. The gonum L-BFGS
// solver is primary with batch gradient descent as fallback.
func New(journal Journal, store ParamsStore, logger zerolog.Logger) *Calibrator {
	return NewWithConfig(journal, store, Config{}, logger)
}

// NewWithConfig creates a calibrator with explicit fit thresholds.
func NewWithConfig(journal Journal, store ParamsStore, cfg Config, logger zerolog.Logger) *Calibrator {
	if cfg.MinTradesToFit <= 0 {
		cfg.MinTradesToFit = DefaultMinTradesToFit
	}
	if cfg.RefitInterval <= 0 {
		cfg.RefitInterval = DefaultRefitInterval
	}
	return &Calibrator{
		journal:        journal,
		store:          store,
		solver:         LBFGSSolver{},
		fallback:       GradientDescentSolver{},
		minTradesToFit: cfg.MinTradesToFit,
		refitInterval:  cfg.RefitInterval,
		logger:         logger.With().Str("component", "calibrator").Logger(),
	}
}

// Load restores active parameters from the store. A missing row is not an
// error; the calibrator stays at identity.
func (c *Calibrator) Load(ctx context.Context) error {
	params, err := c.store.LoadActiveParams(ctx)
	if err != nil {
		return err
	}
	if params == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.paramA = params.A
	c.paramB = params.B
	c.lastTradeCount = params.TrainingTrades
	c.fitted = true
	c.logger.Info().Float64("param_a", params.A).Float64("param_b", params.B).Msg("calibration parameters loaded")
	return nil
}

// Calibrate maps a raw 0-100 confidence score to a calibrated one.
// Identity until fitted.
func (c *Calibrator) Calibrate(rawConfidence int) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fitted {
		return rawConfidence
	}

	x := float64(rawConfidence) / 100.0
	p := sigmoid(c.paramA*x + c.paramB)

	calibrated := int(math.Round(p * 100))
	if calibrated < 0 {
		return 0
	}
	if calibrated > 100 {
		return 100
	}
	return calibrated
}

// Fit refits A and B on the journal's closed trades. Declines without
// error when fewer than the minimum number of samples exist.
func (c *Calibrator) Fit(ctx context.Context) (FitResult, error) {
	samples, err := c.journal.TrainingSamples(ctx)
	if err != nil {
		return FitResult{}, err
	}

	if len(samples) < c.minTradesToFit {
		c.logger.Info().
			Int("have", len(samples)).
			Int("need", c.minTradesToFit).
			Msg("not enough closed trades to fit")
		return FitResult{
			Fitted:         false,
			Reason:         "insufficient training data",
			TrainingTrades: len(samples),
		}, nil
	}

	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	wins := 0
	for i, s := range samples {
		xs[i] = float64(s.Confidence) / 100.0
		if s.Won {
			ys[i] = 1
			wins++
		}
	}

	fitCtx, cancel := context.WithTimeout(ctx, fitBudget)
	defer cancel()

	a, b, err := c.solver.Fit(fitCtx, xs, ys)
	if err != nil {
		c.logger.Warn().Err(err).Msg("primary solver failed, using gradient descent")
		a, b, err = c.fallback.Fit(fitCtx, xs, ys)
		if err != nil {
			return FitResult{}, err
		}
	}

	brier := BrierScore(xs, ys, a, b)
	winRate := float64(wins) / float64(len(samples))

	c.mu.Lock()
	c.paramA = a
	c.paramB = b
	c.fitted = true
	c.lastTradeCount = len(samples)
	c.mu.Unlock()

	params := Params{
		A:               a,
		B:               b,
		TrainingTrades:  len(samples),
		TrainingWinRate: winRate,
		BrierScore:      brier,
		FittedAt:        time.Now().UTC(),
	}
	if err := c.store.SaveParams(ctx, params); err != nil {
		return FitResult{}, err
	}

	c.logger.Info().
		Float64("param_a", a).
		Float64("param_b", b).
		Float64("brier_score", brier).
		Int("trades", len(samples)).
		Float64("win_rate", winRate).
		Msg("calibrator fitted")

	return FitResult{
		Fitted:          true,
		ParamA:          a,
		ParamB:          b,
		TrainingTrades:  len(samples),
		TrainingWinRate: math.Round(winRate*1000) / 10,
		BrierScore:      math.Round(brier*10000) / 10000,
	}, nil
}

// ShouldRefit reports whether enough new closed trades have accumulated
// since the last fit.
func (c *Calibrator) ShouldRefit(ctx context.Context) (bool, error) {
	count, err := c.journal.ClosedTradeCount(ctx)
	if err != nil {
		return false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return count-c.lastTradeCount >= c.refitInterval, nil
}

// Stats returns the current calibration state.
func (c *Calibrator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		IsFitted:       c.fitted,
		ParamA:         math.Round(c.paramA*10000) / 10000,
		ParamB:         math.Round(c.paramB*10000) / 10000,
		LastTradeCount: c.lastTradeCount,
		MinTradesToFit: c.minTradesToFit,
		RefitInterval:  c.refitInterval,
	}
}

// BrierScore is the mean squared error of predicted probabilities; lower
// is better, under 0.25 is considered calibrated.
func BrierScore(xs, ys []float64, a, b float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for i := range xs {
		p := sigmoid(a*xs[i] + b)
		total += (p - ys[i]) * (p - ys[i])
	}
	return total / float64(len(xs))
}
