package sequence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-smc-engine/internal/analyzer"
	"forex-smc-engine/internal/liquidity"
	"forex-smc-engine/internal/structure"
)

// Regime is the coarse market regime used for phase 1 and 5 decisions.
type Regime string

const (
	RegimeRanging       Regime = "RANGING"
	RegimeLowVolatility Regime = "LOW_VOLATILITY"
	RegimeTrending      Regime = "TRENDING"
	RegimeUnknown       Regime = "UNKNOWN"
)

// Technical carries regime indicators into the tracker. Zero ADX or
// Bollinger percentile values are treated as the neutral 50.
type Technical struct {
	MarketRegime             Regime  `json:"market_regime"`
	ADX                      float64 `json:"adx"`
	BollingerWidthPercentile float64 `json:"bollinger_width_percentile"`
}

// TechnicalFromAnalysis derives a regime from the LTF structure when no
// separate indicator feed is available.
func TechnicalFromAnalysis(smc *analyzer.Analysis) Technical {
	t := Technical{MarketRegime: RegimeTrending}
	if smc == nil || smc.LTFStructure == structure.TrendRanging {
		t.MarketRegime = RegimeRanging
	}
	return t
}

// Store persists sequence state and its audit trail.
//
// SaveState must atomically deactivate the previous row for the instrument
// and insert the new one, so exactly one active row exists per instrument.
type Store interface {
	SaveState(ctx context.Context, state *State) error
	LoadActiveStates(ctx context.Context) ([]State, error)
	AppendTransition(ctx context.Context, t Transition) error
	AppendCompletion(ctx context.Context, c Completion) error
	CompletionRate(ctx context.Context, instrument string) (float64, error)
}

// Tracker maintains per-instrument cycle state. Updates for one
// instrument are serialized by a per-instrument lock; the tracker-wide
// mutex only guards the maps and is never held across store calls, so
// one instrument's persistence round-trip cannot stall another's scan.
type Tracker struct {
	mu     sync.Mutex
	store  Store
	states map[string]*State
	locks  map[string]*sync.Mutex
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker backed by the given store.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		states: make(map[string]*State),
		locks:  make(map[string]*sync.Mutex),
		logger: logger.With().Str("component", "sequence").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Load restores active states from the store. Call once at startup.
func (t *Tracker) Load(ctx context.Context) error {
	states, err := t.store.LoadActiveStates(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range states {
		s := states[i]
		t.states[s.Instrument] = &s
	}
	if len(states) > 0 {
		t.logger.Info().Int("count", len(states)).Msg("loaded sequence states")
	}
	return nil
}

// GetState returns the current state for an instrument, or nil.
func (t *Tracker) GetState(instrument string) *State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[instrument]; ok {
		copied := *s
		return &copied
	}
	return nil
}

// ConfidenceModifier returns the phase modifier for an instrument, zero
// when untracked.
func (t *Tracker) ConfidenceModifier(instrument string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[instrument]; ok {
		return s.ConfidenceModifier()
	}
	return 0
}

// lockFor returns the update lock for an instrument, creating it on
// first use.
func (t *Tracker) lockFor(instrument string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[instrument]
	if !ok {
		l = &sync.Mutex{}
		t.locks[instrument] = l
	}
	return l
}

// stateCopy returns a copy of the tracked state, or nil when untracked.
func (t *Tracker) stateCopy(instrument string) *State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[instrument]; ok {
		copied := *s
		return &copied
	}
	return nil
}

// Update advances the cycle state from a fresh analysis. The returned
// state is a copy; persistence errors are returned after the in-memory
// state has been updated. Concurrent updates for the same instrument
// are serialized; different instruments proceed independently.
func (t *Tracker) Update(ctx context.Context, instrument string, smc *analyzer.Analysis, technical Technical) (*State, error) {
	lock := t.lockFor(instrument)
	lock.Lock()
	defer lock.Unlock()

	state := t.stateCopy(instrument)
	if state == nil {
		state = &State{
			Instrument:      instrument,
			CurrentPhase:    PhaseAccumulation,
			MaxPhaseReached: PhaseAccumulation,
			PhaseEnteredAt:  t.now(),
		}
	}

	oldPhase := state.CurrentPhase
	var completed *Completion

	switch state.CurrentPhase {
	case PhaseAccumulation:
		t.updateAccumulation(state, smc, technical)
	case PhaseManipulation:
		t.updateManipulation(state, smc)
	case PhaseDisplacement:
		t.updateDisplacement(state, smc)
	case PhaseRetracement:
		t.updateRetracement(state, smc)
	case PhaseContinuation:
		completed = t.updateContinuation(state, smc, technical)
	}

	if smc != nil && smc.Targets != nil {
		tp := smc.Targets.TakeProfit
		state.ExpectedTarget = &tp
	}

	var saveErr error

	if state.CurrentPhase != oldPhase {
		if state.CurrentPhase > state.MaxPhaseReached {
			state.MaxPhaseReached = state.CurrentPhase
		}
		if state.CurrentPhase == PhaseAccumulation && completed == nil {
			completed = &Completion{
				Instrument:      instrument,
				StartedAt:       state.PhaseEnteredAt,
				CompletedAt:     t.now(),
				MaxPhaseReached: state.MaxPhaseReached,
			}
		}

		state.PhaseEnteredAt = t.now()
		reason := transitionReason(oldPhase, state.CurrentPhase)

		grade := ""
		if smc != nil {
			grade = string(smc.Grade)
		}
		if err := t.store.AppendTransition(ctx, Transition{
			Timestamp:    t.now(),
			Instrument:   instrument,
			OldPhase:     oldPhase,
			NewPhase:     state.CurrentPhase,
			OldPhaseName: oldPhase.String(),
			NewPhaseName: state.CurrentPhase.String(),
			Reason:       reason,
			SetupGrade:   grade,
		}); err != nil && saveErr == nil {
			saveErr = err
		}

		t.logger.Info().
			Str("instrument", instrument).
			Int("old_phase", int(oldPhase)).
			Int("new_phase", int(state.CurrentPhase)).
			Str("reason", reason).
			Msg("sequence transition")
	}

	if completed != nil {
		if err := t.store.AppendCompletion(ctx, *completed); err != nil && saveErr == nil {
			saveErr = err
		}
		state.MaxPhaseReached = state.CurrentPhase
	}

	rate, err := t.store.CompletionRate(ctx, instrument)
	if err != nil {
		rate = 50.0
		if saveErr == nil {
			saveErr = err
		}
	}
	state.CompletionRate = rate

	if err := t.store.SaveState(ctx, state); err != nil && saveErr == nil {
		saveErr = err
	}

	t.mu.Lock()
	t.states[instrument] = state
	t.mu.Unlock()

	copied := *state
	return &copied, saveErr
}

// updateAccumulation handles phase 1. A sweep moves to manipulation; a
// displacement without a sweep skips straight to phase 3.
func (t *Tracker) updateAccumulation(state *State, smc *analyzer.Analysis, technical Technical) {
	if technical.MarketRegime == RegimeRanging || technical.MarketRegime == RegimeLowVolatility {
		adx := defaultNeutral(technical.ADX)
		bbPct := defaultNeutral(technical.BollingerWidthPercentile)
		state.PhaseConfidence = clamp((100-adx)*0.5+(100-bbPct)*0.5, 0, 100)

		if smc != nil && smc.HTFSwingHigh > 0 {
			high := smc.HTFSwingHigh
			state.AccumulationRangeHigh = &high
		}
		if smc != nil && smc.HTFSwingLow > 0 {
			low := smc.HTFSwingLow
			state.AccumulationRangeLow = &low
		}
	}

	if smc == nil {
		return
	}

	if smc.Sweep != nil {
		state.CurrentPhase = PhaseManipulation
		level := smc.Sweep.Level.Price
		state.SweepLevel = &level
		state.SweepDirection = string(smc.Sweep.Direction)
		state.PhaseConfidence = 70.0
		return
	}

	if smc.Displacement != nil {
		state.CurrentPhase = PhaseDisplacement
		mag := smc.Displacement.AvgBodyRatio
		state.DisplacementMagnitude = &mag
		state.PhaseConfidence = 60.0
	}
}

// updateManipulation handles phase 2. Confidence decays two points per
// scan without progress; below 20 the sequence resets.
func (t *Tracker) updateManipulation(state *State, smc *analyzer.Analysis) {
	if smc == nil {
		return
	}

	if smc.Sweep != nil {
		level := smc.Sweep.Level.Price
		state.SweepLevel = &level
		state.SweepDirection = string(smc.Sweep.Direction)
	}

	hasShift := smc.CHoCH != nil || smc.BOS != nil
	hasDisplacement := smc.Displacement != nil

	switch {
	case hasShift && hasDisplacement:
		state.CurrentPhase = PhaseDisplacement
		mag := smc.Displacement.AvgBodyRatio
		state.DisplacementMagnitude = &mag
		state.PhaseConfidence = 80.0
	case hasShift:
		state.CurrentPhase = PhaseDisplacement
		zero := 0.0
		state.DisplacementMagnitude = &zero
		state.PhaseConfidence = 55.0
	default:
		state.PhaseConfidence -= 2.0
	}

	if state.PhaseConfidence < 20.0 {
		state.CurrentPhase = PhaseAccumulation
		state.PhaseConfidence = 30.0
	}
}

// updateDisplacement handles phase 3: waiting for price to pull back into
// an entry zone. Fading momentum without a clear zone still moves to
// phase 4 once confidence drops under 30.
func (t *Tracker) updateDisplacement(state *State, smc *analyzer.Analysis) {
	if smc == nil {
		return
	}

	hasUnfilledFVG := false
	for _, f := range smc.FVGs {
		if !f.Filled {
			hasUnfilledFVG = true
			break
		}
	}
	hasFreshOB := false
	for _, ob := range smc.OrderBlocks {
		if !ob.Mitigated {
			hasFreshOB = true
			break
		}
	}

	if (hasUnfilledFVG || hasFreshOB) && smc.EntryZone != nil {
		state.CurrentPhase = PhaseRetracement
		state.PhaseConfidence = 85.0
		return
	}

	if smc.Displacement != nil {
		mag := smc.Displacement.AvgBodyRatio
		state.DisplacementMagnitude = &mag
		state.PhaseConfidence = maxF(50.0, state.PhaseConfidence-3.0)
		return
	}

	state.PhaseConfidence -= 5.0
	if state.PhaseConfidence < 30.0 {
		state.CurrentPhase = PhaseRetracement
		state.PhaseConfidence = 50.0
	}
}

// updateRetracement handles phase 4: entry window. Continuation in the
// sweep's implied direction advances; an opposing CHoCH invalidates.
func (t *Tracker) updateRetracement(state *State, smc *analyzer.Analysis) {
	if smc == nil {
		return
	}

	if smc.Direction != analyzer.DirectionNone {
		expected := analyzer.DirectionShort
		if state.SweepDirection == string(liquidity.SellsideSweep) {
			expected = analyzer.DirectionLong
		}
		if smc.Direction == expected {
			state.CurrentPhase = PhaseContinuation
			state.PhaseConfidence = 70.0
			return
		}
	}

	if smc.CHoCH != nil {
		expected := structure.Bearish
		if state.SweepDirection == string(liquidity.SellsideSweep) {
			expected = structure.Bullish
		}
		if smc.CHoCH.Direction != expected {
			state.CurrentPhase = PhaseAccumulation
			state.PhaseConfidence = 20.0
			return
		}
	}

	state.PhaseConfidence = maxF(40.0, state.PhaseConfidence-1.0)
}

// updateContinuation handles phase 5. A new range or a neutral HTF bias
// completes the sequence and resets to phase 1, clearing the phase data.
func (t *Tracker) updateContinuation(state *State, smc *analyzer.Analysis, technical Technical) *Completion {
	if smc == nil {
		return nil
	}

	if technical.MarketRegime == RegimeRanging || technical.MarketRegime == RegimeLowVolatility {
		c := t.completionFor(state)
		state.CurrentPhase = PhaseAccumulation
		state.PhaseConfidence = 40.0
		state.SweepLevel = nil
		state.SweepDirection = ""
		state.DisplacementMagnitude = nil
		return c
	}

	if smc.HTFBias == analyzer.BiasNeutral {
		c := t.completionFor(state)
		state.CurrentPhase = PhaseAccumulation
		state.PhaseConfidence = 30.0
		return c
	}

	state.PhaseConfidence = maxF(30.0, state.PhaseConfidence-2.0)
	return nil
}

func (t *Tracker) completionFor(state *State) *Completion {
	return &Completion{
		Instrument:      state.Instrument,
		StartedAt:       state.PhaseEnteredAt,
		CompletedAt:     t.now(),
		MaxPhaseReached: state.MaxPhaseReached,
	}
}

var transitionReasons = map[[2]Phase]string{
	{PhaseAccumulation, PhaseManipulation}: "Sweep detected in range",
	{PhaseAccumulation, PhaseDisplacement}: "Direct displacement (skipped manipulation)",
	{PhaseManipulation, PhaseDisplacement}: "Displacement + structure shift after sweep",
	{PhaseManipulation, PhaseAccumulation}: "Manipulation phase timed out",
	{PhaseDisplacement, PhaseRetracement}:  "Price retracing to entry zone",
	{PhaseRetracement, PhaseContinuation}:  "Continuation in displacement direction",
	{PhaseRetracement, PhaseAccumulation}:  "Structure invalidated during retracement",
	{PhaseContinuation, PhaseAccumulation}: "Sequence complete (range or structure break)",
}

func transitionReason(from, to Phase) string {
	if reason, ok := transitionReasons[[2]Phase{from, to}]; ok {
		return reason
	}
	return "Phase " + from.String() + " to " + to.String()
}

func defaultNeutral(v float64) float64 {
	if v == 0 {
		return 50
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
