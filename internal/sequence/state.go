// Package sequence tracks where each instrument sits in the institutional
// cycle, instead of scoring every scan in isolation:
//
//	Phase 1 ACCUMULATION  - range building, stay out
//	Phase 2 MANIPULATION  - liquidity sweep in progress
//	Phase 3 DISPLACEMENT  - impulsive move with structure shift
//	Phase 4 RETRACEMENT   - pullback into FVG/OB, the optimal entry
//	Phase 5 CONTINUATION  - follow-through in displacement direction
package sequence

import "time"

// Phase is the institutional cycle phase, 1 through 5.
type Phase int

const (
	PhaseAccumulation Phase = iota + 1
	PhaseManipulation
	PhaseDisplacement
	PhaseRetracement
	PhaseContinuation
)

var phaseNames = map[Phase]string{
	PhaseAccumulation: "ACCUMULATION",
	PhaseManipulation: "MANIPULATION",
	PhaseDisplacement: "DISPLACEMENT",
	PhaseRetracement:  "RETRACEMENT",
	PhaseContinuation: "CONTINUATION",
}

// phaseModifiers adjust raw setup confidence by cycle position. Phase 4 is
// the optimal entry; phase 1 means stand aside.
var phaseModifiers = map[Phase]int{
	PhaseAccumulation: -20,
	PhaseManipulation: -10,
	PhaseDisplacement: 5,
	PhaseRetracement:  15,
	PhaseContinuation: 0,
}

// String returns the phase name, or UNKNOWN for out-of-range values.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// ConfidenceModifier returns the confidence adjustment for the phase.
func (p Phase) ConfidenceModifier() int {
	return phaseModifiers[p]
}

// State is the institutional cycle state for one instrument. Optional
// fields are pointers so persistence can round-trip NULLs.
type State struct {
	Instrument      string    `json:"instrument"`
	CurrentPhase    Phase     `json:"phase"`
	PhaseConfidence float64   `json:"phase_confidence"`
	PhaseEnteredAt  time.Time `json:"phase_entered_at"`
	MaxPhaseReached Phase     `json:"max_phase_reached"`

	AccumulationRangeHigh *float64 `json:"accumulation_range_high,omitempty"`
	AccumulationRangeLow  *float64 `json:"accumulation_range_low,omitempty"`
	SweepLevel            *float64 `json:"sweep_level,omitempty"`
	SweepDirection        string   `json:"sweep_direction,omitempty"`
	DisplacementMagnitude *float64 `json:"displacement_magnitude,omitempty"`
	ExpectedTarget        *float64 `json:"expected_target,omitempty"`

	CompletionRate float64 `json:"completion_rate"`
}

// ConfidenceModifier returns the adjustment for the state's current phase.
func (s *State) ConfidenceModifier() int {
	return s.CurrentPhase.ConfidenceModifier()
}

// Transition is one phase change, kept as an append-only audit record.
type Transition struct {
	Timestamp    time.Time `json:"timestamp"`
	Instrument   string    `json:"instrument"`
	OldPhase     Phase     `json:"old_phase"`
	NewPhase     Phase     `json:"new_phase"`
	OldPhaseName string    `json:"old_phase_name"`
	NewPhaseName string    `json:"new_phase_name"`
	Reason       string    `json:"reason"`
	SetupGrade   string    `json:"setup_grade,omitempty"`
}

// Completion records a finished cycle: entered when the state resets to
// phase 1, with the highest phase the sequence reached.
type Completion struct {
	Instrument      string    `json:"instrument"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	MaxPhaseReached Phase     `json:"max_phase_reached"`
}
