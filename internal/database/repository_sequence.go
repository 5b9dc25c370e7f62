package database

import (
	"context"
	"fmt"
	"time"

	"forex-smc-engine/internal/sequence"
)

// SequenceRepository persists institutional cycle state. Implements
// sequence.Store.
type SequenceRepository struct {
	db *DB
}

// NewSequenceRepository creates a sequence repository
func NewSequenceRepository(db *DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// SaveState versions the state: the previous active row for the
// instrument is deactivated and the new one inserted in one transaction.
func (r *SequenceRepository) SaveState(ctx context.Context, state *sequence.State) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save state: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE sequence_states SET active = FALSE WHERE instrument = $1 AND active = TRUE`,
		state.Instrument,
	); err != nil {
		return fmt.Errorf("deactivate state: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sequence_states (timestamp, instrument, current_phase, phase_name,
			phase_confidence, phase_entered_at, max_phase_reached,
			accumulation_range_high, accumulation_range_low,
			sweep_level, sweep_direction, displacement_magnitude, expected_target, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE)
	`,
		time.Now().UTC(), state.Instrument, int(state.CurrentPhase), state.CurrentPhase.String(),
		state.PhaseConfidence, state.PhaseEnteredAt, int(state.MaxPhaseReached),
		state.AccumulationRangeHigh, state.AccumulationRangeLow,
		state.SweepLevel, nullIfEmpty(state.SweepDirection),
		state.DisplacementMagnitude, state.ExpectedTarget,
	); err != nil {
		return fmt.Errorf("insert state: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadActiveStates returns the active state for every tracked instrument.
func (r *SequenceRepository) LoadActiveStates(ctx context.Context) ([]sequence.State, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT instrument, current_phase, phase_confidence, phase_entered_at,
		       max_phase_reached, accumulation_range_high, accumulation_range_low,
		       sweep_level, sweep_direction, displacement_magnitude, expected_target
		FROM sequence_states
		WHERE active = TRUE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []sequence.State
	for rows.Next() {
		var s sequence.State
		var phase, maxPhase int
		var enteredAt *time.Time
		var sweepDirection *string
		if err := rows.Scan(
			&s.Instrument, &phase, &s.PhaseConfidence, &enteredAt, &maxPhase,
			&s.AccumulationRangeHigh, &s.AccumulationRangeLow,
			&s.SweepLevel, &sweepDirection, &s.DisplacementMagnitude, &s.ExpectedTarget,
		); err != nil {
			return nil, err
		}
		s.CurrentPhase = sequence.Phase(phase)
		s.MaxPhaseReached = sequence.Phase(maxPhase)
		if enteredAt != nil {
			s.PhaseEnteredAt = *enteredAt
		}
		if sweepDirection != nil {
			s.SweepDirection = *sweepDirection
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// AppendTransition records a phase change in the append-only log.
func (r *SequenceRepository) AppendTransition(ctx context.Context, t sequence.Transition) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO sequence_transitions (timestamp, instrument, old_phase, new_phase,
			old_phase_name, new_phase_name, reason, setup_grade)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		t.Timestamp, t.Instrument, int(t.OldPhase), int(t.NewPhase),
		t.OldPhaseName, t.NewPhaseName, t.Reason, nullIfEmpty(t.SetupGrade),
	)
	return err
}

// AppendCompletion records a finished cycle.
func (r *SequenceRepository) AppendCompletion(ctx context.Context, c sequence.Completion) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO sequence_completions (instrument, started_at, completed_at, max_phase_reached)
		VALUES ($1, $2, $3, $4)
	`,
		c.Instrument, c.StartedAt, c.CompletedAt, int(c.MaxPhaseReached),
	)
	return err
}

// CompletionRate returns the percentage of completed cycles that reached
// phase 4 or later, defaulting to 50 when no history exists.
func (r *SequenceRepository) CompletionRate(ctx context.Context, instrument string) (float64, error) {
	var total, completed int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE max_phase_reached >= 4)
		FROM sequence_completions
		WHERE instrument = $1
	`, instrument).Scan(&total, &completed)
	if err != nil {
		return 50.0, err
	}
	if total == 0 {
		return 50.0, nil
	}
	return float64(completed) / float64(total) * 100, nil
}

// GetTransitions returns the most recent phase transitions for an instrument.
func (r *SequenceRepository) GetTransitions(ctx context.Context, instrument string, limit int) ([]sequence.Transition, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT timestamp, instrument, old_phase, new_phase, old_phase_name, new_phase_name,
		       reason, COALESCE(setup_grade, '')
		FROM sequence_transitions
		WHERE instrument = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, instrument, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []sequence.Transition
	for rows.Next() {
		var t sequence.Transition
		var oldPhase, newPhase int
		if err := rows.Scan(
			&t.Timestamp, &t.Instrument, &oldPhase, &newPhase,
			&t.OldPhaseName, &t.NewPhaseName, &t.Reason, &t.SetupGrade,
		); err != nil {
			return nil, err
		}
		t.OldPhase = sequence.Phase(oldPhase)
		t.NewPhase = sequence.Phase(newPhase)
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
