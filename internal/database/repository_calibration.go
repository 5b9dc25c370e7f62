package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"forex-smc-engine/internal/calibrator"
)

// CalibrationRepository persists Platt scaling parameters and supplies
// training data. Implements calibrator.Journal and calibrator.ParamsStore.
type CalibrationRepository struct {
	db *DB
}

// NewCalibrationRepository creates a calibration repository
func NewCalibrationRepository(db *DB) *CalibrationRepository {
	return &CalibrationRepository{db: db}
}

// TrainingSamples returns closed trades with a confidence score and PnL,
// oldest first.
func (r *CalibrationRepository) TrainingSamples(ctx context.Context) ([]calibrator.Sample, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT confidence_score, pnl
		FROM trades
		WHERE status = 'CLOSED'
		AND confidence_score IS NOT NULL
		AND pnl IS NOT NULL
		ORDER BY exit_time ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []calibrator.Sample
	for rows.Next() {
		var confidence int
		var pnl float64
		if err := rows.Scan(&confidence, &pnl); err != nil {
			return nil, err
		}
		samples = append(samples, calibrator.Sample{Confidence: confidence, Won: pnl > 0})
	}
	return samples, rows.Err()
}

// ClosedTradeCount counts closed trades usable for training.
func (r *CalibrationRepository) ClosedTradeCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM trades
		WHERE status = 'CLOSED'
		AND confidence_score IS NOT NULL
		AND pnl IS NOT NULL
	`).Scan(&count)
	return count, err
}

// SaveParams versions the parameters: previous active row deactivated and
// the new one inserted in one transaction.
func (r *CalibrationRepository) SaveParams(ctx context.Context, p calibrator.Params) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE calibration_params SET active = FALSE WHERE active = TRUE`,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO calibration_params (timestamp, param_a, param_b, training_trades,
			training_win_rate, brier_score, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	`,
		time.Now().UTC(), p.A, p.B, p.TrainingTrades, p.TrainingWinRate, p.BrierScore,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// LoadActiveParams returns the active parameter row, or nil when the
// calibrator has never been fitted.
func (r *CalibrationRepository) LoadActiveParams(ctx context.Context) (*calibrator.Params, error) {
	var p calibrator.Params
	err := r.db.Pool.QueryRow(ctx, `
		SELECT param_a, param_b, training_trades, training_win_rate, brier_score, timestamp
		FROM calibration_params
		WHERE active = TRUE
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&p.A, &p.B, &p.TrainingTrades, &p.TrainingWinRate, &p.BrierScore, &p.FittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
