package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// TRADES
// ============================================================================

// CreateTrade inserts a new trade
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	query := `
		INSERT INTO trades (instrument, direction, entry_price, entry_time, stop_loss, take_profit, confidence_score, setup_grade, scan_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	if trade.Status == "" {
		trade.Status = TradeStatusOpen
	}
	return r.db.Pool.QueryRow(
		ctx, query,
		trade.Instrument, trade.Direction, trade.EntryPrice, trade.EntryTime,
		trade.StopLoss, trade.TakeProfit, trade.ConfidenceScore, trade.SetupGrade,
		trade.ScanID, trade.Status,
	).Scan(&trade.ID, &trade.CreatedAt, &trade.UpdatedAt)
}

// CloseTrade records the exit of a trade
func (r *Repository) CloseTrade(ctx context.Context, trade *Trade) error {
	query := `
		UPDATE trades
		SET exit_price = $2, exit_time = $3, pnl = $4, status = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		trade.ID, trade.ExitPrice, trade.ExitTime, trade.PnL, TradeStatusClosed,
	)
	return err
}

// GetTradeByID retrieves a trade by ID
func (r *Repository) GetTradeByID(ctx context.Context, id int64) (*Trade, error) {
	query := `
		SELECT id, instrument, direction, entry_price, exit_price, entry_time, exit_time,
		       stop_loss, take_profit, pnl, confidence_score, setup_grade, scan_id, status,
		       created_at, updated_at
		FROM trades
		WHERE id = $1
	`
	trade := &Trade{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&trade.ID, &trade.Instrument, &trade.Direction, &trade.EntryPrice, &trade.ExitPrice,
		&trade.EntryTime, &trade.ExitTime, &trade.StopLoss, &trade.TakeProfit, &trade.PnL,
		&trade.ConfidenceScore, &trade.SetupGrade, &trade.ScanID, &trade.Status,
		&trade.CreatedAt, &trade.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// GetTradeHistory retrieves closed trades with pagination
func (r *Repository) GetTradeHistory(ctx context.Context, limit, offset int) ([]*Trade, error) {
	query := `
		SELECT id, instrument, direction, entry_price, exit_price, entry_time, exit_time,
		       stop_loss, take_profit, pnl, confidence_score, setup_grade, scan_id, status,
		       created_at, updated_at
		FROM trades
		WHERE status = 'CLOSED'
		ORDER BY exit_time DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		trade := &Trade{}
		if err := rows.Scan(
			&trade.ID, &trade.Instrument, &trade.Direction, &trade.EntryPrice, &trade.ExitPrice,
			&trade.EntryTime, &trade.ExitTime, &trade.StopLoss, &trade.TakeProfit, &trade.PnL,
			&trade.ConfidenceScore, &trade.SetupGrade, &trade.ScanID, &trade.Status,
			&trade.CreatedAt, &trade.UpdatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// ============================================================================
// SCAN RESULTS
// ============================================================================

// SaveScanResult stores a completed analysis. The full analysis payload is
// kept as JSONB for later review.
func (r *Repository) SaveScanResult(ctx context.Context, result *ScanResult, analysis any) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	query := `
		INSERT INTO scan_results (scan_id, timestamp, instrument, setup_grade, confidence,
			calibrated_confidence, direction, current_price, stop_loss, take_profit,
			risk_reward, sequence_phase, analysis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		result.ScanID, result.Timestamp, result.Instrument, result.SetupGrade,
		result.Confidence, result.CalibratedConfidence, result.Direction,
		result.CurrentPrice, result.StopLoss, result.TakeProfit, result.RiskReward,
		result.SequencePhase, payload,
	).Scan(&result.ID)
}

// GetScanResults retrieves recent scan results for an instrument
func (r *Repository) GetScanResults(ctx context.Context, instrument string, limit int) ([]*ScanResult, error) {
	query := `
		SELECT id, scan_id, timestamp, instrument, setup_grade, confidence,
		       calibrated_confidence, direction, current_price, stop_loss, take_profit,
		       risk_reward, sequence_phase
		FROM scan_results
		WHERE instrument = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, instrument, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*ScanResult
	for rows.Next() {
		res := &ScanResult{}
		if err := rows.Scan(
			&res.ID, &res.ScanID, &res.Timestamp, &res.Instrument, &res.SetupGrade,
			&res.Confidence, &res.CalibratedConfidence, &res.Direction, &res.CurrentPrice,
			&res.StopLoss, &res.TakeProfit, &res.RiskReward, &res.SequencePhase,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetScanResultByID retrieves one scan result with its full analysis payload
func (r *Repository) GetScanResultByID(ctx context.Context, scanID string) (*ScanResult, error) {
	query := `
		SELECT id, scan_id, timestamp, instrument, setup_grade, confidence,
		       calibrated_confidence, direction, current_price, stop_loss, take_profit,
		       risk_reward, sequence_phase, analysis
		FROM scan_results
		WHERE scan_id = $1
	`
	res := &ScanResult{}
	err := r.db.Pool.QueryRow(ctx, query, scanID).Scan(
		&res.ID, &res.ScanID, &res.Timestamp, &res.Instrument, &res.SetupGrade,
		&res.Confidence, &res.CalibratedConfidence, &res.Direction, &res.CurrentPrice,
		&res.StopLoss, &res.TakeProfit, &res.RiskReward, &res.SequencePhase, &res.Analysis,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
