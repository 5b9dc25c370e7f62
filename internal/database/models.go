package database

import (
	"time"
)

// Trade status constants
const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"
)

// Trade represents one trade in the journal. Closed trades with a
// confidence score feed the calibrator.
type Trade struct {
	ID              int64      `json:"id"`
	Instrument      string     `json:"instrument"`
	Direction       string     `json:"direction"`
	EntryPrice      float64    `json:"entry_price"`
	ExitPrice       *float64   `json:"exit_price,omitempty"`
	EntryTime       time.Time  `json:"entry_time"`
	ExitTime        *time.Time `json:"exit_time,omitempty"`
	StopLoss        *float64   `json:"stop_loss,omitempty"`
	TakeProfit      *float64   `json:"take_profit,omitempty"`
	PnL             *float64   `json:"pnl,omitempty"`
	ConfidenceScore *int       `json:"confidence_score,omitempty"`
	SetupGrade      *string    `json:"setup_grade,omitempty"`
	ScanID          *string    `json:"scan_id,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ScanResult is a stored analysis outcome, queryable by instrument.
type ScanResult struct {
	ID                   int64     `json:"id"`
	ScanID               string    `json:"scan_id"`
	Timestamp            time.Time `json:"timestamp"`
	Instrument           string    `json:"instrument"`
	SetupGrade           string    `json:"setup_grade"`
	Confidence           int       `json:"confidence"`
	CalibratedConfidence *int      `json:"calibrated_confidence,omitempty"`
	Direction            *string   `json:"direction,omitempty"`
	CurrentPrice         *float64  `json:"current_price,omitempty"`
	StopLoss             *float64  `json:"stop_loss,omitempty"`
	TakeProfit           *float64  `json:"take_profit,omitempty"`
	RiskReward           *float64  `json:"risk_reward,omitempty"`
	SequencePhase        *int      `json:"sequence_phase,omitempty"`
	Analysis             []byte    `json:"analysis,omitempty"`
}
