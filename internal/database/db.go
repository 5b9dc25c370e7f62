package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		// Closed trade journal used for calibration training
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			instrument VARCHAR(20) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8),
			entry_time TIMESTAMP NOT NULL,
			exit_time TIMESTAMP,
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			pnl DECIMAL(20, 8),
			confidence_score INTEGER,
			setup_grade VARCHAR(10),
			scan_id VARCHAR(36),
			status VARCHAR(20) NOT NULL DEFAULT 'OPEN',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_instrument ON trades(instrument)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time)`,

		// Versioned sequence state: exactly one active row per instrument
		`CREATE TABLE IF NOT EXISTS sequence_states (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			current_phase INTEGER NOT NULL,
			phase_name VARCHAR(20) NOT NULL,
			phase_confidence DECIMAL(6, 2) NOT NULL DEFAULT 0,
			phase_entered_at TIMESTAMP,
			max_phase_reached INTEGER NOT NULL DEFAULT 1,
			accumulation_range_high DECIMAL(20, 8),
			accumulation_range_low DECIMAL(20, 8),
			sweep_level DECIMAL(20, 8),
			sweep_direction VARCHAR(20),
			displacement_magnitude DECIMAL(10, 4),
			expected_target DECIMAL(20, 8),
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sequence_states_instrument ON sequence_states(instrument)`,
		`CREATE INDEX IF NOT EXISTS idx_sequence_states_active ON sequence_states(instrument, active)`,

		// Append-only phase transition log
		`CREATE TABLE IF NOT EXISTS sequence_transitions (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			old_phase INTEGER NOT NULL,
			new_phase INTEGER NOT NULL,
			old_phase_name VARCHAR(20) NOT NULL,
			new_phase_name VARCHAR(20) NOT NULL,
			reason TEXT,
			setup_grade VARCHAR(10)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sequence_transitions_instrument ON sequence_transitions(instrument)`,
		`CREATE INDEX IF NOT EXISTS idx_sequence_transitions_timestamp ON sequence_transitions(timestamp)`,

		// Append-only completed cycle log
		`CREATE TABLE IF NOT EXISTS sequence_completions (
			id SERIAL PRIMARY KEY,
			instrument VARCHAR(20) NOT NULL,
			started_at TIMESTAMP,
			completed_at TIMESTAMP NOT NULL,
			max_phase_reached INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sequence_completions_instrument ON sequence_completions(instrument)`,

		// Versioned Platt scaling parameters: one active row
		`CREATE TABLE IF NOT EXISTS calibration_params (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			param_a DECIMAL(12, 6) NOT NULL,
			param_b DECIMAL(12, 6) NOT NULL,
			training_trades INTEGER NOT NULL,
			training_win_rate DECIMAL(6, 4),
			brier_score DECIMAL(8, 6),
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,

		// Scan results kept for review and the API history endpoints
		`CREATE TABLE IF NOT EXISTS scan_results (
			id SERIAL PRIMARY KEY,
			scan_id VARCHAR(36) NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			setup_grade VARCHAR(10) NOT NULL,
			confidence INTEGER NOT NULL,
			calibrated_confidence INTEGER,
			direction VARCHAR(5),
			current_price DECIMAL(20, 8),
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			risk_reward DECIMAL(8, 2),
			sequence_phase INTEGER,
			analysis JSONB
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_scan_results_scan_id ON scan_results(scan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_results_instrument ON scan_results(instrument, timestamp)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
