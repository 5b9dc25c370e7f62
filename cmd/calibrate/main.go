// Command calibrate fits the confidence calibration parameters from the
// closed trade journal and prints the resulting reliability table.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"forex-smc-engine/internal/calibrator"
	"forex-smc-engine/internal/database"
	"forex-smc-engine/internal/logging"
)

func main() {
	db, err := database.NewDB(database.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Database: getEnv("DB_NAME", "smc_engine"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	logger := logging.New(getEnv("LOG_LEVEL", "info"), "console")

	calRepo := database.NewCalibrationRepository(db)
	cal := calibrator.New(calRepo, calRepo, logger)

	result, err := cal.Fit(ctx)
	if err != nil {
		fmt.Printf("Fit failed: %v\n", err)
		os.Exit(1)
	}

	if !result.Fitted {
		fmt.Printf("Not fitted: %s (%d trades available)\n", result.Reason, result.TrainingTrades)
		return
	}

	fmt.Println("Calibration fitted")
	fmt.Printf("  A:           %.4f\n", result.ParamA)
	fmt.Printf("  B:           %.4f\n", result.ParamB)
	fmt.Printf("  Trades:      %d\n", result.TrainingTrades)
	fmt.Printf("  Win rate:    %.1f%%\n", result.TrainingWinRate)
	fmt.Printf("  Brier score: %.4f", result.BrierScore)
	if result.BrierScore < 0.25 {
		fmt.Println("  (good)")
	} else {
		fmt.Println("  (poor, needs more data)")
	}

	fmt.Println("\nRaw -> calibrated confidence:")
	for _, raw := range []int{30, 45, 60, 68, 82, 92} {
		fmt.Printf("  %3d -> %3d\n", raw, cal.Calibrate(raw))
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return fallback
}
