package analyzer

import (
	"strings"

	"forex-smc-engine/internal/liquidity"
)

// Profile holds per-instrument risk and session presets.
type Profile struct {
	Instrument      string               `json:"instrument"`
	MaxSLPips       float64              `json:"max_sl_pips"`
	MinSLPips       float64              `json:"min_sl_pips"`
	SLATRMultiplier float64              `json:"sl_atr_multiplier"`
	TargetRR        float64              `json:"target_rr"`
	SweepScope      liquidity.SweepScope `json:"sweep_scope"`
}

// GetProfile returns the risk profile for an instrument. Metals and crypto
// CFDs get wider stops than FX majors.
func GetProfile(instrument string) Profile {
	p := Profile{
		Instrument:      instrument,
		MaxSLPips:       30.0,
		MinSLPips:       12.0,
		SLATRMultiplier: 1.5,
		TargetRR:        2.0,
		SweepScope:      liquidity.ScopeLondonNY,
	}

	switch {
	case strings.Contains(instrument, "XAU"):
		p.MaxSLPips = 50.0
		p.MinSLPips = 20.0
	case strings.Contains(instrument, "BTC"), strings.Contains(instrument, "ETH"):
		p.MaxSLPips = 80.0
		p.MinSLPips = 25.0
		p.SweepScope = liquidity.ScopeAny
	case strings.Contains(instrument, "JPY"):
		p.MaxSLPips = 35.0
	}

	return p
}
