package liquidity

import "forex-smc-engine/internal/market"

// SweepDirection identifies which side of liquidity was taken.
type SweepDirection string

const (
	BuysideSweep  SweepDirection = "BUYSIDE_SWEEP"
	SellsideSweep SweepDirection = "SELLSIDE_SWEEP"
)

// SweepScope selects which levels DetectSweep considers.
type SweepScope string

const (
	// ScopeLondon checks London session extremes plus swing/equal levels.
	ScopeLondon SweepScope = "london"
	// ScopeLondonNY additionally checks NY session extremes.
	ScopeLondonNY SweepScope = "london_ny"
	// ScopeAny checks all session extremes plus swing/equal levels.
	ScopeAny SweepScope = "any"
)

// minSweepPips is the minimum penetration beyond a level for a valid sweep.
const minSweepPips = 1.0

// Sweep is a detected liquidity sweep: price pierced a level and closed
// back on the origin side.
type Sweep struct {
	Level             Level          `json:"level"`
	CandleIndex       int            `json:"candle_index"`
	Direction         SweepDirection `json:"direction"`
	ReversalConfirmed bool           `json:"reversal_confirmed"`
	Session           string         `json:"session,omitempty"`
	DepthPips         float64        `json:"depth_pips"`
}

// DetectSweep scans the most recent `lookback` candles for a
// pierce-and-reject pattern against the candidate levels in scope.
//
// A buyside sweep needs a wick above the level with the close back below
// it (sellside mirrored), penetrating at least one pip. Reversal is
// confirmed by the next candle's direction, or by the piercing candle's
// own direction when it is the last bar. Among qualifying candles the most
// recent wins; at most one sweep is returned.
func DetectSweep(candles []market.Candle, liqMap Map, sessions map[string]SessionLevel, scope SweepScope, instrument string, lookback int) *Sweep {
	if len(candles) < 3 {
		return nil
	}

	pip := market.PipValue(instrument)
	levels := candidateLevels(liqMap, sessions, scope)

	// lookback <= 0 scans the whole series
	startIdx := 0
	if lookback > 0 && len(candles) > lookback {
		startIdx = len(candles) - lookback
	}

	var best *Sweep

	for _, level := range levels {
		for i := len(candles) - 1; i > startIdx; i-- {
			candle := candles[i]

			switch level.Side {
			case Buyside:
				if candle.High > level.Price && candle.Close < level.Price {
					depth := (candle.High - level.Price) / pip
					if depth < minSweepPips {
						continue
					}
					sweep := &Sweep{
						Level:             level,
						CandleIndex:       i,
						Direction:         BuysideSweep,
						ReversalConfirmed: reversalConfirmed(candles, i, false),
						DepthPips:         depth,
					}
					if best == nil || i > best.CandleIndex {
						best = sweep
					}
				}
			case Sellside:
				if candle.Low < level.Price && candle.Close > level.Price {
					depth := (level.Price - candle.Low) / pip
					if depth < minSweepPips {
						continue
					}
					sweep := &Sweep{
						Level:             level,
						CandleIndex:       i,
						Direction:         SellsideSweep,
						ReversalConfirmed: reversalConfirmed(candles, i, true),
						DepthPips:         depth,
					}
					if best == nil || i > best.CandleIndex {
						best = sweep
					}
				}
			}
		}
	}

	return best
}

// reversalConfirmed checks whether the candle after the sweep moved in the
// reversal direction. On the last bar the piercing candle's own direction
// is used instead.
func reversalConfirmed(candles []market.Candle, sweepIdx int, bullish bool) bool {
	if sweepIdx+1 < len(candles) {
		next := candles[sweepIdx+1]
		if bullish {
			return next.IsBullish()
		}
		return next.IsBearish()
	}
	c := candles[sweepIdx]
	if bullish {
		return c.IsBullish()
	}
	return c.IsBearish()
}

// candidateLevels assembles the levels to test for sweeps based on scope.
func candidateLevels(liqMap Map, sessions map[string]SessionLevel, scope SweepScope) []Level {
	var levels []Level

	addSession := func(name string, strength int) {
		sl, ok := sessions[name]
		if !ok {
			return
		}
		levels = append(levels,
			Level{Price: sl.High, Side: Buyside, Source: SourceSession, Strength: strength},
			Level{Price: sl.Low, Side: Sellside, Source: SourceSession, Strength: strength},
		)
	}

	switch scope {
	case ScopeLondon:
		addSession(SessionLondon, 2)
	case ScopeLondonNY:
		addSession(SessionLondon, 2)
		addSession(SessionNY, 2)
	case ScopeAny:
		addSession(SessionLondon, 2)
		addSession(SessionNY, 2)
		addSession(SessionAsian, 1)
	}

	for _, level := range liqMap.Buyside {
		if level.Source == SourceSwing || level.Source == SourceEqualHighs {
			levels = append(levels, level)
		}
	}
	for _, level := range liqMap.Sellside {
		if level.Source == SourceSwing || level.Source == SourceEqualLows {
			levels = append(levels, level)
		}
	}

	return levels
}
