package liquidity

import "forex-smc-engine/internal/market"

// Session names tracked for session high/low levels.
const (
	SessionAsian  = "asian"
	SessionLondon = "london"
	SessionNY     = "ny"
)

// SessionLevel tracks the high/low extremes of one trading session.
type SessionLevel struct {
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	HighIdx int     `json:"high_idx"`
	LowIdx  int     `json:"low_idx"`
}

// sessionWindow is a fixed UTC hour window. Windows may overlap
// (London opens before Asia closes, NY before London closes).
type sessionWindow struct {
	name       string
	start, end int
}

var sessionWindows = []sessionWindow{
	{SessionAsian, 0, 8},
	{SessionLondon, 7, 16},
	{SessionNY, 12, 21},
}

// DetectSessionLevels tracks session highs and lows across the candle
// series. A candle belongs to every session whose UTC window contains its
// hour. Sessions with no candles are omitted from the result.
func DetectSessionLevels(candles []market.Candle) map[string]SessionLevel {
	type acc struct {
		high, low       float64
		highIdx, lowIdx int
		seen            bool
	}
	accs := make(map[string]*acc, len(sessionWindows))
	for _, w := range sessionWindows {
		accs[w.name] = &acc{highIdx: -1, lowIdx: -1}
	}

	for i, candle := range candles {
		if candle.Time.IsZero() {
			continue
		}
		hour := candle.Time.UTC().Hour()

		for _, w := range sessionWindows {
			if hour < w.start || hour >= w.end {
				continue
			}
			a := accs[w.name]
			if !a.seen || candle.High > a.high {
				a.high = candle.High
				a.highIdx = i
			}
			if !a.seen || candle.Low < a.low {
				a.low = candle.Low
				a.lowIdx = i
			}
			a.seen = true
		}
	}

	result := make(map[string]SessionLevel)
	for name, a := range accs {
		if a.seen {
			result[name] = SessionLevel{High: a.high, Low: a.low, HighIdx: a.highIdx, LowIdx: a.lowIdx}
		}
	}
	return result
}
