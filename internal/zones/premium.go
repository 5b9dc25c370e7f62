package zones

import "math"

// Zone classification of price position within a swing range.
type Zone string

const (
	ZonePremium     Zone = "PREMIUM"     // Upper part of range: sell zone
	ZoneDiscount    Zone = "DISCOUNT"    // Lower part of range: buy zone
	ZoneEquilibrium Zone = "EQUILIBRIUM" // Middle: no-trade zone
	ZoneUnknown     Zone = "UNKNOWN"     // Degenerate range
)

// PremiumDiscount describes where current price sits within the
// swing-high/swing-low range.
type PremiumDiscount struct {
	Zone        Zone    `json:"zone"`
	Percentage  float64 `json:"percentage"` // Position within range, 0-100
	Equilibrium float64 `json:"equilibrium"`
	SwingHigh   float64 `json:"swing_high"`
	SwingLow    float64 `json:"swing_low"`
}

// CalculatePremiumDiscount classifies current price within the range.
// Position >= 55% is premium, <= 45% discount, between is equilibrium.
// A degenerate range (high <= low) yields UNKNOWN at 50%.
func CalculatePremiumDiscount(swingHigh, swingLow, currentPrice float64) PremiumDiscount {
	if swingHigh <= swingLow {
		return PremiumDiscount{Zone: ZoneUnknown, Percentage: 50}
	}

	rangeSize := swingHigh - swingLow
	position := (currentPrice - swingLow) / rangeSize * 100
	equilibrium := swingLow + rangeSize*0.5

	var zone Zone
	switch {
	case position >= 55:
		zone = ZonePremium
	case position <= 45:
		zone = ZoneDiscount
	default:
		zone = ZoneEquilibrium
	}

	return PremiumDiscount{
		Zone:        zone,
		Percentage:  math.Round(position*10) / 10,
		Equilibrium: equilibrium,
		SwingHigh:   swingHigh,
		SwingLow:    swingLow,
	}
}
