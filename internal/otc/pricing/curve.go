// internal/otc/pricing/curve.go
package pricing

import (
	"errors"
	"math"
)

// Curve is a step bonding curve: the unit price is constant within a
// tier of TierSize units and rises by Increment at every tier boundary.
// Prices are expressed in the reference currency (USD).
type Curve struct {
	TierSize  uint64
	BasePrice float64
	Increment float64
	// SettlementScale is the number of decimal places settlement
	// amounts are rounded to. 9 matches lamport resolution.
	SettlementScale int
}

// Quote is the price of the next unit at a given point on the curve.
type Quote struct {
	Tier             uint64
	UnitPriceRef     float64 // reference currency per unit
	UnitPrice        float64 // settlement currency (SOL) per unit
	UnitsLeftInTier  uint64
	NextUnitPriceRef float64
}

var ErrInvalidRate = errors.New("reference exchange rate must be positive")

// PriceAt returns the current quote as a pure function of cumulative
// units sold. A missing or zero exchange rate fails closed: no price is
// ever silently quoted as zero.
func (c Curve) PriceAt(cumulativeUnitsSold uint64, refToSettlementRate float64) (Quote, error) {
	if refToSettlementRate <= 0 || math.IsNaN(refToSettlementRate) || math.IsInf(refToSettlementRate, 0) {
		return Quote{}, ErrInvalidRate
	}

	tier := cumulativeUnitsSold / c.TierSize
	refPrice := c.BasePrice + float64(tier)*c.Increment
	nextRefPrice := c.BasePrice + float64(tier+1)*c.Increment

	return Quote{
		Tier:             tier,
		UnitPriceRef:     refPrice,
		UnitPrice:        c.Round(refPrice / refToSettlementRate),
		UnitsLeftInTier:  (tier+1)*c.TierSize - cumulativeUnitsSold,
		NextUnitPriceRef: nextRefPrice,
	}, nil
}

// SettlementAmount is the total cost of tokenAmount units at the quoted
// unit price, rounded to the configured precision. Computed exactly
// once at quote time; the stored value is never re-derived.
func (c Curve) SettlementAmount(tokenAmount uint64, unitPrice float64) float64 {
	return c.Round(float64(tokenAmount) * unitPrice)
}

// Round rounds v to the curve's settlement precision.
func (c Curve) Round(v float64) float64 {
	scale := math.Pow10(c.SettlementScale)
	return math.Round(v*scale) / scale
}
