package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCurve() Curve {
	return Curve{
		TierSize:        10_000,
		BasePrice:       0.01,
		Increment:       0.01,
		SettlementScale: 9,
	}
}

func TestPriceAtTierBoundaries(t *testing.T) {
	curve := testCurve()

	// 25,000 units sold lands in the third tier (tier index 2).
	quote, err := curve.PriceAt(25_000, 164)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), quote.Tier)
	assert.InDelta(t, 0.03, quote.UnitPriceRef, 1e-12)
	assert.Equal(t, uint64(5_000), quote.UnitsLeftInTier)
	assert.InDelta(t, 0.04, quote.NextUnitPriceRef, 1e-12)

	// 0.03 USD at 164 USD/SOL.
	assert.InDelta(t, 0.03/164.0, quote.UnitPrice, 1e-9)
}

func TestSettlementAmountExample(t *testing.T) {
	curve := testCurve()

	quote, err := curve.PriceAt(25_000, 164)
	require.NoError(t, err)

	// 100 units * 0.03 / 164 ≈ 0.0183 SOL.
	total := curve.SettlementAmount(100, quote.UnitPrice)
	assert.InDelta(t, 0.0183, total, 1e-4)
	t.Logf("settlement for 100 units: %.9f SOL", total)
}

func TestPriceMonotonicAndConstantWithinTier(t *testing.T) {
	curve := testCurve()

	var prev float64
	for _, cum := range []uint64{0, 1, 9_999, 10_000, 15_000, 19_999, 20_000, 100_000} {
		quote, err := curve.PriceAt(cum, 164)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, quote.UnitPriceRef, prev,
			"price must be non-decreasing in cumulative volume")
		prev = quote.UnitPriceRef
	}

	// Constant anywhere inside a single tier window.
	lo, _ := curve.PriceAt(10_000, 164)
	mid, _ := curve.PriceAt(14_500, 164)
	hi, _ := curve.PriceAt(19_999, 164)
	assert.Equal(t, lo.UnitPriceRef, mid.UnitPriceRef)
	assert.Equal(t, mid.UnitPriceRef, hi.UnitPriceRef)
}

func TestPriceAtFailsClosedOnBadRate(t *testing.T) {
	curve := testCurve()

	for _, rate := range []float64{0, -1} {
		_, err := curve.PriceAt(1_000, rate)
		assert.ErrorIs(t, err, ErrInvalidRate)
	}
}
