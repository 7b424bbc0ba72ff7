package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiplatform/internal/common/money"
)

func testCard() *RateCard {
	return &RateCard{
		CarrierID: "carrier-1",
		Currency:  money.INR,
		SlabGrams: 500,
		Rates: map[Zone]ZoneRate{
			ZoneA: {BaseMinor: 3000, AdditionalMinor: 2000},
			ZoneD: {BaseMinor: 7000, AdditionalMinor: 6000},
		},
		CODFeeMinor:       2500,
		CODPercentBasis:   150, // 1.5%
		VolumetricDivisor: 5000,
	}
}

func TestPriceQuoteSingleSlab(t *testing.T) {
	q, err := testCard().PriceQuote(QuoteRequest{WeightGrams: 400, Zone: ZoneA})
	require.NoError(t, err)
	assert.Equal(t, 400, q.ChargeableWeightGrams)
	assert.Equal(t, int64(3000), q.Freight.AmountMinor)
	assert.True(t, q.CODFee.IsZero())
	assert.Equal(t, int64(3000), q.Total.AmountMinor)
}

func TestPriceQuoteRoundsSlabsUp(t *testing.T) {
	// 1.2kg in 500g slabs is 3 slabs: base + 2 additional.
	q, err := testCard().PriceQuote(QuoteRequest{WeightGrams: 1200, Zone: ZoneD})
	require.NoError(t, err)
	assert.Equal(t, int64(7000+2*6000), q.Freight.AmountMinor)

	// Exactly on a slab boundary: 1kg is 2 slabs.
	q, err = testCard().PriceQuote(QuoteRequest{WeightGrams: 1000, Zone: ZoneD})
	require.NoError(t, err)
	assert.Equal(t, int64(7000+6000), q.Freight.AmountMinor)
}

func TestPriceQuoteUsesVolumetricWeightWhenHeavier(t *testing.T) {
	// 30x30x30cm at divisor 5000 is 5.4kg volumetric.
	q, err := testCard().PriceQuote(QuoteRequest{
		WeightGrams: 1000,
		Dimensions:  &Dimensions{LengthCM: 30, WidthCM: 30, HeightCM: 30},
		Zone:        ZoneA,
	})
	require.NoError(t, err)
	assert.Equal(t, 5400, q.ChargeableWeightGrams)

	// Small box: actual weight dominates.
	q, err = testCard().PriceQuote(QuoteRequest{
		WeightGrams: 1000,
		Dimensions:  &Dimensions{LengthCM: 10, WidthCM: 10, HeightCM: 10},
		Zone:        ZoneA,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, q.ChargeableWeightGrams)
}

func TestPriceQuoteCODFeeTakesLargerOfFlatAndPercent(t *testing.T) {
	// 1.5% of 1000.00 INR (100000 minor) = 1500 minor < flat 2500.
	q, err := testCard().PriceQuote(QuoteRequest{WeightGrams: 400, Zone: ZoneA, COD: true, OrderValueMinor: 100_000})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), q.CODFee.AmountMinor)

	// 1.5% of 5000.00 INR = 7500 minor > flat.
	q, err = testCard().PriceQuote(QuoteRequest{WeightGrams: 400, Zone: ZoneA, COD: true, OrderValueMinor: 500_000})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), q.CODFee.AmountMinor)
	assert.Equal(t, int64(3000+7500), q.Total.AmountMinor)
}

func TestPriceQuoteRejectsBadInput(t *testing.T) {
	_, err := testCard().PriceQuote(QuoteRequest{WeightGrams: 0, Zone: ZoneA})
	assert.Error(t, err)

	_, err = testCard().PriceQuote(QuoteRequest{WeightGrams: 500, Zone: ZoneE})
	assert.Error(t, err, "unpriced zone must be rejected")
}
