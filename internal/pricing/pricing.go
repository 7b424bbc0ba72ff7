// Package pricing computes shipping charges from a weight/zone/slab rate
// card. Quotes feed the wallet ledger as shipment debits and the billing
// reconciler as expected amounts.
package pricing

import (
	"fmt"
	"math"

	"logiplatform/internal/common/money"
)

// Zone is a carrier delivery zone, ordered cheapest to most expensive.
type Zone string

const (
	ZoneA Zone = "A" // intra-city
	ZoneB Zone = "B" // intra-state
	ZoneC Zone = "C" // metro to metro
	ZoneD Zone = "D" // rest of country
	ZoneE Zone = "E" // special/remote
)

// ZoneRate prices one zone: a base charge for the first weight slab and an
// additional charge per further slab, rounded up.
type ZoneRate struct {
	BaseMinor       int64 `json:"base_minor"`
	AdditionalMinor int64 `json:"additional_minor"`
}

// RateCard is a carrier's slab-based price table.
type RateCard struct {
	CarrierID string            `json:"carrier_id"`
	Currency  money.Currency    `json:"currency"`
	// SlabGrams is the billing weight increment; the base rate covers the
	// first slab.
	SlabGrams int               `json:"slab_grams"`
	Rates     map[Zone]ZoneRate `json:"rates"`
	// CODFeeMinor is a flat fee added for cash-on-delivery shipments.
	CODFeeMinor int64 `json:"cod_fee_minor"`
	// CODPercentBasis is an ad valorem COD fee in basis points of the order
	// value; the larger of the flat and percent fee applies.
	CODPercentBasis int64 `json:"cod_percent_basis"`
	// VolumetricDivisor converts cm³ to grams (industry standard 5000).
	VolumetricDivisor int `json:"volumetric_divisor"`
}

// Dimensions are package measurements in centimeters.
type Dimensions struct {
	LengthCM float64 `json:"length_cm"`
	WidthCM  float64 `json:"width_cm"`
	HeightCM float64 `json:"height_cm"`
}

// QuoteRequest describes one shipment to price.
type QuoteRequest struct {
	WeightGrams int        `json:"weight_grams"`
	Dimensions  *Dimensions `json:"dimensions,omitempty"`
	Zone        Zone       `json:"zone"`
	COD         bool       `json:"cod"`
	// OrderValueMinor is required for percent-based COD fees.
	OrderValueMinor int64 `json:"order_value_minor"`
}

// Quote is the priced result.
type Quote struct {
	ChargeableWeightGrams int         `json:"chargeable_weight_grams"`
	Freight               money.Money `json:"freight"`
	CODFee                money.Money `json:"cod_fee"`
	Total                 money.Money `json:"total"`
}

// ChargeableWeight returns the billed weight: the greater of actual and
// volumetric weight.
func (rc *RateCard) ChargeableWeight(req QuoteRequest) int {
	weight := req.WeightGrams
	if req.Dimensions != nil {
		divisor := rc.VolumetricDivisor
		if divisor <= 0 {
			divisor = 5000
		}
		volCM3 := req.Dimensions.LengthCM * req.Dimensions.WidthCM * req.Dimensions.HeightCM
		volumetric := int(math.Ceil(volCM3 / float64(divisor) * 1000))
		if volumetric > weight {
			weight = volumetric
		}
	}
	return weight
}

// PriceQuote prices a shipment against the rate card.
func (rc *RateCard) PriceQuote(req QuoteRequest) (*Quote, error) {
	if req.WeightGrams <= 0 {
		return nil, fmt.Errorf("weight must be positive")
	}
	rate, ok := rc.Rates[req.Zone]
	if !ok {
		return nil, fmt.Errorf("no rate for zone %s", req.Zone)
	}
	slab := rc.SlabGrams
	if slab <= 0 {
		return nil, fmt.Errorf("rate card slab weight not set")
	}

	weight := rc.ChargeableWeight(req)
	slabs := (weight + slab - 1) / slab

	freightMinor := rate.BaseMinor
	if slabs > 1 {
		freightMinor += int64(slabs-1) * rate.AdditionalMinor
	}

	var codMinor int64
	if req.COD {
		codMinor = rc.CODFeeMinor
		if rc.CODPercentBasis > 0 {
			percent := req.OrderValueMinor * rc.CODPercentBasis / 10_000
			if percent > codMinor {
				codMinor = percent
			}
		}
	}

	return &Quote{
		ChargeableWeightGrams: weight,
		Freight:               money.New(freightMinor, rc.Currency),
		CODFee:                money.New(codMinor, rc.Currency),
		Total:                 money.New(freightMinor+codMinor, rc.Currency),
	}, nil
}
