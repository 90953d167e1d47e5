// Package units defines the strongly-typed basis-point scalar used for all
// fee, edge, and premium arithmetic in Razor. Prices and quantities stay in
// float64; only fee-like quantities live in Bps, and arithmetic among Bps
// values is integer. The price conversions (FromPriceCost/FromPriceProceeds)
// and the price adjustments (ApplyCost/ApplyProceeds) operate on float64
// prices.
package units

import "math"

// Bps is a signed basis-point value: 1 Bps = 1/10000.
type Bps int64

const (
	Zero              Bps = 0
	OneHundredPercent Bps = 10000
	FeePoly           Bps = 200
	FeeMerge          Bps = 10
)

// FromPriceCost converts a unit-interval price to Bps, rounding up
// (conservative high). Used on the cost/threshold side.
func FromPriceCost(p float64) Bps {
	return clamp(Bps(math.Ceil(p * 10000)))
}

// FromPriceProceeds converts a unit-interval price to Bps, rounding down
// (conservative low). Used for realized proceeds.
func FromPriceProceeds(p float64) Bps {
	return clamp(Bps(math.Floor(p * 10000)))
}

func clamp(b Bps) Bps {
	if b < Zero {
		return Zero
	}
	if b > OneHundredPercent {
		return OneHundredPercent
	}
	return b
}

// ApplyCost scales a price upward by (1 + bps/10000). Used to apply a cost
// fee (e.g. the taker-poly fee) on top of a limit price.
func ApplyCost(bps Bps, p float64) float64 {
	return p * (1 + float64(bps)/float64(OneHundredPercent))
}

// ApplyProceeds scales a price downward by (1 - bps/10000). Used to apply a
// proceeds fee (e.g. the merge fee) against a realized price.
func ApplyProceeds(bps Bps, p float64) float64 {
	return p * (1 - float64(bps)/float64(OneHundredPercent))
}

// Int64 returns the raw integer value.
func (b Bps) Int64() int64 { return int64(b) }
