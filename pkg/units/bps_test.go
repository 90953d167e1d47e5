package units

import "testing"

func TestFromPriceCostGreaterOrEqualProceeds(t *testing.T) {
	t.Parallel()
	prices := []float64{0, 0.0001, 0.4, 0.55, 0.9999, 1.0}
	for _, p := range prices {
		cost := FromPriceCost(p)
		proceeds := FromPriceProceeds(p)
		if cost < proceeds {
			t.Errorf("p=%v: cost=%v < proceeds=%v", p, cost, proceeds)
		}
		if cost < Zero || cost > OneHundredPercent {
			t.Errorf("p=%v: cost=%v out of range", p, cost)
		}
		if proceeds < Zero || proceeds > OneHundredPercent {
			t.Errorf("p=%v: proceeds=%v out of range", p, proceeds)
		}
	}
}

func TestFromPriceCostRoundsUp(t *testing.T) {
	t.Parallel()
	if got := FromPriceCost(0.951); got != 9510 {
		t.Errorf("FromPriceCost(0.951) = %v, want 9510", got)
	}
	if got := FromPriceCost(0.9501); got != 9501 {
		t.Errorf("FromPriceCost(0.9501) = %v, want 9501", got)
	}
}

func TestFromPriceProceedsRoundsDown(t *testing.T) {
	t.Parallel()
	if got := FromPriceProceeds(0.9599); got != 9599 {
		t.Errorf("FromPriceProceeds(0.9599) = %v, want 9599", got)
	}
}

func TestSumAskExactlyOne(t *testing.T) {
	t.Parallel()
	cost := FromPriceCost(1.0)
	if cost != OneHundredPercent {
		t.Errorf("FromPriceCost(1.0) = %v, want %v", cost, OneHundredPercent)
	}
	edge := OneHundredPercent - cost
	if edge != 0 {
		t.Errorf("raw_edge_bps = %v, want 0", edge)
	}
}

func TestApplyCostAndProceeds(t *testing.T) {
	t.Parallel()
	got := ApplyCost(FeePoly, 0.40)
	want := 0.40 * 1.02
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("ApplyCost = %v, want %v", got, want)
	}

	got = ApplyProceeds(FeeMerge, 1.0)
	want = 1 * (1 - 0.001)
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("ApplyProceeds = %v, want %v", got, want)
	}
}

func TestClampOutOfRange(t *testing.T) {
	t.Parallel()
	if got := FromPriceCost(-1); got != Zero {
		t.Errorf("FromPriceCost(-1) = %v, want 0", got)
	}
	if got := FromPriceCost(2); got != OneHundredPercent {
		t.Errorf("FromPriceCost(2) = %v, want 10000", got)
	}
}
