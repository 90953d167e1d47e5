package shadow

import (
	"strconv"
)

// maxLegs bounds the per-leg columns in shadow_log.csv to a fixed, frozen
// width (binary=2, triangle=3 legs; unused leg columns are left blank).
const maxLegs = 3

// Header returns shadow_log.csv's frozen column header.
func Header() []string {
	h := []string{
		"run_id", "schema_version", "signal_id", "signal_ts_ms",
		"window_start_ms", "window_end_ms", "market_id", "strategy", "bucket",
		"worst_leg_token_id", "q_req", "legs_n", "q_set",
	}
	for i := 1; i <= maxLegs; i++ {
		p := "leg" + strconv.Itoa(i) + "_"
		h = append(h, p+"token_id", p+"p_limit", p+"best_bid", p+"v_mkt", p+"q_fill", p+"q_left", p+"exit", p+"pnl_left")
	}
	h = append(h,
		"cost_set", "proceeds_set", "pnl_set", "pnl_left_total", "total_pnl",
		"q_fill_avg", "set_ratio", "fill_share_p25_used", "dump_slippage_assumed",
		"risk_premium_bps", "expected_net_bps", "notes",
	)
	return h
}

// ToCSV renders one row to shadow_log.csv's frozen column order.
func (r Row) ToCSV() []string {
	row := []string{
		r.RunID, strconv.Itoa(r.SchemaVersion), r.SignalID, strconv.FormatInt(r.SignalTsMs, 10),
		strconv.FormatInt(r.WindowStartMs, 10), strconv.FormatInt(r.WindowEndMs, 10),
		r.MarketID, string(r.Strategy), string(r.Bucket),
		r.WorstLegToken, f(r.QReq), strconv.Itoa(r.LegsN), f(r.QSet),
	}
	for i := 0; i < maxLegs; i++ {
		if i < len(r.Legs) {
			l := r.Legs[i]
			row = append(row, l.TokenID, f(l.PLimit), f(l.BestBid), f(l.VMkt), f(l.QFill), f(l.QLeft), f(l.Exit), f(l.PnlLeft))
		} else {
			row = append(row, "", "", "", "", "", "", "", "")
		}
	}
	row = append(row,
		f(r.CostSet), f(r.ProceedsSet), f(r.PnlSet), f(r.PnlLeftTotal), f(r.TotalPnl),
		f(r.QFillAvg), f(r.SetRatio), f(r.FillShareP25), f(r.DumpSlippage),
		strconv.FormatInt(int64(r.RiskPremiumBps), 10), strconv.FormatInt(int64(r.ExpectedNetBps), 10),
		r.Notes,
	)
	return row
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}
