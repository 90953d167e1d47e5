// Package shadow owns the pending-signal queue and the trade store,
// reconstructing matched-set and residual-dump PnL for each signal purely
// from its frozen accounting anchors plus observed trade volume — never
// from the live book.
//
// The settlement-ticker-over-a-pending-list shape is modeled on the
// teacher's risk.Manager.Run (internal/risk/manager.go): a goroutine that
// aggregates inbound reports (here, signals and trade ticks) and acts on
// a periodic tick, generalized from kill-switch evaluation to settlement.
package shadow

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"time"

	"razor/internal/config"
	"razor/internal/reasons"
	"razor/internal/tradestore"
	"razor/pkg/types"
	"razor/pkg/units"
)

const settlementTickInterval = 50 * time.Millisecond

// dumpPenaltyFactor is the "5% penalty" applied to best_bid_at_signal when
// computing the residual-dump exit price.
const dumpPenaltyFactor = 0.95

// legBreakSetRatioFloor is the set_ratio threshold below which a
// settlement is annotated LEG_BREAK.
const legBreakSetRatioFloor = 0.85

// Row is one fully-computed settlement, matching shadow_log.csv's frozen
// schema.
type Row struct {
	RunID          string
	SchemaVersion  int
	SignalID       string
	SignalTsMs     int64
	WindowStartMs  int64
	WindowEndMs    int64
	MarketID       string
	Strategy       types.Strategy
	Bucket         types.Bucket
	WorstLegToken  string
	QReq           float64
	LegsN          int
	QSet           float64
	Legs           []LegRow
	CostSet        float64
	ProceedsSet    float64
	PnlSet         float64
	PnlLeftTotal   float64
	TotalPnl       float64
	QFillAvg       float64
	SetRatio       float64
	FillShareP25   float64
	DumpSlippage   float64
	RiskPremiumBps units.Bps
	ExpectedNetBps units.Bps
	Notes          string
}

// LegRow is the per-leg settlement detail embedded in a Row.
type LegRow struct {
	TokenID string
	PLimit  float64
	BestBid float64
	VMkt    float64
	QFill   float64
	QLeft   float64
	Exit    float64
	PnlLeft float64
}

// pendingItem is one signal awaiting its settlement deadline, ordered by
// deadline with signal_id as tiebreak per the spec's ordering guarantee.
type pendingItem struct {
	signal   types.Signal
	deadline int64 // signal_ts_ms + window_end_ms
	index    int   // heap bookkeeping
}

type pendingQueue []*pendingItem

func (q pendingQueue) Len() int { return len(q) }
func (q pendingQueue) Less(i, j int) bool {
	if q[i].deadline != q[j].deadline {
		return q[i].deadline < q[j].deadline
	}
	return q[i].signal.SignalID < q[j].signal.SignalID
}
func (q pendingQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *pendingQueue) Push(x any) {
	item := x.(*pendingItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Shadow settles pending signals against the trade store on a 50ms timer.
type Shadow struct {
	cfg    config.ShadowConfig
	store  *tradestore.Store
	logger *slog.Logger

	pending pendingQueue

	rowsWritten int
}

// New creates a Shadow accounting engine backed by store.
func New(cfg config.ShadowConfig, store *tradestore.Store, logger *slog.Logger) *Shadow {
	return &Shadow{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "shadow"),
	}
}

// RowsWritten returns how many settlement rows have been produced so far.
func (s *Shadow) RowsWritten() int { return s.rowsWritten }

// Enqueue adds a signal to the pending list, to be settled once its
// window has elapsed.
func (s *Shadow) Enqueue(sig types.Signal) {
	heap.Push(&s.pending, &pendingItem{
		signal:   sig,
		deadline: sig.SignalTsMs + int64(s.cfg.WindowEndMs),
	})
}

// Run reads trade ticks (forwarded into the trade store) and signals
// (enqueued as pending) until ctx is done, settling elapsed signals on
// every settlement tick and writing each result row via emit.
func (s *Shadow) Run(ctx context.Context, tradeCh <-chan types.TradeTick, signalCh <-chan types.Signal, emit func(Row)) {
	ticker := time.NewTicker(settlementTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainElapsed(time.Now().UnixMilli(), emit)
			return

		case tick, ok := <-tradeCh:
			if !ok {
				tradeCh = nil
				continue
			}
			s.store.Push(tick)

		case sig, ok := <-signalCh:
			if !ok {
				signalCh = nil
				continue
			}
			s.Enqueue(sig)

		case <-ticker.C:
			s.drainElapsed(time.Now().UnixMilli(), emit)
		}
	}
}

// drainElapsed settles and emits every pending signal whose deadline has
// passed, in deadline order (heap order already guarantees this).
func (s *Shadow) drainElapsed(nowMs int64, emit func(Row)) {
	for s.pending.Len() > 0 {
		top := s.pending[0]
		if top.deadline > nowMs {
			return
		}
		item := heap.Pop(&s.pending).(*pendingItem)
		row := s.settle(item.signal)
		s.rowsWritten++
		emit(row)
	}
}

// settle computes the matched-set and residual-dump PnL for one signal,
// reading only the signal's frozen anchors and the trade store — never
// the live book.
func (s *Shadow) settle(sig types.Signal) Row {
	windowStart := sig.SignalTsMs + int64(s.cfg.WindowStartMs)
	windowEnd := sig.SignalTsMs + int64(s.cfg.WindowEndMs)

	var noteSet []reasons.Reason
	for _, r := range sig.BucketReasons {
		noteSet = append(noteSet, reasons.Reason(r))
	}

	legRows := make([]LegRow, len(sig.Legs))
	qFills := make([]float64, len(sig.Legs))
	var sumVMkt float64
	anyMissingBid := false

	for i, leg := range sig.Legs {
		vMkt := s.store.VolumeAtOrBetterPrice(sig.MarketID, leg.TokenID, windowStart, windowEnd, leg.LimitPrice)
		sumVMkt += vMkt

		qFill := min(sig.QReq, vMkt*sig.FillShareP25Used)
		qFills[i] = qFill

		legRows[i] = LegRow{
			TokenID: leg.TokenID,
			PLimit:  leg.LimitPrice,
			BestBid: leg.BestBidAtSignal,
			VMkt:    vMkt,
			QFill:   qFill,
		}
		if leg.BestBidAtSignal <= 0 {
			anyMissingBid = true
		}
	}

	qSet := minOf(qFills)

	var costSet, proceedsSet float64
	for _, leg := range sig.Legs {
		costSet += units.ApplyCost(units.FeePoly, leg.LimitPrice)
	}
	costSet *= qSet
	proceedsSet = qSet * units.ApplyProceeds(units.FeeMerge, 1.0)
	pnlSet := proceedsSet - costSet

	var pnlLeftTotal float64
	for i, leg := range sig.Legs {
		qLeft := qFills[i] - qSet
		var exit float64
		if leg.BestBidAtSignal > 0 {
			exit = leg.BestBidAtSignal * dumpPenaltyFactor
		} else {
			exit = 0
		}
		pnlLeft := qLeft * (units.ApplyProceeds(units.FeePoly, exit) - units.ApplyCost(units.FeePoly, leg.LimitPrice))

		legRows[i].QLeft = qLeft
		legRows[i].Exit = exit
		legRows[i].PnlLeft = pnlLeft
		pnlLeftTotal += pnlLeft
	}

	totalPnl := pnlSet + pnlLeftTotal
	qFillAvg := mean(qFills)
	setRatio := 0.0
	if qFillAvg > 0 {
		setRatio = qSet / qFillAvg
	}

	windowStats := s.store.WindowStats(sig.MarketID, windowStart, windowEnd)

	if sumVMkt == 0 {
		noteSet = append(noteSet, reasons.NoTrades)
	}
	if windowStats.Count == 0 {
		noteSet = append(noteSet, reasons.WindowEmpty)
	}
	if anyMissingBid {
		noteSet = append(noteSet, reasons.MissingBid)
	}
	if setRatio < legBreakSetRatioFloor {
		noteSet = append(noteSet, reasons.LegBreak)
	}

	return Row{
		RunID:          sig.RunID,
		SignalID:       sig.SignalID,
		SignalTsMs:     sig.SignalTsMs,
		WindowStartMs:  windowStart,
		WindowEndMs:    windowEnd,
		MarketID:       sig.MarketID,
		Strategy:       sig.Strategy,
		Bucket:         sig.Bucket,
		WorstLegToken:  sig.BucketMetrics.WorstLegToken,
		QReq:           sig.QReq,
		LegsN:          len(sig.Legs),
		QSet:           qSet,
		Legs:           legRows,
		CostSet:        costSet,
		ProceedsSet:    proceedsSet,
		PnlSet:         pnlSet,
		PnlLeftTotal:   pnlLeftTotal,
		TotalPnl:       totalPnl,
		QFillAvg:       qFillAvg,
		SetRatio:       setRatio,
		FillShareP25:   sig.FillShareP25Used,
		DumpSlippage:   dumpPenaltyFactor,
		RiskPremiumBps: sig.RiskPremiumBps,
		ExpectedNetBps: sig.ExpectedNetBps,
		Notes:          reasons.FormatNotes(dedupeReasons(noteSet)),
	}
}

func dedupeReasons(rs []reasons.Reason) []reasons.Reason {
	seen := make(map[reasons.Reason]struct{}, len(rs))
	var out []reasons.Reason
	for _, r := range rs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func minOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
