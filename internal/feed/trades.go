package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"razor/internal/config"
	"razor/internal/recorder"
	"razor/pkg/types"
)

const (
	tradeDedupCap  = 20000
	tradePollBurst = 1
)

// TradePoller polls an HTTP trades endpoint per market on a fixed interval,
// normalizing rows into TradeTicks with local-ingest timestamps.
//
// Adapted from the teacher's market.Scanner: the paginated resty fetch
// (fetchMarkets) generalizes here to a single-page per-market trade fetch,
// and the ticker-driven Run(ctx) loop is the same shape. Per-market
// throttling uses golang.org/x/time/rate in place of the teacher's
// exchange.TokenBucket, since a misconfigured short interval across many
// markets must not storm the exchange. run.takerOnly is forwarded verbatim
// as the /trades endpoint's own takerOnly query parameter rather than
// filtered client-side, since the upstream API already distinguishes maker
// and taker rows of the same fill.
type TradePoller struct {
	http    *resty.Client
	limiter *rate.Limiter

	defs       []types.MarketDef
	knownLegs  map[string]map[string]bool // market_id -> token_id -> true
	pollLimit  int
	pollEvery  time.Duration
	takerOnly  bool

	tradesLog *recorder.TableWriter
	dedup     *dedupSet

	outCh    chan<- types.TradeTick
	healthCh chan<- HealthEvent

	logger *slog.Logger

	duplicatesDropped int
	queueDrops        int
}

// NewTradePoller creates a poller for the given market definitions.
func NewTradePoller(baseURL string, cfg config.RunConfig, defs []types.MarketDef, tradesLog *recorder.TableWriter, outCh chan<- types.TradeTick, healthCh chan<- HealthEvent, logger *slog.Logger) *TradePoller {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	known := make(map[string]map[string]bool, len(defs))
	for _, d := range defs {
		m := make(map[string]bool, len(d.TokenIDs))
		for _, t := range d.TokenIDs {
			m[t] = true
		}
		known[d.MarketID] = m
	}

	everyPerMarket := rate.Every(cfg.PollInterval())

	return &TradePoller{
		http:      client,
		limiter:   rate.NewLimiter(everyPerMarket*rate.Limit(max(len(defs), 1)), tradePollBurst*max(len(defs), 1)),
		defs:      defs,
		knownLegs: known,
		pollLimit: cfg.TradePollLimit,
		pollEvery: cfg.PollInterval(),
		takerOnly: cfg.TakerOnly,
		tradesLog: tradesLog,
		dedup:     newDedupSet(tradeDedupCap),
		outCh:     outCh,
		healthCh:  healthCh,
		logger:    logger.With("component", "feed_trades"),
	}
}

// Run polls every configured market on pollEvery until ctx is cancelled.
// Missed-tick policy is "delay": a ticker that falls behind simply ticks
// once on the next interval rather than replaying a burst.
func (p *TradePoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, def := range p.defs {
				p.pollMarket(ctx, def)
			}
		}
	}
}

func (p *TradePoller) pollMarket(ctx context.Context, def types.MarketDef) {
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	var rows []wireTrade
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"market":    def.MarketID,
			"limit":     strconv.Itoa(p.pollLimit),
			"takerOnly": strconv.FormatBool(p.takerOnly),
		}).
		SetResult(&rows).
		Get("/trades")
	if err != nil {
		p.logger.Warn("trade poll failed", "market", def.MarketID, "error", err)
		p.emitHealth("trade_poll_error", err.Error())
		return
	}
	if resp.StatusCode() != 200 {
		p.logger.Warn("trade poll non-200", "market", def.MarketID, "status", resp.StatusCode())
		p.emitHealth("trade_poll_error", fmt.Sprintf("status %d", resp.StatusCode()))
		return
	}

	if len(rows) >= p.pollLimit {
		p.emitHealth("TradePollHitLimit", fmt.Sprintf("market=%s limit=%d", def.MarketID, p.pollLimit))
	}

	for _, row := range rows {
		p.ingest(def, row)
	}
}

func (p *TradePoller) ingest(def types.MarketDef, row wireTrade) {
	knownTokens := p.knownLegs[def.MarketID]
	if !knownTokens[row.AssetID] {
		return // not a known leg of this market
	}
	if !row.Price.valid || !row.Size.valid {
		return
	}

	tradeID := row.ID
	if tradeID == "" {
		tradeID = deriveTradeID(def.MarketID, row.AssetID, row.Price.value, row.Size.value, row.Timestamp, row.TakerOrder)
	}
	if p.dedup.seenOrMark(tradeID) {
		p.duplicatesDropped++
		return
	}

	nowMs := time.Now().UnixMilli()
	tick := types.TradeTick{
		TsMs:         nowMs,
		IngestTsMs:   nowMs,
		ExchangeTsMs: row.Timestamp,
		MarketID:     def.MarketID,
		TokenID:      row.AssetID,
		Price:        row.Price.value,
		Size:         row.Size.value,
		TradeID:      tradeID,
	}

	if p.tradesLog != nil {
		r := []string{
			strconv.FormatInt(tick.TsMs, 10),
			strconv.FormatInt(tick.IngestTsMs, 10),
			strconv.FormatInt(tick.ExchangeTsMs, 10),
			tick.MarketID,
			tick.TokenID,
			strconv.FormatFloat(tick.Price, 'f', 6, 64),
			strconv.FormatFloat(tick.Size, 'f', 6, 64),
			tick.TradeID,
		}
		if err := p.tradesLog.WriteRow(r); err != nil {
			p.logger.Error("trades.csv write failed", "error", err)
		}
	}

	select {
	case p.outCh <- tick:
	default:
		p.queueDrops++
		p.logger.Warn("trade queue full, dropping tick", "market", tick.MarketID, "trade_id", tick.TradeID)
	}
}

func (p *TradePoller) emitHealth(kind, detail string) {
	if p.healthCh == nil {
		return
	}
	evt := HealthEvent{TsMs: time.Now().UnixMilli(), Kind: kind, Detail: detail}
	select {
	case p.healthCh <- evt:
	default:
	}
}

// DuplicatesDropped returns the count of trade ticks dropped as duplicates.
func (p *TradePoller) DuplicatesDropped() int { return p.duplicatesDropped }

// QueueDrops returns the count of trade ticks dropped due to a full output
// queue (backpressure).
func (p *TradePoller) QueueDrops() int { return p.queueDrops }

// deriveTradeID builds a stable deterministic ID via FNV-1a over a
// canonical join of trade-identifying fields, used when the exchange
// response omits its own trade ID so retried polls still dedup correctly.
func deriveTradeID(marketID, tokenID string, price, size float64, ts int64, taker string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%.8f|%.8f|%d|%s", marketID, tokenID, price, size, ts, taker)
	return strconv.FormatUint(h.Sum64(), 16)
}

// dedupSet is an LRU-bounded set of recently seen trade IDs.
type dedupSet struct {
	cap   int
	order []string
	seen  map[string]struct{}
}

func newDedupSet(cap int) *dedupSet {
	return &dedupSet{cap: cap, seen: make(map[string]struct{}, cap)}
}

// seenOrMark reports whether id was already seen, marking it seen either way.
func (d *dedupSet) seenOrMark(id string) bool {
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return false
}
