// Package health aggregates liveness and event signals from across the
// pipeline into a single line-delimited log, plus a 10s heartbeat summary.
//
// Shaped on the teacher's risk.Manager: a channel-fed aggregator
// (Report/non-blocking-send) with a periodic ticker evaluating state,
// generalized here from kill-switch position evaluation to a passive
// liveness/event recorder — Health never tells the pipeline to stop.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"razor/internal/recorder"
)

const heartbeatInterval = 10 * time.Second

// Event is one liveness-relevant occurrence: a WS reconnect, a trade-poll
// hit-limit, a backpressure drop, or any other component-local notice.
type Event struct {
	TsMs   int64  `json:"ts_ms"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// heartbeat is the periodic summary row, reporting last-seen timestamps
// and counters so a stalled component is visible even absent an event.
type heartbeat struct {
	TsMs              int64 `json:"ts_ms"`
	LastTickIngestMs  int64 `json:"last_tick_ingest_ms"`
	LastSnapshotMs    int64 `json:"last_snapshot_ms"`
	SignalsEmitted    int64 `json:"signals_emitted"`
	SignalsSuppressed int64 `json:"signals_suppressed"`
	RowsWritten       int64  `json:"rows_written"`
	QueueDrops        int64  `json:"queue_drops"`
	Kind              string `json:"kind"`
}

// Stats is the set of counters Health's owner (the orchestrator) feeds in
// on each heartbeat tick; Health has no visibility into other packages'
// internals beyond what's pushed here.
type Stats struct {
	LastTickIngestMs  int64
	LastSnapshotMs    int64
	SignalsEmitted    int64
	SignalsSuppressed int64
	RowsWritten       int64
	QueueDrops        int64
}

// Health is the liveness aggregator: events arrive on a bounded channel and
// are appended immediately; a heartbeat row is written every 10s using the
// latest Stats snapshot supplied by the caller.
type Health struct {
	log    *recorder.LineWriter
	logger *slog.Logger

	eventCh chan Event

	statsFn func() Stats

	eventsDropped int
}

// New creates a Health aggregator. statsFn is polled on each heartbeat
// tick to assemble the summary row.
func New(log *recorder.LineWriter, statsFn func() Stats, logger *slog.Logger) *Health {
	return &Health{
		log:     log,
		logger:  logger.With("component", "health"),
		eventCh: make(chan Event, 256),
		statsFn: statsFn,
	}
}

// Events returns the channel callers should send Events to (non-blocking
// convenience wrapper: use Report instead unless you already hold a
// channel reference).
func (h *Health) Events() chan<- Event { return h.eventCh }

// Report submits an event for logging, non-blocking; a full channel drops
// and counts the event rather than blocking the reporting component.
func (h *Health) Report(evt Event) {
	select {
	case h.eventCh <- evt:
	default:
		h.eventsDropped++
		h.logger.Warn("health event channel full, dropping event", "kind", evt.Kind)
	}
}

// EventsDropped returns how many health events were dropped due to a full
// channel.
func (h *Health) EventsDropped() int { return h.eventsDropped }

// Run appends events as they arrive and writes a heartbeat row every 10s,
// until ctx is cancelled.
func (h *Health) Run(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-h.eventCh:
			h.writeLine(evt)
		case <-ticker.C:
			h.writeHeartbeat()
		}
	}
}

func (h *Health) writeLine(evt Event) {
	if h.log == nil {
		return
	}
	b, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("marshal health event", "error", err)
		return
	}
	if err := h.log.WriteLine(b); err != nil {
		h.logger.Error("health.jsonl write failed", "error", err)
	}
}

func (h *Health) writeHeartbeat() {
	if h.log == nil {
		return
	}
	var s Stats
	if h.statsFn != nil {
		s = h.statsFn()
	}
	hb := heartbeat{
		TsMs:              time.Now().UnixMilli(),
		LastTickIngestMs:  s.LastTickIngestMs,
		LastSnapshotMs:    s.LastSnapshotMs,
		SignalsEmitted:    s.SignalsEmitted,
		SignalsSuppressed: s.SignalsSuppressed,
		RowsWritten:       s.RowsWritten,
		QueueDrops:        s.QueueDrops,
		Kind:              "heartbeat",
	}
	b, err := json.Marshal(hb)
	if err != nil {
		h.logger.Error("marshal heartbeat", "error", err)
		return
	}
	if err := h.log.WriteLine(b); err != nil {
		h.logger.Error("health.jsonl write failed", "error", err)
	}
}
