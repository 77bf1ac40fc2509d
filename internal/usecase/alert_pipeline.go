package usecase

import (
	"context"
	"sync"
	"time"

	"LiqPulse/internal/domain/models"
	drepo "LiqPulse/internal/domain/repository"
	"LiqPulse/internal/service/detector"
	"LiqPulse/internal/service/suppressor"
	"LiqPulse/internal/service/window"
	"LiqPulse/pkg/logger"
)

// EvalMode selects when window statistics get re-evaluated.
type EvalMode string

const (
	// EvalPerEvent evaluates an instrument immediately after each accepted
	// event. Lowest alert latency, CPU proportional to event rate.
	EvalPerEvent EvalMode = "per-event"
	// EvalSweep re-checks every active instrument on a fixed interval.
	// Bounded CPU, up to one interval of added latency.
	EvalSweep EvalMode = "sweep"
)

// AlertPipeline wires ingestion, aggregation, detection, suppression and
// dispatch. It is the single owner of all mutable episode state: the
// ingest path and the sweep/GC timers are serialized through its mutex.
type AlertPipeline struct {
	store   *window.Store
	det     *detector.Detector
	supp    *suppressor.Suppressor
	disp    *AlertDispatcher
	metrics drepo.Metrics
	log     *logger.Logger

	mode          EvalMode
	sweepInterval time.Duration
	gcInterval    time.Duration
	now           func() time.Time

	mu      sync.Mutex
	recent  *recentRing
	stopCh  chan struct{}
	started bool
	startMu sync.Mutex
}

// PipelineOption configures the AlertPipeline.
type PipelineOption func(*AlertPipeline)

// WithMode selects the evaluation trigger.
func WithMode(m EvalMode) PipelineOption {
	return func(p *AlertPipeline) {
		if m == EvalPerEvent || m == EvalSweep {
			p.mode = m
		}
	}
}

// WithSweepInterval sets the sweep cadence (sweep mode only).
func WithSweepInterval(d time.Duration) PipelineOption {
	return func(p *AlertPipeline) {
		if d > 0 {
			p.sweepInterval = d
		}
	}
}

// WithGCInterval sets how often suppression records get pruned.
func WithGCInterval(d time.Duration) PipelineOption {
	return func(p *AlertPipeline) {
		if d > 0 {
			p.gcInterval = d
		}
	}
}

// WithClock injects a time source, for deterministic tests.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *AlertPipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewAlertPipeline creates the orchestrator.
func NewAlertPipeline(
	store *window.Store,
	det *detector.Detector,
	supp *suppressor.Suppressor,
	disp *AlertDispatcher,
	metrics drepo.Metrics,
	log *logger.Logger,
	opts ...PipelineOption,
) *AlertPipeline {
	p := &AlertPipeline{
		store:         store,
		det:           det,
		supp:          supp,
		disp:          disp,
		metrics:       metrics,
		log:           log,
		mode:          EvalPerEvent,
		sweepInterval: 15 * time.Second,
		gcInterval:    time.Minute,
		now:           time.Now,
		recent:        newRecentRing(64),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest accepts one normalized event. Invalid events are dropped here and
// never reach a window; in per-event mode the instrument is evaluated
// immediately afterwards.
func (p *AlertPipeline) Ingest(ctx context.Context, e *models.TradeEvent) {
	now := p.now()
	if e != nil && e.ObservedAt.IsZero() {
		e.ObservedAt = now
	}
	if !p.store.AddEvent(e, now) {
		p.metrics.RecordEventDropped("invalid")
		if e != nil {
			p.log.Debug("event dropped", logger.String("instrument", e.Instrument))
		}
		return
	}
	p.metrics.RecordEventIngested(e.Instrument)
	p.metrics.RecordLastPrice(e.Instrument, e.Price)

	if p.mode == EvalPerEvent {
		p.evaluate(ctx, e.Instrument, now)
	}
}

// Sweep re-evaluates every instrument with a live window. Exposed for
// tests; the Start loop drives it in sweep mode.
func (p *AlertPipeline) Sweep(ctx context.Context) {
	now := p.now()
	active := p.store.ActiveInstruments(now)
	p.metrics.RecordActiveWindows(len(active))
	for _, instrument := range active {
		p.evaluate(ctx, instrument, now)
	}
}

// evaluate runs stats -> detect -> gate -> reset under the pipeline mutex,
// then dispatches off-thread. The window reset happens at gate-pass time,
// before delivery: an attempted alert closes the episode whether or not
// the sink succeeds.
func (p *AlertPipeline) evaluate(ctx context.Context, instrument string, now time.Time) {
	start := time.Now()
	p.mu.Lock()

	stats, ok := p.store.StatsOf(instrument, now)
	if !ok {
		p.mu.Unlock()
		return
	}
	alertable, reason := p.det.ShouldAlert(stats)
	if !alertable {
		p.mu.Unlock()
		p.log.Debug("signal rejected",
			logger.String("instrument", instrument),
			logger.String("reason", reason),
			logger.Float64("total_volume", stats.TotalVolume),
			logger.Float64("dominance_pct", stats.DominancePct),
			logger.Float64("price_change_pct", stats.PriceChangePct))
		return
	}

	sig := p.det.Signature(stats)
	pass, gate := p.supp.Gate(stats, sig, now)
	if !pass {
		p.mu.Unlock()
		p.metrics.RecordSuppressed(gate)
		p.log.Info("alert suppressed",
			logger.String("instrument", instrument),
			logger.String("gate", gate),
			logger.String("signature", sig))
		return
	}
	p.supp.Record(stats, sig, now)
	p.store.Reset(instrument)
	p.mu.Unlock()

	alert := &models.Alert{
		Instrument:     instrument,
		Stats:          stats,
		Classification: p.det.Classify(stats),
		Signature:      sig,
		DetectedAt:     now,
	}
	p.recent.add(alert)
	p.metrics.RecordAlertFired(instrument, stats.DominantSide)
	p.metrics.RecordLatency("evaluate", time.Since(start).Seconds())
	p.log.Info("alert fired",
		logger.String("instrument", instrument),
		logger.String("label", alert.Classification.Label),
		logger.Float64("total_volume", stats.TotalVolume),
		logger.Float64("dominance_pct", stats.DominancePct),
		logger.Float64("price_change_pct", stats.PriceChangePct),
		logger.Int("event_count", stats.EventCount))

	// Fire-and-forget: dispatch must never block ingestion, and a failed
	// delivery is a lost alert by contract.
	if p.disp != nil {
		go p.disp.Dispatch(alert)
	}
}

// Start launches the sweep loop (sweep mode) and the suppression-record GC
// loop. Both stop when ctx is done or Stop is called; a stopped pipeline
// may be started again with a fresh context.
func (p *AlertPipeline) Start(ctx context.Context) {
	p.startMu.Lock()
	if p.started {
		p.startMu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.startMu.Unlock()

	if p.mode == EvalSweep {
		go func() {
			ticker := time.NewTicker(p.sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stop:
					return
				case <-ticker.C:
					p.Sweep(ctx)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(p.gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				removed := p.supp.GC(p.now())
				p.metrics.RecordActiveWindows(p.store.Len())
				if removed > 0 {
					p.log.Debug("suppression records pruned", logger.Int("removed", removed))
				}
			}
		}
	}()
}

// Stop halts the background loops.
func (p *AlertPipeline) Stop() {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// ActiveInstruments snapshots instruments with live windows.
func (p *AlertPipeline) ActiveInstruments() []string {
	return p.store.ActiveInstruments(p.now())
}

// RecentAlerts returns the newest dispatched alerts, newest first.
func (p *AlertPipeline) RecentAlerts() []*models.Alert {
	return p.recent.list()
}

// recentRing is a fixed-size ring of the latest alerts for the status API.
type recentRing struct {
	mu   sync.Mutex
	buf  []*models.Alert
	next int
	full bool
}

func newRecentRing(n int) *recentRing {
	return &recentRing{buf: make([]*models.Alert, n)}
}

func (r *recentRing) add(a *models.Alert) {
	r.mu.Lock()
	r.buf[r.next] = a
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

func (r *recentRing) list() []*models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.next
	if r.full {
		size = len(r.buf)
	}
	out := make([]*models.Alert, 0, size)
	for i := 1; i <= size; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
