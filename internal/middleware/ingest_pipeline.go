package middleware

import (
	"context"
	"sync"

	"LiqPulse/internal/domain/models"
	drepo "LiqPulse/internal/domain/repository"
	"LiqPulse/pkg/logger"
)

// Ingestor is the minimal downstream interface the pipeline needs.
type Ingestor interface {
	Ingest(ctx context.Context, e *models.TradeEvent)
}

// IngestPipeline sits between the WebSocket read loop and the alert
// pipeline. It drops ineligible instruments before they can create a
// window, and decouples the socket from evaluation through a bounded
// buffer: when evaluation falls behind, events are dropped rather than
// backpressuring the feed.
type IngestPipeline struct {
	sink    Ingestor
	elig    drepo.EligibilityFilter
	metrics drepo.Metrics
	log     *logger.Logger

	bufCh   chan *models.TradeEvent
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	archive drepo.Archive
}

// IngestOption configures the pipeline.
type IngestOption func(*IngestPipeline)

// WithBufferSize sets the decoupling buffer size.
func WithBufferSize(n int) IngestOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufCh = make(chan *models.TradeEvent, n)
		}
	}
}

// WithEventArchive forwards every eligible event to the archive,
// best-effort.
func WithEventArchive(a drepo.Archive) IngestOption {
	return func(p *IngestPipeline) {
		p.archive = a
	}
}

// NewIngestPipeline creates the middleware. elig may be nil, in which case
// every instrument passes.
func NewIngestPipeline(sink Ingestor, elig drepo.EligibilityFilter, metrics drepo.Metrics, log *logger.Logger, opts ...IngestOption) *IngestPipeline {
	p := &IngestPipeline{
		sink:    sink,
		elig:    elig,
		metrics: metrics,
		log:     log,
		bufCh:   make(chan *models.TradeEvent, 2000),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the drain goroutine feeding the sink.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case e := <-p.bufCh:
				if e == nil {
					continue
				}
				p.sink.Ingest(ctx, e)
				if p.archive != nil {
					if err := p.archive.StoreEvent(ctx, e); err != nil {
						p.metrics.RecordDispatchError("archive")
					}
				}
			}
		}
	}()
}

// Stop halts the drain goroutine.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Offer enqueues one event. Never blocks: ineligible instruments and
// overflow are dropped with a metric.
func (p *IngestPipeline) Offer(ctx context.Context, e *models.TradeEvent) {
	if e == nil {
		return
	}
	if p.elig != nil && !p.elig.IsEligible(ctx, e.Instrument) {
		p.metrics.RecordEventDropped("ineligible")
		return
	}
	select {
	case p.bufCh <- e:
	default:
		p.metrics.RecordEventDropped("buffer_full")
		p.log.Warn("ingest buffer full, event dropped",
			logger.String("instrument", e.Instrument))
	}
}

// Depth reports the current buffer occupancy.
func (p *IngestPipeline) Depth() int { return len(p.bufCh) }
