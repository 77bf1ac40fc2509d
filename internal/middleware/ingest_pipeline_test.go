package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"LiqPulse/internal/domain/models"
	"LiqPulse/pkg/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*models.TradeEvent
	gotCh  chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{gotCh: make(chan struct{}, 64)}
}

func (s *recordingSink) Ingest(_ context.Context, e *models.TradeEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	s.gotCh <- struct{}{}
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type dropMetrics struct {
	mu      sync.Mutex
	dropped map[string]int
}

func newDropMetrics() *dropMetrics { return &dropMetrics{dropped: make(map[string]int)} }

func (m *dropMetrics) RecordEventDropped(reason string) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *dropMetrics) count(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

func (m *dropMetrics) RecordEventIngested(string)           {}
func (m *dropMetrics) RecordAlertFired(string, models.Side) {}
func (m *dropMetrics) RecordSuppressed(string)              {}
func (m *dropMetrics) RecordDispatchError(string)           {}
func (m *dropMetrics) RecordActiveWindows(int)              {}
func (m *dropMetrics) RecordLastPrice(string, float64)      {}
func (m *dropMetrics) RecordLatency(string, float64)        {}

type allowOnly struct{ set map[string]bool }

func (f allowOnly) IsEligible(_ context.Context, instrument string) bool {
	return f.set[instrument]
}
func (f allowOnly) Refresh(context.Context) error { return nil }

func testEvent(instrument string) *models.TradeEvent {
	return &models.TradeEvent{
		Instrument: instrument,
		Side:       models.Sell,
		Price:      100,
		Quantity:   1,
		Notional:   100,
		ObservedAt: time.Now(),
	}
}

func TestOfferDropsIneligible(t *testing.T) {
	sink := newRecordingSink()
	m := newDropMetrics()
	p := NewIngestPipeline(sink, allowOnly{set: map[string]bool{"BTCUSDT": true}}, m, logger.Nop())

	ctx := context.Background()
	p.Offer(ctx, testEvent("DUSTUSDT"))
	if m.count("ineligible") != 1 {
		t.Fatalf("ineligible drops=%d", m.count("ineligible"))
	}
	if p.Depth() != 0 {
		t.Fatalf("dropped event must not be buffered")
	}

	p.Offer(ctx, testEvent("BTCUSDT"))
	if p.Depth() != 1 {
		t.Fatalf("eligible event must be buffered")
	}
}

func TestOfferDropsOnOverflow(t *testing.T) {
	sink := newRecordingSink()
	m := newDropMetrics()
	p := NewIngestPipeline(sink, nil, m, logger.Nop(), WithBufferSize(1))

	ctx := context.Background()
	p.Offer(ctx, testEvent("BTCUSDT"))
	p.Offer(ctx, testEvent("BTCUSDT"))

	if m.count("buffer_full") != 1 {
		t.Fatalf("overflow drops=%d", m.count("buffer_full"))
	}
	if p.Depth() != 1 {
		t.Fatalf("depth=%d", p.Depth())
	}
}

func TestStartDrainsToSink(t *testing.T) {
	sink := newRecordingSink()
	m := newDropMetrics()
	p := NewIngestPipeline(sink, nil, m, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	p.Offer(ctx, testEvent("BTCUSDT"))
	p.Offer(ctx, testEvent("ETHUSDT"))

	for i := 0; i < 2; i++ {
		select {
		case <-sink.gotCh:
		case <-time.After(2 * time.Second):
			t.Fatalf("sink received %d of 2 events", sink.count())
		}
	}
	if sink.count() != 2 {
		t.Fatalf("sink count=%d", sink.count())
	}
}
