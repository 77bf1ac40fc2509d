package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"LiqPulse/internal/domain/models"
	"LiqPulse/internal/service/detector"
	"LiqPulse/internal/service/suppressor"
	"LiqPulse/internal/service/window"
	"LiqPulse/pkg/logger"
)

type fakeMetrics struct {
	mu         sync.Mutex
	ingested   int
	dropped    map[string]int
	suppressed map[string]int
	fired      int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{dropped: make(map[string]int), suppressed: make(map[string]int)}
}

func (m *fakeMetrics) RecordEventIngested(string) {
	m.mu.Lock()
	m.ingested++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordEventDropped(reason string) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordAlertFired(string, models.Side) {
	m.mu.Lock()
	m.fired++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordSuppressed(gate string) {
	m.mu.Lock()
	m.suppressed[gate]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordDispatchError(string)      {}
func (m *fakeMetrics) RecordActiveWindows(int)         {}
func (m *fakeMetrics) RecordLastPrice(string, float64) {}
func (m *fakeMetrics) RecordLatency(string, float64)   {}

type captureNotifier struct {
	ch chan *models.Alert
}

func (n *captureNotifier) Notify(_ context.Context, a *models.Alert) error {
	n.ch <- a
	return nil
}

func (n *captureNotifier) Close() error { return nil }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestPipeline(t *testing.T) (*AlertPipeline, *fakeMetrics, *captureNotifier, *testClock) {
	t.Helper()
	clk := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	fm := newFakeMetrics()
	capture := &captureNotifier{ch: make(chan *models.Alert, 8)}
	log := logger.Nop()

	store := window.NewStore(120*time.Second, 2)
	det := detector.New(detector.Config{
		MinVolumeUSD:       1_000_000,
		MinDominancePct:    80,
		MinPriceChangePct:  3,
		MaxPriceChangePct:  25,
		MinEventCount:      5,
		MinDurationSec:     5,
		SignatureBucketUSD: 250_000,
	})
	supp := suppressor.New(suppressor.Config{
		Cooldown:         5 * time.Minute,
		DedupWindow:      10 * time.Minute,
		EscalationFactor: 1.5,
	})
	disp := NewAlertDispatcher(capture, nil, nil, fm, log, "none", time.Second)
	pipe := NewAlertPipeline(store, det, supp, disp, fm, log, WithClock(clk.now))
	return pipe, fm, capture, clk
}

func sellEvent(price, notional float64, at time.Time) *models.TradeEvent {
	return &models.TradeEvent{
		Instrument: "XYZUSDT",
		Side:       models.Sell,
		Price:      price,
		Quantity:   notional / price,
		Notional:   notional,
		ObservedAt: at,
	}
}

// A one-sided sell burst crosses the volume floor on the sixth print and
// fires exactly one alert; the window reset closes the episode.
func TestPipelineFiresOnCascade(t *testing.T) {
	pipe, fm, capture, clk := newTestPipeline(t)
	ctx := context.Background()
	base := clk.now()

	burst := []struct {
		price    float64
		notional float64
	}{
		{2.00, 150_000},
		{1.98, 150_000},
		{1.96, 150_000},
		{1.94, 150_000},
		{1.92, 134_000}, // running total 734k, below the floor
	}
	for i, b := range burst {
		at := base.Add(time.Duration(i*10) * time.Second)
		clk.set(at)
		pipe.Ingest(ctx, sellEvent(b.price, b.notional, at))
	}
	if got := pipe.RecentAlerts(); len(got) != 0 {
		t.Fatalf("below the volume floor, got %d alerts", len(got))
	}

	at := base.Add(50 * time.Second)
	clk.set(at)
	pipe.Ingest(ctx, sellEvent(1.90, 285_000, at)) // total 1.019M, -5%

	alerts := pipe.RecentAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Classification.Label != "longs liquidated" {
		t.Fatalf("label %q", a.Classification.Label)
	}
	if a.Classification.LiquidatedSide != models.Buy || a.Classification.Direction != "down" {
		t.Fatalf("classification %+v", a.Classification)
	}
	if a.Signature != "XYZUSDT|Sell|4" {
		t.Fatalf("signature %q", a.Signature)
	}
	if a.Stats.TotalVolume != 1_019_000 {
		t.Fatalf("total volume %v", a.Stats.TotalVolume)
	}

	select {
	case delivered := <-capture.ch:
		if delivered.Instrument != "XYZUSDT" {
			t.Fatalf("delivered %q", delivered.Instrument)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("alert never reached the notifier")
	}

	// The reset closed the episode: cascade leftovers start a new window.
	if got := pipe.ActiveInstruments(); len(got) != 0 {
		t.Fatalf("window must be reset after the alert, active %v", got)
	}
	if fm.fired != 1 {
		t.Fatalf("fired=%d", fm.fired)
	}
}

// A repeat burst inside the cooldown is detected but suppressed.
func TestPipelineSuppressesRepeatBurst(t *testing.T) {
	pipe, fm, capture, clk := newTestPipeline(t)
	ctx := context.Background()
	base := clk.now()

	fire := func(start time.Time, prices []float64, notional float64) {
		for i, p := range prices {
			at := start.Add(time.Duration(i*5) * time.Second)
			clk.set(at)
			pipe.Ingest(ctx, sellEvent(p, notional, at))
		}
	}

	fire(base, []float64{2.00, 1.98, 1.96, 1.94, 1.92, 1.90}, 180_000)
	if len(pipe.RecentAlerts()) != 1 {
		t.Fatalf("first burst must alert")
	}
	<-capture.ch

	// Same-side, similar-size burst 90 seconds later.
	fire(base.Add(90*time.Second), []float64{1.90, 1.88, 1.86, 1.84, 1.82, 1.80}, 180_000)
	if len(pipe.RecentAlerts()) != 1 {
		t.Fatalf("repeat burst inside cooldown must not alert")
	}
	if fm.suppressed["cooldown"] == 0 {
		t.Fatalf("expected cooldown suppressions, got %v", fm.suppressed)
	}

	// An escalated burst overrides the cooldown.
	fire(base.Add(200*time.Second), []float64{1.80, 1.78, 1.76, 1.74, 1.72, 1.70}, 300_000)
	if len(pipe.RecentAlerts()) != 2 {
		t.Fatalf("escalated burst must alert, got %d", len(pipe.RecentAlerts()))
	}
}

func TestPipelineDropsInvalidEvents(t *testing.T) {
	pipe, fm, _, clk := newTestPipeline(t)
	ctx := context.Background()

	bad := sellEvent(2.0, 100_000, clk.now())
	bad.Instrument = ""
	pipe.Ingest(ctx, bad)
	pipe.Ingest(ctx, nil)

	if fm.dropped["invalid"] != 2 {
		t.Fatalf("dropped=%v", fm.dropped)
	}
	if fm.ingested != 0 {
		t.Fatalf("invalid events must not count as ingested")
	}
}

// A Start after Stop must bring the background loops back: the sweep loop
// here is the only evaluator, so the alert only arrives if the second
// Start actually spawned it.
func TestPipelineRestartsAfterStop(t *testing.T) {
	clk := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	fm := newFakeMetrics()
	capture := &captureNotifier{ch: make(chan *models.Alert, 8)}
	log := logger.Nop()

	store := window.NewStore(120*time.Second, 2)
	det := detector.New(detector.Config{
		MinVolumeUSD:       1_000_000,
		MinDominancePct:    80,
		MinPriceChangePct:  3,
		MaxPriceChangePct:  25,
		MinEventCount:      5,
		MinDurationSec:     5,
		SignatureBucketUSD: 250_000,
	})
	supp := suppressor.New(suppressor.Config{
		Cooldown:         5 * time.Minute,
		DedupWindow:      10 * time.Minute,
		EscalationFactor: 1.5,
	})
	disp := NewAlertDispatcher(capture, nil, nil, fm, log, "none", time.Second)
	pipe := NewAlertPipeline(store, det, supp, disp, fm, log,
		WithClock(clk.now),
		WithMode(EvalSweep),
		WithSweepInterval(10*time.Millisecond),
	)

	ctx := context.Background()
	pipe.Start(ctx)
	pipe.Stop()
	pipe.Start(ctx)
	defer pipe.Stop()

	base := clk.now()
	prices := []float64{2.00, 1.98, 1.96, 1.94, 1.92, 1.90}
	notionals := []float64{150_000, 150_000, 150_000, 150_000, 150_000, 269_000}
	for i := range prices {
		pipe.Ingest(ctx, sellEvent(prices[i], notionals[i], base.Add(time.Duration(i)*2*time.Second)))
	}
	clk.set(base.Add(10 * time.Second))

	select {
	case a := <-capture.ch:
		if a.Instrument != "XYZUSDT" {
			t.Fatalf("alert %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("sweep loop did not come back after restart")
	}
}

// Zero ObservedAt gets stamped with the pipeline clock on arrival.
func TestPipelineStampsArrivalTime(t *testing.T) {
	pipe, fm, _, clk := newTestPipeline(t)
	ctx := context.Background()

	e := sellEvent(2.0, 100_000, time.Time{})
	pipe.Ingest(ctx, e)
	if fm.ingested != 1 {
		t.Fatalf("event with zero timestamp must be stamped and accepted")
	}
	if !e.ObservedAt.Equal(clk.now()) {
		t.Fatalf("ObservedAt=%v want %v", e.ObservedAt, clk.now())
	}
}
