package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"LiqPulse/internal/domain/models"
	"LiqPulse/internal/domain/repository"
	"LiqPulse/pkg/clickhouse"
	pkgkafka "LiqPulse/pkg/kafka"
)

const (
	alertsTable = "liq_alerts"
	eventsTable = "liq_events_raw"

	eventFlushSize     = 500
	eventFlushInterval = 5 * time.Second
)

// ClickHouseArchive implements Archive over ClickHouse. Alerts are written
// row-at-a-time (they are rare); raw events are buffered and flushed in
// batches. Both are best-effort, nothing reads them back on the hot path.
type ClickHouseArchive struct {
	client *clickhouse.Client

	mu     sync.Mutex
	buf    []*models.TradeEvent
	stopCh chan struct{}
	done   sync.WaitGroup
}

// NewClickHouseArchive creates the archive and starts its flush loop.
func NewClickHouseArchive(client *clickhouse.Client) *ClickHouseArchive {
	a := &ClickHouseArchive{
		client: client,
		buf:    make([]*models.TradeEvent, 0, eventFlushSize),
		stopCh: make(chan struct{}),
	}
	a.done.Add(1)
	go a.flushLoop()
	return a
}

// Init ensures the archive tables exist.
func (a *ClickHouseArchive) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			detected_at   DateTime,
			instrument    String,
			dominant_side String,
			liq_side      String,
			label         String,
			signature     String,
			total_usd     Float64,
			dominance_pct Float64,
			price_change  Float64,
			first_price   Float64,
			last_price    Float64,
			event_count   UInt32,
			duration_sec  Float64
		) ENGINE = MergeTree() ORDER BY (instrument, detected_at)`, alertsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			observed_at DateTime64(3),
			instrument  String,
			side        String,
			price       Float64,
			quantity    Float64,
			notional    Float64
		) ENGINE = MergeTree() ORDER BY (instrument, observed_at)
		TTL toDateTime(observed_at) + INTERVAL 30 DAY`, eventsTable),
	}
	return a.client.InitSchema(ctx, stmts)
}

func (a *ClickHouseArchive) StoreAlert(ctx context.Context, al *models.Alert) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(detected_at, instrument, dominant_side, liq_side, label, signature,
		 total_usd, dominance_pct, price_change, first_price, last_price,
		 event_count, duration_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, alertsTable)
	_, err := a.client.DB().ExecContext(ctx, q,
		al.DetectedAt,
		al.Instrument,
		string(al.Stats.DominantSide),
		string(al.Classification.LiquidatedSide),
		al.Classification.Label,
		al.Signature,
		al.Stats.TotalVolume,
		al.Stats.DominancePct,
		al.Stats.PriceChangePct,
		al.Stats.FirstPrice,
		al.Stats.LastPrice,
		uint32(al.Stats.EventCount),
		al.Stats.DurationSec,
	)
	return err
}

// StoreEvent buffers a raw event for the next batch flush. It never blocks
// and never fails; a flush error is reported by the loop, not the caller.
func (a *ClickHouseArchive) StoreEvent(_ context.Context, e *models.TradeEvent) error {
	a.mu.Lock()
	a.buf = append(a.buf, e)
	full := len(a.buf) >= eventFlushSize
	a.mu.Unlock()
	if full {
		return a.flush(context.Background())
	}
	return nil
}

func (a *ClickHouseArchive) flushLoop() {
	defer a.done.Done()
	ticker := time.NewTicker(eventFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			_ = a.flush(context.Background())
		}
	}
}

func (a *ClickHouseArchive) flush(ctx context.Context) error {
	a.mu.Lock()
	if len(a.buf) == 0 {
		a.mu.Unlock()
		return nil
	}
	batch := a.buf
	a.buf = make([]*models.TradeEvent, 0, eventFlushSize)
	a.mu.Unlock()

	values := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*6)
	for _, e := range batch {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, e.ObservedAt, e.Instrument, string(e.Side), e.Price, e.Quantity, e.Notional)
	}
	q := fmt.Sprintf("INSERT INTO %s (observed_at, instrument, side, price, quantity, notional) VALUES %s",
		eventsTable, strings.Join(values, ","))
	_, err := a.client.DB().ExecContext(ctx, q, args...)
	return err
}

func (a *ClickHouseArchive) Health(ctx context.Context) error {
	return a.client.Health(ctx)
}

func (a *ClickHouseArchive) Close() error {
	close(a.stopCh)
	a.done.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.flush(ctx)
	return nil
}

// KafkaAlertPublisher implements Publisher over the shared producer.
// Alerts are keyed by instrument so per-instrument ordering survives
// partitioning.
type KafkaAlertPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic}
}

func (p *KafkaAlertPublisher) Publish(ctx context.Context, a *models.Alert) error {
	return p.producer.Publish(ctx, p.topic, []byte(a.Instrument), map[string]interface{}{
		"detected_at":   a.DetectedAt.UTC().Format(time.RFC3339Nano),
		"instrument":    a.Instrument,
		"dominant_side": a.Stats.DominantSide,
		"liq_side":      a.Classification.LiquidatedSide,
		"direction":     a.Classification.Direction,
		"label":         a.Classification.Label,
		"signature":     a.Signature,
		"total_usd":     a.Stats.TotalVolume,
		"dominance_pct": a.Stats.DominancePct,
		"price_change":  a.Stats.PriceChangePct,
		"event_count":   a.Stats.EventCount,
		"duration_sec":  a.Stats.DurationSec,
	})
}

func (p *KafkaAlertPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
