package repository

import (
	"context"

	"LiqPulse/internal/domain/models"
)

// LiquidationStream delivers normalized TradeEvents from a venue feed.
// Reconnect/backoff lives behind this boundary; the core just keeps reading.
type LiquidationStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.TradeEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// EligibilityFilter restricts which instruments may enter the windowed
// state. Events for ineligible instruments are dropped at ingestion.
type EligibilityFilter interface {
	IsEligible(ctx context.Context, instrument string) bool
	Refresh(ctx context.Context) error
}

// Notifier delivers one alert to the outward messaging channel.
// At-most-once: a returned error means the alert is lost, not retried.
type Notifier interface {
	Notify(ctx context.Context, a *models.Alert) error
	Close() error
}

// Publisher pushes alerts onto a message bus for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, a *models.Alert) error
	Close() error
}

// Archive persists fired alerts and raw events for offline analysis.
// Writes are best-effort; nothing in the core reads them back.
type Archive interface {
	Init(ctx context.Context) error
	StoreAlert(ctx context.Context, a *models.Alert) error
	StoreEvent(ctx context.Context, e *models.TradeEvent) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics is the domain-level instrumentation surface.
type Metrics interface {
	RecordEventIngested(instrument string)
	RecordEventDropped(reason string)
	RecordAlertFired(instrument string, side models.Side)
	RecordSuppressed(gate string)
	RecordDispatchError(sink string)
	RecordActiveWindows(n int)
	RecordLastPrice(instrument string, price float64)
	RecordLatency(op string, seconds float64)
}
