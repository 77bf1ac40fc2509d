package usecase

import (
	"context"
	"time"

	"LiqPulse/internal/domain/models"
	drepo "LiqPulse/internal/domain/repository"
	"LiqPulse/pkg/logger"
)

// AlertDispatcher routes a fired alert to the configured sinks: the
// notifier (outward messaging) plus an optional archive backend. Delivery
// is at-most-once: failures are logged and counted, never retried, and
// never roll back suppression state.
type AlertDispatcher struct {
	notifier drepo.Notifier
	pub      drepo.Publisher
	archive  drepo.Archive
	metrics  drepo.Metrics
	log      *logger.Logger
	backend  string
	timeout  time.Duration
}

// NewAlertDispatcher creates a dispatcher. notifier may be nil when no
// messaging channel is configured; pub/archive are consulted per backend.
func NewAlertDispatcher(
	notifier drepo.Notifier,
	pub drepo.Publisher,
	archive drepo.Archive,
	metrics drepo.Metrics,
	log *logger.Logger,
	backend string,
	timeout time.Duration,
) *AlertDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AlertDispatcher{
		notifier: notifier,
		pub:      pub,
		archive:  archive,
		metrics:  metrics,
		log:      log,
		backend:  backend,
		timeout:  timeout,
	}
}

// Dispatch delivers one alert to every configured sink. Runs on its own
// goroutine; derives its own deadline so a hung sink cannot leak forever.
func (d *AlertDispatcher) Dispatch(a *models.Alert) {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, a); err != nil {
			d.metrics.RecordDispatchError("notifier")
			d.log.Error("notify failed, alert lost",
				logger.String("instrument", a.Instrument),
				logger.Error(err))
		}
	}

	switch d.backend {
	case "kafka":
		if d.pub != nil {
			if err := d.pub.Publish(ctx, a); err != nil {
				d.metrics.RecordDispatchError("kafka")
				d.log.Error("alert publish failed",
					logger.String("instrument", a.Instrument),
					logger.Error(err))
			}
		}
	case "clickhouse":
		if d.archive != nil {
			if err := d.archive.StoreAlert(ctx, a); err != nil {
				d.metrics.RecordDispatchError("clickhouse")
				d.log.Error("alert archive failed",
					logger.String("instrument", a.Instrument),
					logger.Error(err))
			}
		}
	}
}

// Close closes underlying sink resources if available.
func (d *AlertDispatcher) Close() {
	if d.notifier != nil {
		_ = d.notifier.Close()
	}
	if d.pub != nil {
		_ = d.pub.Close()
	}
	if d.archive != nil {
		_ = d.archive.Close()
	}
}
