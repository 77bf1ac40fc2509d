package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"LiqPulse/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsIngested *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	alertsFired    *prometheus.CounterVec
	suppressed     *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
	activeWindows  prometheus.Gauge
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpulse_events_ingested_total",
				Help: "Total liquidation events accepted into a window",
			},
			[]string{"instrument"},
		),
		eventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpulse_events_dropped_total",
				Help: "Total events dropped before aggregation",
			},
			[]string{"reason"},
		),
		alertsFired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpulse_alerts_fired_total",
				Help: "Total alerts dispatched",
			},
			[]string{"instrument", "side"},
		),
		suppressed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpulse_alerts_suppressed_total",
				Help: "Qualifying signals blocked by a suppression gate",
			},
			[]string{"gate"},
		),
		dispatchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqpulse_dispatch_errors_total",
				Help: "Alert deliveries that failed (alert lost, at-most-once)",
			},
			[]string{"sink"},
		),
		activeWindows: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "liqpulse_active_windows",
				Help: "Instruments currently holding a non-empty window",
			},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "liqpulse_last_price",
				Help: "Last observed liquidation price per instrument",
			},
			[]string{"instrument"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "liqpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordEventIngested(instrument string) {
	r.eventsIngested.WithLabelValues(instrument).Inc()
}

func (r *Recorder) RecordEventDropped(reason string) {
	r.eventsDropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordAlertFired(instrument string, side models.Side) {
	r.alertsFired.WithLabelValues(instrument, string(side)).Inc()
}

func (r *Recorder) RecordSuppressed(gate string) {
	r.suppressed.WithLabelValues(gate).Inc()
}

func (r *Recorder) RecordDispatchError(sink string) {
	r.dispatchErrors.WithLabelValues(sink).Inc()
}

func (r *Recorder) RecordActiveWindows(n int) {
	r.activeWindows.Set(float64(n))
}

func (r *Recorder) RecordLastPrice(instrument string, price float64) {
	r.lastPrice.WithLabelValues(instrument).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
