package di

import (
	"context"
	"fmt"
	"time"

	drepo "LiqPulse/internal/domain/repository"
	"LiqPulse/internal/handler/api"
	mid "LiqPulse/internal/middleware"
	internalrepo "LiqPulse/internal/repository"
	"LiqPulse/internal/service/binance"
	"LiqPulse/internal/service/detector"
	"LiqPulse/internal/service/eligibility"
	"LiqPulse/internal/service/suppressor"
	"LiqPulse/internal/service/telegram"
	"LiqPulse/internal/service/window"
	"LiqPulse/internal/usecase"
	"LiqPulse/pkg/cache"
	pkgch "LiqPulse/pkg/clickhouse"
	"LiqPulse/pkg/config"
	xhttp "LiqPulse/pkg/http"
	pkgkafka "LiqPulse/pkg/kafka"
	applogger "LiqPulse/pkg/logger"
	"LiqPulse/pkg/metrics"
	"LiqPulse/pkg/server"
)

// Backends bundles the optional dispatch backends selected by config.
// Exactly one of Publisher/Archive is set for kafka/clickhouse; both are
// nil for backend "none".
type Backends struct {
	Publisher drepo.Publisher
	Archive   drepo.Archive

	ch *pkgch.Client
}

// Close releases whichever backend was built.
func (b *Backends) Close() error {
	if b.Publisher != nil {
		return b.Publisher.Close()
	}
	if b.Archive != nil {
		_ = b.Archive.Close()
	}
	if b.ch != nil {
		return b.ch.Close()
	}
	return nil
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideCache builds the eligibility snapshot cache: layered over Redis
// when enabled, plain in-memory otherwise.
func ProvideCache(cfg *config.Config, log *applogger.Logger) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	rc, err := cache.NewRedisCache(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	log.Info("redis cache enabled", applogger.String("host", cfg.Redis.Host))
	return cache.NewLayeredCache(rc), nil
}

// ProvideHTTPClient creates the REST client used by the eligibility ETL.
func ProvideHTTPClient() *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(15 * time.Second))
}

// ProvideEligibility creates the instrument eligibility filter.
func ProvideEligibility(cfg *config.Config, httpClient *xhttp.Client, cacheSvc cache.Service, log *applogger.Logger) *eligibility.Filter {
	return eligibility.New(eligibility.Config{
		RestURL:            cfg.Binance.RestURL,
		MinTurnover24hUSD:  cfg.Eligibility.MinTurnover24hUSD,
		MinOpenInterestUSD: cfg.Eligibility.MinOpenInterestUSD,
		RefreshInterval:    cfg.Eligibility.RefreshInterval,
		CacheTTL:           cfg.Eligibility.CacheTTL,
		Allow:              cfg.Eligibility.Allow,
		Deny:               cfg.Eligibility.Deny,
	}, httpClient, cacheSvc, log)
}

// ProvideStream creates the liquidation WebSocket stream.
func ProvideStream(cfg *config.Config, log *applogger.Logger) drepo.LiquidationStream {
	return binance.New(
		cfg.Binance.WebSocketURL,
		cfg.Binance.ReconnectDelay,
		cfg.Binance.PingInterval,
		cfg.Binance.ContractMultiplier,
		log,
	)
}

// ProvideBackends builds the dispatch backend the config selects.
func ProvideBackends(cfg *config.Config, log *applogger.Logger) (*Backends, error) {
	b := &Backends{}
	switch cfg.Backend.Type {
	case "kafka":
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithBatchSize(cfg.Kafka.BatchSize),
			pkgkafka.WithBatchBytes(cfg.Kafka.BatchBytes),
			pkgkafka.WithBatchTimeout(cfg.Kafka.Linger),
			pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.ReadTimeout),
			pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
			pkgkafka.WithAsync(cfg.Kafka.Async),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		b.Publisher = internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.Topic)
		log.Info("kafka backend ready",
			applogger.Strings("brokers", cfg.Kafka.Brokers),
			applogger.String("topic", cfg.Kafka.Topic))

	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		archive := internalrepo.NewClickHouseArchive(client)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := archive.Init(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		b.Archive = archive
		b.ch = client
		log.Info("clickhouse backend ready",
			applogger.String("host", cfg.ClickHouse.Host),
			applogger.String("database", cfg.ClickHouse.Database))
	}
	return b, nil
}

// ProvideNotifier creates the Telegram sink, or nil when no token is
// configured. A nil notifier makes the dispatcher log-only.
func ProvideNotifier(cfg *config.Config, log *applogger.Logger) (drepo.Notifier, error) {
	if cfg.Telegram.Token == "" {
		log.Warn("telegram token not set; alerts will not be delivered")
		return nil, nil
	}
	return telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		ChatID:         cfg.Telegram.ChatID,
		SendsPerSecond: cfg.Telegram.SendsPerSecond,
		BurstCapacity:  cfg.Telegram.BurstCapacity,
	}, log)
}

// ProvideWindowStore creates the rolling window store.
func ProvideWindowStore(cfg *config.Config) *window.Store {
	return window.NewStore(cfg.Window.Duration, cfg.Detector.MinEventCount)
}

// ProvideDetector creates the signal detector.
func ProvideDetector(cfg *config.Config) *detector.Detector {
	return detector.New(detector.Config{
		MinVolumeUSD:       cfg.Detector.MinVolumeUSD,
		MinDominancePct:    cfg.Detector.MinDominancePct,
		MinPriceChangePct:  cfg.Detector.MinPriceChangePct,
		MaxPriceChangePct:  cfg.Detector.MaxPriceChangePct,
		MinEventCount:      cfg.Detector.MinEventCount,
		MinDurationSec:     cfg.Detector.MinDuration.Seconds(),
		SignatureBucketUSD: cfg.Detector.SignatureBucketUSD,
	})
}

// ProvideSuppressor creates the episode suppressor.
func ProvideSuppressor(cfg *config.Config) *suppressor.Suppressor {
	return suppressor.New(suppressor.Config{
		Cooldown:         cfg.Suppressor.Cooldown,
		DedupWindow:      cfg.Suppressor.DedupWindow,
		EscalationFactor: cfg.Suppressor.EscalationFactor,
	})
}

// ProvideDispatcher creates the alert dispatcher.
func ProvideDispatcher(
	notifier drepo.Notifier,
	backends *Backends,
	m drepo.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.AlertDispatcher {
	return usecase.NewAlertDispatcher(
		notifier,
		backends.Publisher,
		backends.Archive,
		m,
		log,
		cfg.Backend.Type,
		cfg.Server.WriteTimeout,
	)
}

// ProvidePipeline creates the alert pipeline.
func ProvidePipeline(
	store *window.Store,
	det *detector.Detector,
	supp *suppressor.Suppressor,
	disp *usecase.AlertDispatcher,
	m drepo.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.AlertPipeline {
	mode := usecase.EvalPerEvent
	if cfg.Pipeline.Mode == "sweep" {
		mode = usecase.EvalSweep
	}
	return usecase.NewAlertPipeline(store, det, supp, disp, m, log,
		usecase.WithMode(mode),
		usecase.WithSweepInterval(cfg.Pipeline.SweepInterval),
		usecase.WithGCInterval(cfg.Suppressor.GCInterval),
	)
}

// ProvideCollector creates the stream collector with its ingest middleware.
func ProvideCollector(
	stream drepo.LiquidationStream,
	pipe *usecase.AlertPipeline,
	elig *eligibility.Filter,
	backends *Backends,
	m drepo.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.LiquidationCollector {
	opts := []mid.IngestOption{mid.WithBufferSize(cfg.Pipeline.IngestBuffer)}
	if backends.Archive != nil {
		opts = append(opts, mid.WithEventArchive(backends.Archive))
	}
	ingest := mid.NewIngestPipeline(pipe, elig, m, log, opts...)
	return usecase.NewLiquidationCollector(stream, ingest, log)
}

// ProvideHTTPHandler creates the status API handler.
func ProvideHTTPHandler(
	log *applogger.Logger,
	pipe *usecase.AlertPipeline,
	store *window.Store,
	stream drepo.LiquidationStream,
	backends *Backends,
) xhttp.Handler {
	h := api.NewStatusHandler(log, pipe, store, stream)
	if backends.Archive != nil {
		h.SetArchive(backends.Archive)
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.LiquidationCollector,
	pipe *usecase.AlertPipeline,
	elig *eligibility.Filter,
	handler xhttp.Handler,
	notifier drepo.Notifier,
	backends *Backends,
) *server.App {
	app := server.New(cfg, log, collector, pipe, elig, handler)
	app.SetCloser(func() error {
		if notifier != nil {
			_ = notifier.Close()
		}
		return backends.Close()
	})
	return app
}
