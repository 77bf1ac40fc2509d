package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"LiqPulse/internal/service/eligibility"
	"LiqPulse/internal/usecase"
	"LiqPulse/pkg/config"
	xhttp "LiqPulse/pkg/http"
	applogger "LiqPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	collector   *usecase.LiquidationCollector
	pipe        *usecase.AlertPipeline
	elig        *eligibility.Filter
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	closer      func() error
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.LiquidationCollector,
	pipe *usecase.AlertPipeline,
	elig *eligibility.Filter,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		collector:   collector,
		pipe:        pipe,
		elig:        elig,
		httpHandler: httpHandler,
	}
}

// SetCloser registers a hook that releases infrastructure clients on
// shutdown.
func (a *App) SetCloser(fn func() error) { a.closer = fn }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed the eligibility set before the stream opens so early events
	// are filtered against real floors, then keep it fresh.
	if err := a.elig.Refresh(ctx); err != nil {
		a.log.Warn("initial eligibility refresh failed, starting with allow list only",
			applogger.Error(err))
	}
	go a.elig.Run(ctx)

	// Sweep/GC tickers.
	a.pipe.Start(ctx)

	if err := a.collector.Start(ctx); err != nil {
		a.log.Error("collector start failed", applogger.Error(err))
		return err
	}
	a.log.Info("liquidation collector started",
		applogger.String("mode", a.cfg.Pipeline.Mode))

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start failed", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if err := a.collector.Shutdown(ctx); err != nil {
		a.log.Warn("collector stop error", applogger.Error(err))
	}
	a.pipe.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.closer != nil {
		if err := a.closer(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
