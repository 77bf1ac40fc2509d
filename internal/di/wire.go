//go:build wireinject
// +build wireinject

package di

import (
	"LiqPulse/pkg/config"
	"LiqPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideHTTPClient,
		ProvideBackends,
		ProvideNotifier,

		// Services
		ProvideEligibility,
		ProvideStream,
		ProvideWindowStore,
		ProvideDetector,
		ProvideSuppressor,

		// Use cases
		ProvideDispatcher,
		ProvidePipeline,
		ProvideCollector,

		// HTTP surface and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
