//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"BusScope/pkg/config"
	"BusScope/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application. The
// cleanup closes the Kafka producer and the Redis client after App.Run.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideAPIMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideFrameCache,
		ProvideCatalog,

		// Repositories
		ProvideTracePublisher,
		ProvideTraceStream,

		// Use cases
		ProvideSessionManager,
		ProvideRealtimePipeline,
		ProvideTraceRelay,
		ProvideTraceCollector,
		ProvideKafkaTraceHandler,

		// Transport
		ProvideHandlers,

		// Application server
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return nil, nil, nil
}
