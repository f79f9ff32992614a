package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	drepo "BusScope/internal/domain/repository"
	"BusScope/internal/handler/api"
	mid "BusScope/internal/middleware"
	internalrepo "BusScope/internal/repository"
	"BusScope/internal/service/cache"
	"BusScope/internal/service/catalog"
	apimetrics "BusScope/internal/service/metrics"
	"BusScope/internal/service/serialbus"
	"BusScope/internal/service/tracestream"
	"BusScope/internal/usecase"
	"BusScope/pkg/config"
	xhttp "BusScope/pkg/http"
	pkgkafka "BusScope/pkg/kafka"
	applogger "BusScope/pkg/logger"
	"BusScope/pkg/metrics"
	"BusScope/pkg/server"
)

// ProvideLogger creates the root logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging.Config)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideRegistry creates the registry /metrics serves.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) drepo.Metrics {
	return metrics.NewWithRegisterer(reg)
}

// ProvideAPIMetrics creates the per-endpoint API metrics.
func ProvideAPIMetrics(reg *prometheus.Registry) *apimetrics.API {
	return apimetrics.NewAPI(reg)
}

// needsProducer reports whether anything publishes to Kafka.
func needsProducer(cfg *config.Config) bool {
	return cfg.Ingest.Relay == usecase.RelayKafka || cfg.Logging.Collector.Enabled
}

// needsConsumer reports whether entries arrive through Kafka.
func needsConsumer(cfg *config.Config) bool {
	return cfg.Backend() == drepo.BackendKafka || cfg.Ingest.Relay == usecase.RelayKafka
}

// ProvideKafkaProducer creates a Kafka producer, or nil when nothing publishes.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, log *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !needsProducer(cfg) {
		return nil, func() {}, nil
	}
	opts := append(cfg.Kafka.ProducerOptions(),
		pkgkafka.WithProducerMetrics(reg),
		pkgkafka.WithProducerLogger(log),
	)
	producer, err := pkgkafka.NewProducer(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideTracePublisher creates the Kafka trace publisher, or nil without a producer.
func ProvideTracePublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.TracePublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaTracePublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil
// when entries never arrive through Kafka.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !needsConsumer(cfg) {
		return nil, nil
	}
	opts := append(cfg.Kafka.ConsumerOptions(),
		pkgkafka.WithConsumerMetrics(reg),
		pkgkafka.WithConsumerLogger(log),
	)
	consumer, err := pkgkafka.NewConsumer(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(cfg.Kafka.ConsumerHooks(log.Component("kafka-hook")))
	return consumer, nil
}

// ProvideFrameCache creates the cache shared by encoded frames and the
// catalog: in-process, or in-process in front of Redis.
func ProvideFrameCache(cfg *config.Config) (cache.BytesCache, func(), error) {
	local := cache.NewTTLCache(cache.WithMaxEntries(cfg.Cache.Entries))
	if cfg.Cache.Type != "redis" {
		return local, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shared, err := cache.NewRedisCache(ctx, cfg.Cache.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayered(local, shared, cfg.Cache.LocalTTL), func() { _ = shared.Close() }, nil
}

// ProvideCatalog creates the signal catalog client.
func ProvideCatalog(cfg *config.Config, c cache.BytesCache, log *applogger.Logger) drepo.Catalog {
	return catalog.New(cfg.Catalog, c, log)
}

// ProvideSessionManager creates the session manager.
func ProvideSessionManager(cfg *config.Config, m drepo.Metrics, log *applogger.Logger, cat drepo.Catalog, frames cache.BytesCache) *usecase.SessionManager {
	return usecase.NewSessionManager(cfg.Engine, m, log,
		usecase.WithCatalog(cat),
		usecase.WithSharedFrameCache(frames),
	)
}

// ProvideRealtimePipeline builds the throttling pipeline in front of the sessions.
func ProvideRealtimePipeline(cfg *config.Config, manager *usecase.SessionManager, m drepo.Metrics, log *applogger.Logger) *mid.RealtimePipeline {
	p := cfg.Ingest.Pipeline
	return mid.NewRealtimePipeline(manager, m,
		mid.WithMaxRPS(p.MaxRPS),
		mid.WithBurst(p.Burst),
		mid.WithBufferSize(p.BufferSize),
		mid.WithSource(string(cfg.Backend())),
		mid.WithPipelineLogger(log.Component("pipeline")),
	)
}

// ProvideTraceRelay routes collected entries locally or through Kafka.
func ProvideTraceRelay(cfg *config.Config, pub drepo.TracePublisher, pipe *mid.RealtimePipeline, m drepo.Metrics) *usecase.TraceRelay {
	return usecase.NewTraceRelay(pub, pipe, m, cfg.Ingest.Relay)
}

// ProvideTraceStream creates the live trace source of the configured backend,
// or nil for backends without one.
func ProvideTraceStream(cfg *config.Config, log *applogger.Logger) (drepo.TraceStream, error) {
	switch cfg.Backend() {
	case drepo.BackendWebSocket:
		return tracestream.New(cfg.TraceStream, log), nil
	case drepo.BackendSerial:
		s, err := serialbus.New(cfg.Serial, serialbus.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("serial stream: %w", err)
		}
		return s, nil
	default:
		return nil, nil
	}
}

// ProvideTraceCollector creates the collector, or nil without a stream.
func ProvideTraceCollector(stream drepo.TraceStream, relay *usecase.TraceRelay, m drepo.Metrics, pipe *mid.RealtimePipeline, log *applogger.Logger) *usecase.TraceCollector {
	if stream == nil {
		return nil
	}
	return usecase.NewTraceCollector(stream, relay, m, pipe, log)
}

// ProvideKafkaTraceHandler handles the trace topic.
func ProvideKafkaTraceHandler(cfg *config.Config, pipe *mid.RealtimePipeline, manager *usecase.SessionManager, m drepo.Metrics) *usecase.KafkaTraceHandler {
	if !needsConsumer(cfg) {
		return nil
	}
	return usecase.NewKafkaTraceHandler(cfg.Kafka.Topic, pipe, manager, m)
}

// ProvideHandlers creates the HTTP and websocket handlers.
func ProvideHandlers(cfg *config.Config, manager *usecase.SessionManager, relay *usecase.TraceRelay, pipe *mid.RealtimePipeline, m *apimetrics.API, log *applogger.Logger) []xhttp.Handler {
	return []xhttp.Handler{
		api.NewSessionsHandler(manager, m, log),
		api.NewIngestHandler(manager, relay, pipe, m, log),
		api.NewInputHandler(manager, m, log, cfg.Server.CORSOrigins...),
	}
}

// ProvideApp creates the application server.
func ProvideApp(c server.Components) *server.App {
	return server.New(c)
}
