package server

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	mid "BusScope/internal/middleware"
	"BusScope/internal/usecase"
	"BusScope/pkg/config"
	xhttp "BusScope/pkg/http"
	pkgkafka "BusScope/pkg/kafka"
	applogger "BusScope/pkg/logger"
)

// restartDelay spaces attempts to bring up a trace stream that is not
// reachable yet.
const restartDelay = 2 * time.Second

// Components are the pieces an App runs. Collector, Consumer, TraceHandler and
// Producer are nil when the configured backend and relay do not need them.
type Components struct {
	Config       *config.Config
	Logger       *applogger.Logger
	Registry     *prometheus.Registry
	Manager      *usecase.SessionManager
	Pipeline     *mid.RealtimePipeline
	Relay        *usecase.TraceRelay
	Collector    *usecase.TraceCollector
	Consumer     *pkgkafka.Consumer
	TraceHandler *usecase.KafkaTraceHandler
	Producer     *pkgkafka.Producer
	Handlers     []xhttp.Handler
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	registry   *prometheus.Registry
	manager    *usecase.SessionManager
	pipeline   *mid.RealtimePipeline
	relay      *usecase.TraceRelay
	collector  *usecase.TraceCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	producer   *pkgkafka.Producer
	handlers   []xhttp.Handler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(c Components) *App {
	log := c.Logger
	if log == nil {
		log = applogger.NewNop()
	}
	a := &App{
		cfg:       c.Config,
		log:       log.Component("app"),
		registry:  c.Registry,
		manager:   c.Manager,
		pipeline:  c.Pipeline,
		relay:     c.Relay,
		collector: c.Collector,
		consumer:  c.Consumer,
		producer:  c.Producer,
		handlers:  c.Handlers,
	}
	if c.TraceHandler != nil {
		a.kh = c.TraceHandler
	}
	return a
}

// Run starts every component and blocks until ctx is done or the HTTP
// listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.attachLogCollector()

	opts := []xhttp.ServerOption{
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORSOrigins...),
		xhttp.WithSlowRequest(a.cfg.Server.SlowRequest),
		xhttp.WithLogger(a.log),
	}
	if a.cfg.Metrics.Enabled && a.registry != nil {
		opts = append(opts, xhttp.WithMetrics(a.cfg.Metrics.Path, a.registry, a.registry))
	} else {
		opts = append(opts, xhttp.WithMetrics("", prometheus.NewRegistry(), nil))
	}
	a.httpServer = xhttp.NewServer(a.handlers, opts...)

	// the pipeline also serves HTTP pushes, so it runs without a collector too
	a.pipeline.Start(ctx)

	if a.collector != nil {
		go a.runCollector(ctx)
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return errors.Join(err, a.shutdown())
	}
	a.log.Info("busscope started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", string(a.cfg.Backend())),
		applogger.String("relay", a.relay.Mode()),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
	}
	cancel()
	return errors.Join(runErr, a.shutdown())
}

// attachLogCollector ships aggregated error logs to Kafka when enabled.
func (a *App) attachLogCollector() {
	lc := a.cfg.Logging.Collector
	if !lc.Enabled || a.producer == nil {
		return
	}
	a.log.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   lc.Interval,
		CountThreshold: lc.Threshold,
		Topic:          a.cfg.Kafka.LogTopic,
		Service:        "busscope",
		Publisher:      a.producer,
	})
	a.log.Info("log collector attached", applogger.String("topic", a.cfg.Kafka.LogTopic))
}

// runCollector keeps trying to bring the trace stream up until ctx ends. Once
// started, the stream reconnects on its own.
func (a *App) runCollector(ctx context.Context) {
	for {
		err := a.collector.Start(ctx)
		if err == nil {
			a.log.Info("trace collector started", applogger.String("backend", string(a.cfg.Backend())))
			return
		}
		if ctx.Err() != nil {
			return
		}
		a.log.Warn("trace collector start failed", applogger.Error(err), applogger.Duration("retry_ms", restartDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// shutdown gracefully stops all services, producers of data first.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.pipeline.Stop()
	a.manager.Close()
	a.relay.Close()

	// flush collected logs before the producer goes away
	a.log.RemoveCollector()

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
