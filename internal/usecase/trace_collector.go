package usecase

import (
	"context"
	"sync"

	"BusScope/internal/domain/models"
	drepo "BusScope/internal/domain/repository"
	mid "BusScope/internal/middleware"
	"BusScope/pkg/logger"
)

// TraceCollector reads a live trace stream and hands every entry to the relay.
type TraceCollector struct {
	stream  drepo.TraceStream
	relay   *TraceRelay
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
	log     *logger.Logger

	wg sync.WaitGroup
}

// NewTraceCollector creates a new TraceCollector instance. pipe may be nil when
// the relay publishes to Kafka only.
func NewTraceCollector(stream drepo.TraceStream, relay *TraceRelay, metrics drepo.Metrics, pipe *mid.RealtimePipeline, log *logger.Logger) *TraceCollector {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TraceCollector{stream: stream, relay: relay, metrics: metrics, pipe: pipe, log: log.Component("collector")}
}

// IsConnected returns true if the trace stream is connected.
func (c *TraceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TraceCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	entries, errs := c.stream.Read(ctx)
	c.wg.Add(1)
	go c.consume(ctx, entries, errs)
	return nil
}

func (c *TraceCollector) consume(ctx context.Context, entries <-chan *models.TraceEntry, errs <-chan error) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("trace stream failed, reconnecting", logger.Error(err))
			if err := c.stream.Reconnect(ctx); err != nil {
				c.log.Error("reconnect failed", logger.Error(err))
			}
		case e, ok := <-entries:
			if !ok {
				return
			}
			if e == nil {
				continue
			}
			if err := c.relay.Process(ctx, e); err != nil {
				c.log.Debug("trace entry not delivered", logger.String("message", e.Message), logger.Error(err))
			}
		}
	}
}

func (c *TraceCollector) Stop() error { return c.stream.Close() }

// Relay returns the underlying relay for lifecycle management.
func (c *TraceCollector) Relay() *TraceRelay { return c.relay }

// Shutdown stops the pipeline, closes the stream and waits for the reader.
func (c *TraceCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	err := c.stream.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
