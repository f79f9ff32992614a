package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"BusScope/internal/domain/models"
	domrepo "BusScope/internal/domain/repository"
	"BusScope/internal/service/ratelimit"
	"BusScope/pkg/logger"
)

// Drop reasons recorded by the pipeline.
const (
	DropThrottled  = "throttled"
	DropBufferFull = "buffer_full"
)

var (
	ErrNilUpdate        = errors.New("pipeline: update is nil")
	ErrEmptySignal      = errors.New("pipeline: signal name is empty")
	ErrInvalidTimestamp = errors.New("pipeline: timestamp is not a positive finite number")
	ErrInvalidValue     = errors.New("pipeline: value is not finite")
)

// RealtimePipeline sits between a transport and the session manager. It
// validates, throttles per signal key, optionally transforms, and buffers
// updates while the downstream sink fails.
type RealtimePipeline struct {
	sink    domrepo.SignalSink
	metrics domrepo.Metrics
	limiter *ratelimit.Limiter
	log     *logger.Logger
	source  string

	maxRPS  float64
	burst   float64
	bufSize int
	bufCh   chan *models.SignalUpdate

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}

	transform func(*models.SignalUpdate) *models.SignalUpdate
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the sustained updates per second per signal key. Updates
// over the rate are dropped. Zero, the default, disables throttling.
func WithMaxRPS(n float64) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBurst sets how many updates of one key may pass back to back.
func WithBurst(n float64) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 1 {
			p.burst = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook that rewrites updates before throttling, e.g. to
// rename signals. Returning nil drops the update.
func WithTransform(fn func(*models.SignalUpdate) *models.SignalUpdate) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func WithLimiter(l *ratelimit.Limiter) PipelineOption {
	return func(p *RealtimePipeline) { p.limiter = l }
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *RealtimePipeline) { p.log = l }
}

// WithSource names the transport in ingestion metrics.
func WithSource(name string) PipelineOption {
	return func(p *RealtimePipeline) { p.source = name }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(sink domrepo.SignalSink, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		sink:    sink,
		metrics: metrics,
		maxRPS:  0,
		burst:   50,
		bufSize: 1000,
		source:  "stream",
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.limiter == nil {
		p.limiter = ratelimit.New()
	}
	if p.log == nil {
		p.log = logger.NewNop()
	}
	p.bufCh = make(chan *models.SignalUpdate, p.bufSize)
	return p
}

// Start launches background flushing of buffered updates. It is idempotent.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.flush(ctx, p.stopCh, p.done)
}

func (p *RealtimePipeline) flush(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	const minBackoff, maxBackoff = 50 * time.Millisecond, 2 * time.Second
	backoff := minBackoff
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case u := <-p.bufCh:
			if err := p.sink.Ingest(ctx, u); err == nil {
				backoff = minBackoff
				p.metrics.RecordIngested(p.source)
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			if backoff < maxBackoff {
				backoff *= 2
			}
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			select {
			case p.bufCh <- u:
			default:
				p.metrics.RecordDropped(DropBufferFull)
				p.log.Warn("pipeline buffer full, update dropped", logger.String("signal", u.Signal))
			}
		}
	}
}

// Stop halts background flushing and waits for it to exit.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()
	<-done
}

// Buffered is the number of updates waiting for the sink to recover.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles and forwards u, buffering it when the sink
// fails. Throttled updates are dropped without error.
func (p *RealtimePipeline) Process(ctx context.Context, u *models.SignalUpdate) error {
	start := time.Now()
	if err := validateUpdate(u); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		if u = p.transform(u); u == nil {
			return nil
		}
		if err := validateUpdate(u); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.limiter.Allow(u.Keys()[0], p.burst, p.maxRPS) {
		p.metrics.RecordDropped(DropThrottled)
		return nil
	}

	if err := p.sink.Ingest(ctx, u); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- u:
		default:
			p.metrics.RecordDropped(DropBufferFull)
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordIngested(p.source)
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// ProcessEntry runs every decoded signal of a trace entry through Process and
// returns the first error.
func (p *RealtimePipeline) ProcessEntry(ctx context.Context, e *models.TraceEntry) error {
	if e == nil {
		return ErrNilUpdate
	}
	var first error
	for _, u := range e.Updates() {
		if err := p.Process(ctx, u); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func validateUpdate(u *models.SignalUpdate) error {
	switch {
	case u == nil:
		return ErrNilUpdate
	case u.Signal == "":
		return ErrEmptySignal
	case u.Timestamp <= 0 || math.IsNaN(u.Timestamp) || math.IsInf(u.Timestamp, 0):
		return ErrInvalidTimestamp
	case math.IsNaN(u.Value) || math.IsInf(u.Value, 0):
		return ErrInvalidValue
	}
	return nil
}
