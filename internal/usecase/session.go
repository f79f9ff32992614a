package usecase

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"sync"
	"time"

	"BusScope/internal/domain/models"
	domrepo "BusScope/internal/domain/repository"
	"BusScope/internal/service/cache"
	"BusScope/internal/services/export"
	"BusScope/internal/services/render"
	"BusScope/pkg/clock"
	"BusScope/pkg/logger"
)

// Session is one visualization: a ViewState driven by its own loop, a window
// advance ticker and a render scheduler. All methods are safe for concurrent use.
type Session struct {
	id      string
	created time.Time
	cfg     EngineConfig
	clock   clock.Clock
	metrics domrepo.Metrics
	log     *logger.Logger
	frames  cache.BytesCache

	loop  *loop
	state *ViewState
	sched *render.Scheduler

	mu        sync.Mutex
	advancing bool
	stopTick  chan struct{}
	closed    bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

func WithSessionClock(c clock.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

func WithSessionMetrics(m domrepo.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

func WithSessionLogger(l *logger.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithFrameCache stores encoded frames in c keyed by session and frame sequence.
func WithFrameCache(c cache.BytesCache) SessionOption {
	return func(s *Session) { s.frames = c }
}

// NewSession builds a stopped session drawing with painter. It fails with
// render.ErrNoTarget when painter is nil or the configured viewport has no area.
func NewSession(id string, cfg EngineConfig, painter render.Painter, opts ...SessionOption) (*Session, error) {
	s := &Session{
		id:      id,
		cfg:     cfg,
		clock:   clock.Real{},
		metrics: nopMetrics{},
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.created = s.clock.Now()
	s.log = s.log.With(logger.String("session", id))

	if painter == nil || !cfg.Viewport.Valid() {
		return nil, render.ErrNoTarget
	}
	s.state = NewViewState(cfg, s.clock)
	s.loop = newLoop(cfg.QueueSize)
	sched, err := render.NewScheduler(painter, cfg.Viewport, s.state, s.loop,
		render.WithFPS(cfg.FPS),
		render.WithClock(s.clock),
		render.WithLogger(s.log),
		render.WithObserver(func(_ uint64, took time.Duration, err error) {
			if err != nil {
				s.metrics.RecordError("render")
				return
			}
			s.metrics.RecordFrame(s.id, took.Seconds())
		}),
	)
	if err != nil {
		s.loop.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s.sched = sched
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.created }

// Do runs fn on the session loop and waits for it.
func (s *Session) Do(ctx context.Context, fn func(v *ViewState)) error {
	return s.loop.Do(ctx, func() { fn(s.state) })
}

// Post queues fn on the session loop without waiting.
func (s *Session) Post(fn func(v *ViewState)) bool {
	return s.loop.Post(func() { fn(s.state) })
}

// Start begins advancing the window and, when rendering is enabled, painting.
// It is idempotent.
func (s *Session) Start() {
	s.mu.Lock()
	if s.closed || s.advancing {
		s.mu.Unlock()
		return
	}
	s.advancing = true
	s.stopTick = make(chan struct{})
	go s.advance(s.clock.NewTicker(s.cfg.AdvanceInterval), s.stopTick)
	s.mu.Unlock()

	if s.cfg.AutoStart {
		s.sched.Start()
	}
}

// StartRendering starts the render scheduler.
func (s *Session) StartRendering() { s.sched.Start() }

// StopRendering stops the render scheduler; it takes effect before the next cycle.
func (s *Session) StopRendering() { s.sched.Stop() }

func (s *Session) Rendering() bool { return s.sched.Running() }

func (s *Session) advance(t clock.Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C():
			sec := clock.Seconds(now)
			// skip ticks while the loop is saturated; the next one catches up
			s.loop.TryPost(func() {
				s.state.Tick(sec)
				s.metrics.SetBuffered(s.id, s.state.Buffered())
			})
		}
	}
}

// Ingest queues u for the session. Unmatched and disabled signals are dropped
// and counted.
func (s *Session) Ingest(u *models.SignalUpdate) bool {
	return s.loop.Post(func() {
		if ok, reason := s.state.Ingest(u); !ok {
			s.metrics.RecordDropped(reason)
		}
	})
}

// IngestTraceEntry queues every decoded signal of e.
func (s *Session) IngestTraceEntry(e *models.TraceEntry) bool {
	if e == nil {
		return false
	}
	updates := e.Updates()
	return s.loop.Post(func() {
		for _, u := range updates {
			if ok, reason := s.state.Ingest(u); !ok {
				s.metrics.RecordDropped(reason)
			}
		}
	})
}

// PNG returns the latest frame encoded as PNG and its sequence number. A frame
// is painted on demand when the scheduler has not produced one yet.
func (s *Session) PNG(ctx context.Context) ([]byte, uint64, error) {
	var (
		buf bytes.Buffer
		seq uint64
		err error
		hit []byte
	)
	doErr := s.Do(ctx, func(*ViewState) {
		if s.sched.Sequence() == 0 || !s.sched.Running() {
			if err = s.sched.Render(); err != nil {
				return
			}
		}
		seq = s.sched.Sequence()
		if b, ok := s.cachedFrame(seq); ok {
			hit = b
			return
		}
		err = s.sched.WritePNG(&buf)
	})
	if doErr != nil {
		return nil, 0, doErr
	}
	if err != nil {
		return nil, 0, fmt.Errorf("encode frame: %w", err)
	}
	if hit != nil {
		return hit, seq, nil
	}
	s.storeFrame(seq, buf.Bytes())
	return buf.Bytes(), seq, nil
}

func (s *Session) frameKey(seq uint64) string {
	return cache.Key("busscope", "frame", s.id, seq)
}

func (s *Session) cachedFrame(seq uint64) ([]byte, bool) {
	if s.frames == nil {
		return nil, false
	}
	b, ok, err := s.frames.GetBytes(s.frameKey(seq))
	if err != nil {
		s.log.Warn("frame cache read failed", logger.Error(err))
		return nil, false
	}
	return b, ok
}

func (s *Session) storeFrame(seq uint64, b []byte) {
	if s.frames == nil || len(b) == 0 {
		return
	}
	if err := s.frames.SetBytes(s.frameKey(seq), b, s.cfg.FrameTTL); err != nil {
		s.log.Warn("frame cache write failed", logger.Error(err))
	}
}

// CopyFrame copies the latest frame into dst unless it still holds frame last.
// dst is reallocated when nil or sized differently. A stopped scheduler renders
// on demand, like PNG.
func (s *Session) CopyFrame(ctx context.Context, dst *image.RGBA, last uint64) (*image.RGBA, uint64, error) {
	seq := last
	var err error
	doErr := s.Do(ctx, func(*ViewState) {
		if s.sched.Sequence() == 0 || !s.sched.Running() {
			if err = s.sched.Render(); err != nil {
				return
			}
		}
		cur := s.sched.Sequence()
		if cur == last && dst != nil {
			return
		}
		src := s.sched.Image()
		if src == nil {
			return
		}
		b := src.Bounds()
		if dst == nil || dst.Bounds() != b {
			dst = image.NewRGBA(b)
		}
		draw.Draw(dst, b, src, b.Min, draw.Src)
		seq = cur
	})
	if doErr != nil {
		return dst, last, doErr
	}
	return dst, seq, err
}

// ExportHTML writes the visible window as an echarts page.
func (s *Session) ExportHTML(ctx context.Context, w io.Writer, title string) error {
	var f render.Frame
	if err := s.Do(ctx, func(v *ViewState) { f = v.Frame() }); err != nil {
		return err
	}
	if title == "" {
		title = "BusScope " + s.id
	}
	return export.HTML(w, f, export.Options{Title: title})
}

// Close stops every goroutine of the session. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.advancing {
		close(s.stopTick)
		s.advancing = false
	}
	s.mu.Unlock()

	s.sched.Stop()
	s.loop.Close()
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type nopMetrics struct{}

func (nopMetrics) RecordIngested(string)         {}
func (nopMetrics) RecordDropped(string)          {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordFrame(string, float64)   {}
func (nopMetrics) SetBuffered(string, int)       {}
func (nopMetrics) SetSessions(int)               {}
