package render

import (
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"BusScope/pkg/clock"
	"BusScope/pkg/logger"
)

// DefaultFPS is the redraw rate when none is configured.
const DefaultFPS = 30

// Painter draws frames onto a raster surface it owns.
type Painter interface {
	// Resize reallocates the surface for a logical size and pixel ratio.
	Resize(width, height, pixelRatio float64) error
	// Paint draws f according to l. It must not retain f.
	Paint(f Frame, l Layout) error
	Image() image.Image
	WritePNG(w io.Writer) error
}

// Observer is notified after every painted frame.
type Observer func(seq uint64, took time.Duration, err error)

// Scheduler repaints a Source at a fixed rate. Cycles run on the Executor
// goroutine so they never interleave with state mutations.
type Scheduler struct {
	painter  Painter
	source   Source
	exec     Executor
	clock    clock.Clock
	interval time.Duration
	observer Observer
	log      *logger.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	active  atomic.Bool

	// owned by the executor goroutine
	viewport Viewport
	size     [3]float64
	layout   Layout
	surfaces map[string]Surface

	seq atomic.Uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithFPS sets the redraw rate.
func WithFPS(fps int) Option {
	return func(s *Scheduler) {
		if fps > 0 {
			s.interval = time.Second / time.Duration(fps)
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithObserver registers a per-frame callback.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithLogger sets the logger used for paint failures.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// NewScheduler builds a stopped scheduler. It fails with ErrNoTarget when
// painter is nil or the viewport has no area.
func NewScheduler(painter Painter, vp Viewport, source Source, exec Executor, opts ...Option) (*Scheduler, error) {
	if painter == nil || !vp.Valid() {
		return nil, ErrNoTarget
	}
	if source == nil || exec == nil {
		return nil, fmt.Errorf("render: scheduler needs a frame source and an executor")
	}
	s := &Scheduler{
		painter:  painter,
		source:   source,
		exec:     exec,
		clock:    clock.Real{},
		interval: time.Second / DefaultFPS,
		log:      logger.NewNop(),
		viewport: vp,
		surfaces: make(map[string]Surface),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins scheduling cycles. Calling it while running has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.active.Store(true)
	s.stop = make(chan struct{})
	go s.run(s.clock.NewTicker(s.interval), s.stop)
}

// Stop halts scheduling. A cycle already queued on the executor sees the stop
// and returns without painting. Calling it while stopped has no effect.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.active.Store(false)
	close(s.stop)
}

// Running reports whether cycles are being scheduled.
func (s *Scheduler) Running() bool { return s.active.Load() }

func (s *Scheduler) run(t clock.Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if !s.exec.Post(s.cycle) {
				return
			}
		}
	}
}

func (s *Scheduler) cycle() {
	if !s.active.Load() {
		return
	}
	s.Render()
}

// Render paints one frame immediately. It must run on the executor goroutine.
func (s *Scheduler) Render() error {
	began := s.clock.Now()
	f := s.source.Frame()
	if f.Viewport.Valid() {
		s.viewport = f.Viewport
	} else {
		f.Viewport = s.viewport
	}
	l := Arrange(f.Mode, seriesIDs(f), s.viewport)

	err := s.resize(l)
	if err == nil {
		err = s.painter.Paint(f, l)
	}
	s.layout = l
	s.prune(l)

	seq := s.seq.Add(1)
	if err != nil {
		s.log.Warn("frame paint failed", logger.Uint64("seq", seq), logger.Error(err))
	}
	if s.observer != nil {
		s.observer(seq, s.clock.Now().Sub(began), err)
	}
	return err
}

func (s *Scheduler) resize(l Layout) error {
	size := [3]float64{l.Width, l.Height, s.viewport.ratio()}
	if size == s.size {
		return nil
	}
	if err := s.painter.Resize(size[0], size[1], size[2]); err != nil {
		return fmt.Errorf("resize surface: %w", err)
	}
	s.size = size
	return nil
}

func (s *Scheduler) prune(l Layout) {
	live := make(map[string]struct{}, len(l.Surfaces))
	for _, sf := range l.Surfaces {
		live[sf.Key] = struct{}{}
		s.surfaces[sf.Key] = sf
	}
	for key := range s.surfaces {
		if _, ok := live[key]; !ok {
			delete(s.surfaces, key)
		}
	}
}

// Layout returns the arrangement used by the last painted frame. Like Render,
// it must be called on the executor goroutine.
func (s *Scheduler) Layout() Layout { return s.layout }

// Surfaces returns the number of surfaces currently cached. Executor only.
func (s *Scheduler) Surfaces() int { return len(s.surfaces) }

// Sequence is the number of frames painted so far.
func (s *Scheduler) Sequence() uint64 { return s.seq.Load() }

// Image returns the last painted frame. It is only valid until the next cycle.
func (s *Scheduler) Image() image.Image { return s.painter.Image() }

// WritePNG encodes the last painted frame.
func (s *Scheduler) WritePNG(w io.Writer) error { return s.painter.WritePNG(w) }
