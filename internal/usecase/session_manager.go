package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"BusScope/internal/domain/models"
	domrepo "BusScope/internal/domain/repository"
	"BusScope/internal/service/cache"
	"BusScope/internal/services/render"
	"BusScope/pkg/clock"
	"BusScope/pkg/logger"
)

// PainterFactory creates the raster target of a new session.
type PainterFactory func(vp render.Viewport) (render.Painter, error)

// CreateOptions customize a new session. Zero values use the engine config.
type CreateOptions struct {
	Viewport *render.Viewport `json:"viewport,omitempty"`
	Mode     string           `json:"mode,omitempty" validate:"omitempty,oneof=combined separate"`
	Signals  []models.Signal  `json:"signals,omitempty" validate:"dive"`
	// Preload registers every catalog signal, disabled, before Signals.
	Preload bool `json:"preload"`
}

// SessionInfo summarizes a live session.
type SessionInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Rendering bool      `json:"rendering"`
}

// SessionManager owns every live session and fans ingestion out to them.
type SessionManager struct {
	cfg        EngineConfig
	metrics    domrepo.Metrics
	log        *logger.Logger
	clock      clock.Clock
	newPainter PainterFactory
	catalog    domrepo.Catalog
	frames     cache.BytesCache

	mu       sync.RWMutex
	sessions map[string]*Session

	catMu      sync.Mutex
	catSignals []models.Signal
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

func WithPainterFactory(f PainterFactory) ManagerOption {
	return func(m *SessionManager) { m.newPainter = f }
}

// WithCatalog enables catalog preloading.
func WithCatalog(c domrepo.Catalog) ManagerOption {
	return func(m *SessionManager) { m.catalog = c }
}

func WithManagerClock(c clock.Clock) ManagerOption {
	return func(m *SessionManager) { m.clock = c }
}

// WithSharedFrameCache hands c to every session as its frame cache.
func WithSharedFrameCache(c cache.BytesCache) ManagerOption {
	return func(m *SessionManager) { m.frames = c }
}

func NewSessionManager(cfg EngineConfig, metrics domrepo.Metrics, log *logger.Logger, opts ...ManagerOption) *SessionManager {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	m := &SessionManager{
		cfg:      cfg,
		metrics:  metrics,
		log:      log,
		clock:    clock.Real{},
		sessions: make(map[string]*Session),
		newPainter: func(vp render.Viewport) (render.Painter, error) {
			return render.NewImagePainter(vp)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session.
func (m *SessionManager) Create(ctx context.Context, o CreateOptions) (*Session, error) {
	cfg := m.cfg
	if o.Viewport != nil {
		cfg.Viewport = *o.Viewport
	}
	if o.Mode != "" {
		cfg.Mode = o.Mode
	}
	painter, err := m.newPainter(cfg.Viewport)
	if err != nil {
		return nil, fmt.Errorf("create painter: %w", err)
	}

	opts := []SessionOption{
		WithSessionClock(m.clock),
		WithSessionMetrics(m.metrics),
		WithSessionLogger(m.log),
	}
	if m.frames != nil {
		opts = append(opts, WithFrameCache(m.frames))
	}
	s, err := NewSession(uuid.NewString(), cfg, painter, opts...)
	if err != nil {
		return nil, err
	}

	var signals []models.Signal
	if o.Preload {
		cat, err := m.CatalogSignals(ctx)
		if err != nil {
			m.log.Warn("catalog preload failed", logger.Error(err))
		}
		signals = append(signals, cat...)
	}
	signals = append(signals, o.Signals...)

	var regErr error
	if err := s.Do(ctx, func(v *ViewState) {
		for _, sig := range signals {
			if _, err := v.RegisterSignal(sig); err != nil {
				regErr = err
				return
			}
		}
	}); err != nil {
		s.Close()
		return nil, err
	}
	if regErr != nil {
		s.Close()
		return nil, regErr
	}

	s.Start()

	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetSessions(n)
	m.log.Info("session created", logger.String("session", s.ID()), logger.Int("signals", len(signals)))
	return s, nil
}

// Get returns a live session.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns live sessions ordered by creation time.
func (m *SessionManager) List() []SessionInfo {
	m.mu.RLock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, SessionInfo{ID: s.ID(), CreatedAt: s.CreatedAt(), Rendering: s.Rendering()})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete closes and forgets a session.
func (m *SessionManager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Close()
	m.metrics.SetSessions(n)
	if f, ok := m.metrics.(sessionForgetter); ok {
		f.ForgetSession(id)
	}
	m.log.Info("session deleted", logger.String("session", id))
	return nil
}

// sessionForgetter is implemented by metrics backends that keep per session series.
type sessionForgetter interface {
	ForgetSession(session string)
}

func (m *SessionManager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Ingest delivers u to every session. It implements repository.SignalSink.
func (m *SessionManager) Ingest(ctx context.Context, u *models.SignalUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessions := m.snapshot()
	if len(sessions) == 0 {
		m.metrics.RecordDropped("no_session")
		return nil
	}
	for _, s := range sessions {
		s.Ingest(u)
	}
	return nil
}

// IngestTraceEntry delivers every decoded signal of e to every session.
func (m *SessionManager) IngestTraceEntry(ctx context.Context, e *models.TraceEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	for _, s := range m.snapshot() {
		s.IngestTraceEntry(e)
	}
	return nil
}

// ClearAllSamples empties the buffers of every session, e.g. when a new
// recording starts.
func (m *SessionManager) ClearAllSamples(ctx context.Context) error {
	for _, s := range m.snapshot() {
		if err := s.Do(ctx, func(v *ViewState) { v.ClearAllSamples() }); err != nil {
			return err
		}
	}
	return nil
}

// CatalogSignals returns the catalog signals, fetching them once.
func (m *SessionManager) CatalogSignals(ctx context.Context) ([]models.Signal, error) {
	if m.catalog == nil {
		return nil, nil
	}
	m.catMu.Lock()
	defer m.catMu.Unlock()
	if m.catSignals != nil {
		return append([]models.Signal(nil), m.catSignals...), nil
	}
	sigs, err := m.catalog.Signals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	m.catSignals = sigs
	return append([]models.Signal(nil), sigs...), nil
}

// Close shuts every session down.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	m.metrics.SetSessions(0)
}

var _ domrepo.SignalSink = (*SessionManager)(nil)
