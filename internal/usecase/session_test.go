package usecase

import (
	"bytes"
	"context"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BusScope/internal/domain/models"
	"BusScope/internal/service/cache"
	"BusScope/internal/services/render"
	"BusScope/pkg/clock"
)

type stubPainter struct {
	mu     sync.Mutex
	paints int
}

func (p *stubPainter) Resize(_, _, _ float64) error { return nil }

func (p *stubPainter) Paint(render.Frame, render.Layout) error {
	p.mu.Lock()
	p.paints++
	p.mu.Unlock()
	return nil
}

func (p *stubPainter) Image() image.Image         { return image.NewRGBA(image.Rect(0, 0, 1, 1)) }
func (p *stubPainter) WritePNG(w io.Writer) error { _, err := w.Write([]byte("\x89PNG stub")); return err }

func (p *stubPainter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paints
}

func testEngineConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.Viewport = render.Viewport{Width: 320, Height: 200, PixelRatio: 1}
	cfg.AutoStart = false
	return cfg
}

func newTestSession(t *testing.T, opts ...SessionOption) (*Session, *clock.Mock, *stubPainter) {
	t.Helper()
	mock := clock.NewMock(time.Unix(int64(nowSec), 0))
	p := &stubPainter{}
	s, err := NewSession("s1", testEngineConfig(), p, append([]SessionOption{WithSessionClock(mock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, mock, p
}

func TestNewSessionRequiresTarget(t *testing.T) {
	t.Parallel()

	_, err := NewSession("x", testEngineConfig(), nil)
	assert.ErrorIs(t, err, render.ErrNoTarget)

	cfg := testEngineConfig()
	cfg.Viewport.Height = 0
	_, err = NewSession("x", cfg, &stubPainter{})
	assert.ErrorIs(t, err, render.ErrNoTarget)
}

func TestSessionIngestRunsOnLoop(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Do(ctx, func(v *ViewState) {
		_, err := v.RegisterSignal(models.Signal{ID: "speed", Enabled: true})
		require.NoError(t, err)
	}))

	require.True(t, s.Ingest(&models.SignalUpdate{Signal: "speed", Timestamp: 999, Value: 3}))
	require.True(t, s.IngestTraceEntry(&models.TraceEntry{TS: 999.5, Decoded: map[string]interface{}{"speed": 4}}))

	var n int
	require.NoError(t, s.Do(ctx, func(v *ViewState) { n = v.Buffered() }))
	assert.Equal(t, 2, n)
}

func TestSessionAdvancesWindow(t *testing.T) {
	t.Parallel()

	s, mock, _ := newTestSession(t)
	s.Start()
	s.Start()

	mock.Advance(time.Second)
	require.Eventually(t, func() bool {
		var end float64
		_ = s.Do(context.Background(), func(v *ViewState) { end = v.Window().End })
		return end == nowSec+1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, s.Rendering(), "rendering waits for StartRendering without auto start")
}

func TestSessionRendersWhenStarted(t *testing.T) {
	t.Parallel()

	s, mock, p := newTestSession(t)
	s.StartRendering()
	assert.True(t, s.Rendering())

	mock.Advance(time.Second / 30)
	require.Eventually(t, func() bool { return p.count() > 0 }, time.Second, 5*time.Millisecond)

	s.StopRendering()
	assert.False(t, s.Rendering())
}

func TestSessionPNGUsesFrameCache(t *testing.T) {
	t.Parallel()

	frames := cache.NewTTLCache()
	s, _, p := newTestSession(t, WithFrameCache(frames))
	ctx := context.Background()

	b, seq, err := s.PNG(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG")))
	assert.Equal(t, 1, p.count(), "a stopped session paints on demand")

	cached, ok, err := frames.GetBytes("busscope:frame:s1:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, cached)
}

func TestSessionExportHTML(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Do(ctx, func(v *ViewState) {
		_, _ = v.RegisterSignal(models.Signal{ID: "speed", Enabled: true})
		v.IngestSignalValue("", "speed", 12)
	}))

	var buf bytes.Buffer
	require.NoError(t, s.ExportHTML(ctx, &buf, ""))
	assert.Contains(t, buf.String(), "BusScope s1")
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestSession(t)
	s.Start()
	s.StartRendering()
	s.Close()
	s.Close()

	assert.True(t, s.Closed())
	assert.False(t, s.Rendering())
	assert.ErrorIs(t, s.Do(context.Background(), func(*ViewState) {}), ErrSessionClosed)
	assert.False(t, s.Ingest(&models.SignalUpdate{Signal: "x", Timestamp: 1, Value: 1}))
}

func TestSessionCopyFrame(t *testing.T) {
	t.Parallel()

	s, _, p := newTestSession(t)
	ctx := context.Background()

	dst, seq, err := s.CopyFrame(ctx, nil, 0)
	require.NoError(t, err)
	require.NotNil(t, dst)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, image.Rect(0, 0, 1, 1), dst.Bounds())

	again, seq, err := s.CopyFrame(ctx, dst, seq)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq, "a stopped session repaints on demand")
	assert.Same(t, dst, again, "a buffer of the right size is reused")
	assert.Equal(t, 2, p.count())

	s.Close()
	kept, seq, err := s.CopyFrame(ctx, dst, seq)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Same(t, dst, kept)
	assert.Equal(t, uint64(2), seq)
}
