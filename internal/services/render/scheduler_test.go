package render

import (
	"bytes"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BusScope/internal/domain/models"
	"BusScope/internal/services/window"
	"BusScope/pkg/clock"
)

type fakePainter struct {
	resizes [][3]float64
	paints  []Layout
	fail    error
}

func (p *fakePainter) Resize(w, h, r float64) error {
	p.resizes = append(p.resizes, [3]float64{w, h, r})
	return nil
}

func (p *fakePainter) Paint(_ Frame, l Layout) error {
	p.paints = append(p.paints, l)
	return p.fail
}

func (p *fakePainter) Image() image.Image         { return nil }
func (p *fakePainter) WritePNG(w io.Writer) error { _, err := w.Write([]byte("png")); return err }

type staticSource struct{ frame Frame }

func (s *staticSource) Frame() Frame { return s.frame }

// queueExec hands posted tasks to the test goroutine.
type queueExec struct{ tasks chan func() }

func newQueueExec() *queueExec { return &queueExec{tasks: make(chan func(), 16)} }

func (q *queueExec) Post(task func()) bool {
	q.tasks <- task
	return true
}

func (q *queueExec) next(t *testing.T) func() {
	t.Helper()
	select {
	case task := <-q.tasks:
		return task
	case <-time.After(time.Second):
		t.Fatal("no task posted")
		return nil
	}
}

var testViewport = Viewport{Width: 400, Height: 300, PixelRatio: 2}

func TestNewSchedulerRequiresTarget(t *testing.T) {
	t.Parallel()

	src, exec := &staticSource{}, newQueueExec()

	_, err := NewScheduler(nil, testViewport, src, exec)
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = NewScheduler(&fakePainter{}, Viewport{Width: 0, Height: 10}, src, exec)
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = NewScheduler(&fakePainter{}, Viewport{Width: 10, Height: -1}, src, exec)
	assert.ErrorIs(t, err, ErrNoTarget)

	s, err := NewScheduler(&fakePainter{}, testViewport, src, exec)
	require.NoError(t, err)
	assert.False(t, s.Running())
}

func TestRenderResizesOnlyWhenSizeChanges(t *testing.T) {
	t.Parallel()

	p := &fakePainter{}
	src := &staticSource{frame: Frame{Mode: ModeCombined}}
	s, err := NewScheduler(p, testViewport, src, newQueueExec())
	require.NoError(t, err)

	require.NoError(t, s.Render())
	require.NoError(t, s.Render())
	assert.Equal(t, [][3]float64{{400, 300, 2}}, p.resizes)

	// a frame without area keeps the last size
	src.frame.Viewport = Viewport{Width: -5, Height: 10}
	require.NoError(t, s.Render())
	assert.Equal(t, [][3]float64{{400, 300, 2}}, p.resizes)

	src.frame.Viewport = Viewport{Width: 800, Height: 300, PixelRatio: 2}
	require.NoError(t, s.Render())
	require.NoError(t, s.Render())
	assert.Equal(t, [][3]float64{{400, 300, 2}, {800, 300, 2}}, p.resizes)

	src.frame.Viewport = Viewport{}
	require.NoError(t, s.Render())
	assert.Equal(t, [][3]float64{{400, 300, 2}, {800, 300, 2}}, p.resizes)
	assert.Equal(t, uint64(6), s.Sequence())
}

func TestRenderPrunesRemovedPanels(t *testing.T) {
	t.Parallel()

	p := &fakePainter{}
	src := &staticSource{frame: Frame{
		Mode:   ModeSeparate,
		Series: []Series{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}}
	s, err := NewScheduler(p, testViewport, src, newQueueExec())
	require.NoError(t, err)

	require.NoError(t, s.Render())
	assert.Equal(t, 3, s.Surfaces())

	src.frame.Series = src.frame.Series[:1]
	require.NoError(t, s.Render())
	assert.Equal(t, 1, s.Surfaces())
	assert.Equal(t, "a", s.Layout().Surfaces[0].Key)
}

func TestRenderReportsPaintErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var observed error
	p := &fakePainter{fail: boom}
	s, err := NewScheduler(p, testViewport, &staticSource{}, newQueueExec(),
		WithObserver(func(_ uint64, _ time.Duration, err error) { observed = err }))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Render(), boom)
	assert.ErrorIs(t, observed, boom)
	assert.Equal(t, uint64(1), s.Sequence())
}

func TestStartStopIsIdempotent(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock(time.Unix(0, 0))
	exec := newQueueExec()
	p := &fakePainter{}
	s, err := NewScheduler(p, testViewport, &staticSource{}, exec, WithClock(mock), WithFPS(10))
	require.NoError(t, err)

	s.Start()
	s.Start()
	assert.True(t, s.Running())

	// ticker creation happens on Start, so the first advance fires it
	mock.Advance(100 * time.Millisecond)
	exec.next(t)()
	assert.Len(t, p.paints, 1)

	mock.Advance(100 * time.Millisecond)
	task := exec.next(t)
	s.Stop()
	s.Stop()
	task()
	assert.Len(t, p.paints, 1, "a cycle queued before Stop must not paint")
	assert.False(t, s.Running())
}

func TestImagePainterHonorsPixelRatio(t *testing.T) {
	t.Parallel()

	p, err := NewImagePainter(Viewport{Width: 200, Height: 100, PixelRatio: 2})
	require.NoError(t, err)

	v := 5.0
	f := Frame{
		Window:        window.State{Start: 0, End: 10, Duration: 10},
		Now:           10,
		Mode:          ModeCombined,
		CombinedRange: models.Range{Min: 0, Max: 10},
		Divisions:     10,
		Series: []Series{{
			ID:      "rpm",
			Label:   "Engine.RPM",
			Samples: []models.Sample{{T: 1, V: 2}, {T: 4, V: 8}},
		}},
	}
	f.CombinedCursors.Enabled = true
	f.CombinedCursors.Positions[0] = &v

	require.NoError(t, p.Paint(f, Arrange(ModeCombined, nil, Viewport{Width: 200, Height: 100})))

	b := p.Image().Bounds()
	assert.Equal(t, 400, b.Dx())
	assert.Equal(t, 200, b.Dy())

	var buf bytes.Buffer
	require.NoError(t, p.WritePNG(&buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestImagePainterRejectsEmptySurface(t *testing.T) {
	t.Parallel()

	_, err := NewImagePainter(Viewport{})
	assert.ErrorIs(t, err, ErrNoTarget)
}
