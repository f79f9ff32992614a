package usecase

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BusScope/internal/domain/models"
	"BusScope/internal/services/cursor"
	"BusScope/internal/services/interaction"
	"BusScope/internal/services/render"
	"BusScope/pkg/clock"
)

// nowSec is the mock wall clock of every ViewState test.
const nowSec = 1000.0

func newTestState(t *testing.T) (*ViewState, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock(time.Unix(int64(nowSec), 0))
	cfg := DefaultEngineConfig()
	cfg.Viewport = render.Viewport{Width: 564, Height: 208, PixelRatio: 1}
	return NewViewState(cfg, mock), mock
}

func register(t *testing.T, v *ViewState, sig models.Signal) models.Signal {
	t.Helper()
	sig.Enabled = true
	out, err := v.RegisterSignal(sig)
	require.NoError(t, err)
	return out
}

func TestRegisterSignalNormalizes(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)

	sig := register(t, v, models.Signal{MessageName: " Engine ", SignalName: "RPM", Range: &models.Range{Min: 5, Max: 5}})
	assert.Equal(t, "Engine.RPM", sig.ID)
	assert.Nil(t, sig.Range, "degenerate static ranges are discarded")

	bare := register(t, v, models.Signal{ID: "battery"})
	assert.Equal(t, "battery", bare.SignalName)

	_, err := v.RegisterSignal(models.Signal{})
	assert.ErrorIs(t, err, ErrInvalidSignal)

	ids := []string{}
	for _, s := range v.Signals() {
		ids = append(ids, s.ID)
	}
	assert.Empty(t, cmp.Diff([]string{"Engine.RPM", "battery"}, ids))
}

func TestReRegisterKeepsSamplesAndScale(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{MessageName: "Engine", SignalName: "RPM"})
	require.True(t, v.IngestSignalValue("Engine", "RPM", 900))
	v.AdjustZoom("Engine.RPM", 2)

	register(t, v, models.Signal{MessageName: "Engine", SignalName: "RPM", Unit: "rpm"})

	got, err := v.Signal("Engine.RPM")
	require.NoError(t, err)
	assert.Equal(t, "rpm", got.Unit)
	assert.Equal(t, 2.0, got.VerticalZoom)
	assert.Equal(t, 1, got.Buffered)
}

func TestIngestResolvesKeys(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{
		MessageName: "Engine",
		MessageID:   "0x1a0",
		SignalName:  "RPM",
		Aliases:     []string{"EngSpd"},
	})

	tests := []struct {
		name   string
		update models.SignalUpdate
		reason string
	}{
		{"qualified", models.SignalUpdate{Message: "Engine", Signal: "RPM", Timestamp: 995, Value: 1}, ""},
		{"bare signal", models.SignalUpdate{Signal: "RPM", Timestamp: 995, Value: 2}, ""},
		{"hex arbitration id", models.SignalUpdate{MessageID: "0x1A0", Signal: "RPM", Timestamp: 995, Value: 3}, ""},
		{"alias", models.SignalUpdate{Signal: "EngSpd", Timestamp: 995, Value: 4}, ""},
		{"unknown", models.SignalUpdate{Message: "Brake", Signal: "Pressure", Timestamp: 995, Value: 5}, DropUnmatched},
		{"nan", models.SignalUpdate{Signal: "RPM", Timestamp: 995, Value: math.NaN()}, DropInvalid},
	}
	for _, tc := range tests {
		u := tc.update
		stored, reason := v.Ingest(&u)
		assert.Equal(t, tc.reason == "", stored, tc.name)
		assert.Equal(t, tc.reason, reason, tc.name)
	}
	assert.Equal(t, 4, v.Buffered())

	_, reason := v.Ingest(nil)
	assert.Equal(t, DropInvalid, reason)
}

func TestDisabledSignalsDropSamples(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "speed"})
	require.NoError(t, v.SetSignalEnabled("speed", false))

	_, reason := v.Ingest(&models.SignalUpdate{Signal: "speed", Timestamp: 999, Value: 1})
	assert.Equal(t, DropDisabled, reason)
	assert.ErrorIs(t, v.SetSignalEnabled("nope", true), ErrSignalNotFound)
	assert.Empty(t, v.Frame().Series)
}

func TestIngestTraceEntryFansOut(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{MessageName: "Engine", SignalName: "RPM"})
	register(t, v, models.Signal{MessageName: "Engine", SignalName: "Temp"})

	n := v.IngestTraceEntry(&models.TraceEntry{
		TS:      998,
		ID:      "0x1A0",
		Message: "Engine",
		Decoded: map[string]interface{}{"RPM": 850.0, "Temp": "91.5", "Unused": 1.0},
	})
	assert.Equal(t, 2, n)
	assert.Zero(t, v.IngestTraceEntry(nil))

	got, err := v.Snapshot("Engine.Temp")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]models.Sample{{T: 998, V: 91.5}}, got))
}

func TestCombinedRangePadsSingleValue(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "speed"})
	_, _ = v.Ingest(&models.SignalUpdate{Signal: "speed", Timestamp: nowSec - 5, Value: 42})

	assert.Equal(t, models.Range{Min: 41, Max: 43}, v.CombinedRange())
	assert.Equal(t, models.Range{Min: 41, Max: 43}, v.DisplayRange(cursor.Combined))
}

func TestCombinedRangeUsesStaticRangeWithoutData(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "a", Range: &models.Range{Min: -10, Max: 0}})
	register(t, v, models.Signal{ID: "b"})
	_, _ = v.Ingest(&models.SignalUpdate{Signal: "b", Timestamp: nowSec - 1, Value: 5})
	// outside the window, ignored by ranges
	_, _ = v.Ingest(&models.SignalUpdate{Signal: "b", Timestamp: nowSec - 100, Value: 500})

	assert.Equal(t, models.Range{Min: -10, Max: 5}, v.CombinedRange())
}

func TestTimePerDivisionCompounds(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	d := v.Window().Duration

	v.AdjustTimePerDivision(1.2)
	v.AdjustTimePerDivision(1.2)

	w := v.Window()
	assert.InDelta(t, d*1.44, w.Duration, 1e-9)
	assert.InDelta(t, nowSec, w.End, 1e-9, "a running window stays anchored at now")
	assert.InDelta(t, w.Duration/10, v.TimePerDivision(), 1e-9)

	for i := 0; i < 100; i++ {
		v.AdjustTimePerDivision(1.2)
	}
	assert.Equal(t, 300.0, v.Window().Duration)
}

func TestCursorRules(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "speed"})

	_, err := v.EnableCursors(cursor.Combined)
	assert.ErrorIs(t, err, ErrCursorsLocked)
	assert.False(t, v.CursorsEnabled(cursor.Combined))

	v.Pause()
	r, err := v.EnableCursors(cursor.Combined)
	require.NoError(t, err)
	require.NotNil(t, r.A)
	require.NotNil(t, r.B)
	assert.InDelta(t, 993, *r.A, 1e-9)
	assert.InDelta(t, 997, *r.B, 1e-9)

	_, err = v.EnableCursors("missing")
	assert.ErrorIs(t, err, ErrSignalNotFound)

	_, err = v.SetCursor(cursor.Combined, 0, 3)
	require.NoError(t, err)
	r, err = v.SetCursor(cursor.Combined, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, "4.0s", r.Delta)

	r, err = v.SetCursor(cursor.Combined, 1, 3.0005)
	require.NoError(t, err)
	assert.Equal(t, "0.5ms", r.Delta)

	_, err = v.SetCursor(cursor.Combined, 2, 1)
	assert.Error(t, err)

	v.Resume()
	assert.False(t, v.CursorsEnabled(cursor.Combined), "resume disables cursors")
	assert.False(t, v.Paused())
}

func TestTickAdvancesAndEvicts(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "speed"})
	_, _ = v.Ingest(&models.SignalUpdate{Signal: "speed", Timestamp: 100, Value: 1})
	_, _ = v.Ingest(&models.SignalUpdate{Signal: "speed", Timestamp: 995, Value: 2})

	evicted := v.Tick(nowSec + 2)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, v.Buffered())
	assert.InDelta(t, nowSec+2, v.Window().End, 1e-9)

	v.Pause()
	v.Tick(nowSec + 5)
	assert.InDelta(t, nowSec+2, v.Window().End, 1e-9, "a paused window does not advance")
	assert.Zero(t, v.Tick(math.NaN()))
}

func TestScaleOperations(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "speed"})
	for i, val := range []float64{10, 30, 20} {
		_, _ = v.Ingest(&models.SignalUpdate{Signal: "speed", Timestamp: nowSec - 3 + float64(i), Value: val})
	}

	assert.Equal(t, models.Range{Min: 10, Max: 30}, v.DisplayRange("speed"))

	v.AdjustZoom("speed", 0.5)
	assert.Equal(t, models.Range{Min: 15, Max: 25}, v.DisplayRange("speed"))

	// dragging down a full panel height moves the view by the displayed span
	v.Pan("speed", 100, 100)
	assert.Equal(t, models.Range{Min: 25, Max: 35}, v.DisplayRange("speed"))

	require.NoError(t, v.ResetScale("speed"))
	assert.Equal(t, models.Range{Min: 10, Max: 30}, v.DisplayRange("speed"))

	require.NoError(t, v.AutoScale("speed"))
	st, err := v.Scale("speed")
	require.NoError(t, err)
	require.NotNil(t, st.Fit)
	assert.Equal(t, models.Range{Min: 10, Max: 30}, *st.Fit)

	require.NoError(t, v.AutoScale(cursor.Combined))
	assert.Equal(t, models.Range{Min: 10, Max: 30}, v.DisplayRange(cursor.Combined))

	assert.ErrorIs(t, v.ResetScale("missing"), ErrSignalNotFound)
	v.AdjustZoom("missing", 2)
}

func TestPausedDragShiftsWindow(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "speed"})
	v.Pause()

	// the combined plot of a 564 px wide viewport is 500 px wide
	c := v.Controller()
	c.PointerDown(interaction.Pointer{X: 100, Y: 100})
	c.PointerMove(interaction.Pointer{X: 200, Y: 100})
	c.PointerUp(interaction.Pointer{X: 200, Y: 100})

	assert.InDelta(t, nowSec-12, v.Window().Start, 1e-9)
	assert.InDelta(t, 10, v.Window().Duration, 1e-9)
}

func TestRemoveSignal(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "speed", Aliases: []string{"vel"}})
	register(t, v, models.Signal{ID: "velocity", Aliases: []string{"vel"}})
	_, _ = v.Ingest(&models.SignalUpdate{Signal: "speed", Timestamp: 999, Value: 1})
	v.Pause()
	_, err := v.EnableCursors("speed")
	require.NoError(t, err)

	require.NoError(t, v.RemoveSignal("speed"))
	assert.ErrorIs(t, v.RemoveSignal("speed"), ErrSignalNotFound)
	assert.False(t, v.CursorsEnabled("speed"))
	assert.Zero(t, v.Buffered())

	// the alias falls through to the remaining signal
	stored, _ := v.Ingest(&models.SignalUpdate{Signal: "vel", Timestamp: 999, Value: 2})
	assert.True(t, stored)
}

func TestEditModeGatesRemoval(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "speed"})
	var removed []string
	v.OnRemove(func(id string) { removed = append(removed, id) })

	assert.False(t, v.ActivateRemove("speed"))
	assert.Len(t, v.Signals(), 1)

	v.SetEditMode(true)
	assert.True(t, v.EditMode())
	assert.True(t, v.ActivateRemove("speed"))
	assert.Empty(t, v.Signals())
	assert.Equal(t, []string{"speed"}, removed)
}

func TestFrameAndLayout(t *testing.T) {
	t.Parallel()

	v, _ := newTestState(t)
	register(t, v, models.Signal{ID: "a", DisplayName: "Alpha", Color: "#ff0000"})
	register(t, v, models.Signal{MessageName: "Engine", SignalName: "RPM"})
	_, _ = v.Ingest(&models.SignalUpdate{Signal: "a", Timestamp: 995, Value: 1})

	f := v.Frame()
	require.Len(t, f.Series, 2)
	assert.Equal(t, "Alpha", f.Series[0].Label)
	assert.Equal(t, "Engine.RPM", f.Series[1].Label)
	assert.Equal(t, render.ModeCombined, f.Mode)
	assert.Len(t, v.Layout().Surfaces, 1)

	v.SetMode(render.ModeSeparate)
	assert.Len(t, v.Layout().Surfaces, 2)
	s, ok := v.SurfaceAt(100, 50)
	require.True(t, ok)
	assert.Equal(t, "a", s.Scope)

	assert.False(t, v.SetViewport(render.Viewport{Width: 0, Height: 10}))
	assert.True(t, v.SetViewport(render.Viewport{Width: 800, Height: 600, PixelRatio: 2}))
	assert.Equal(t, 800.0, v.Frame().Viewport.Width)
}
