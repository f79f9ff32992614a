package usecase

import (
	"fmt"
	"math"

	"BusScope/internal/domain/models"
	"BusScope/internal/services/cursor"
	"BusScope/internal/services/interaction"
	"BusScope/internal/services/render"
	"BusScope/internal/services/samples"
	"BusScope/internal/services/scale"
	"BusScope/internal/services/window"
	"BusScope/pkg/clock"
)

// Drop reasons reported by ingestion.
const (
	DropUnmatched = "unmatched"
	DropDisabled  = "disabled"
	DropInvalid   = "invalid"
)

// ViewState is everything one visualization session owns: the signal registry,
// sample buffers, window, scales, cursors and the gesture controller. It is not
// safe for concurrent use; a Session only touches it from its loop.
type ViewState struct {
	cfg      EngineConfig
	clock    clock.Clock
	registry *registry
	store    *samples.Store
	window   *window.Window
	combined *scale.State
	cursors  *cursor.Set
	control  *interaction.Controller
	mode     render.Mode
	viewport render.Viewport
	lastTick float64
	onRemove func(id string)
}

// NewViewState builds the state of an empty session whose window ends at the
// clock's current time.
func NewViewState(cfg EngineConfig, clk clock.Clock) *ViewState {
	if clk == nil {
		clk = clock.Real{}
	}
	now := clock.Seconds(clk.Now())
	v := &ViewState{
		cfg:      cfg,
		clock:    clk,
		registry: newRegistry(),
		store:    samples.New(samples.WithCapacity(cfg.Capacity), samples.WithPreroll(cfg.Preroll)),
		window:   window.New(cfg.Window, now),
		combined: scale.NewState(),
		cursors:  cursor.NewSet(),
		mode:     render.ParseMode(cfg.Mode),
		viewport: cfg.Viewport,
		lastTick: now,
	}
	v.control = interaction.New(v, interaction.WithRemoveCallback(func(id string) {
		_ = v.RemoveSignal(id)
		if v.onRemove != nil {
			v.onRemove(id)
		}
	}))
	return v
}

// OnRemove registers a callback for removals triggered from edit mode.
func (v *ViewState) OnRemove(fn func(id string)) { v.onRemove = fn }

// Now is the session clock in unix seconds.
func (v *ViewState) Now() float64 { return clock.Seconds(v.clock.Now()) }

// ---- signals ----

// RegisterSignal adds sig or replaces the descriptor of an existing id. Buffers
// and scales of an existing id survive.
func (v *ViewState) RegisterSignal(sig models.Signal) (models.Signal, error) {
	sig, err := normalizeSignal(sig)
	if err != nil {
		return sig, err
	}
	v.registry.put(sig)
	return sig, nil
}

// RemoveSignal forgets id together with its samples, scale and cursors.
func (v *ViewState) RemoveSignal(id string) error {
	if !v.registry.remove(id) {
		return fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}
	v.store.Drop(id)
	v.cursors.Prune(v.registry.has)
	return nil
}

// SetSignalEnabled toggles whether id accepts samples and is drawn.
func (v *ViewState) SetSignalEnabled(id string, enabled bool) error {
	e, ok := v.registry.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}
	e.signal.Enabled = enabled
	return nil
}

// Signals lists registered signals in registration order.
func (v *ViewState) Signals() []models.SignalView {
	out := make([]models.SignalView, 0, v.registry.len())
	v.registry.each(func(e *entry) {
		out = append(out, v.signalView(e))
	})
	return out
}

// Signal returns one registered signal.
func (v *ViewState) Signal(id string) (models.SignalView, error) {
	e, ok := v.registry.get(id)
	if !ok {
		return models.SignalView{}, fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}
	return v.signalView(e), nil
}

func (v *ViewState) signalView(e *entry) models.SignalView {
	return models.SignalView{
		Signal:         e.signal,
		VerticalZoom:   e.scale.Zoom,
		VerticalOffset: e.scale.Offset,
		Buffered:       v.store.Len(e.signal.ID),
	}
}

// ---- ingestion ----

// Ingest appends u to the signal it resolves to. The reason is empty when the
// sample was stored.
func (v *ViewState) Ingest(u *models.SignalUpdate) (stored bool, reason string) {
	if u == nil {
		return false, DropInvalid
	}
	e, ok := v.registry.resolve(u)
	if !ok {
		return false, DropUnmatched
	}
	if !e.signal.Enabled {
		return false, DropDisabled
	}
	if ok, _ := v.store.Append(e.signal.ID, u.Timestamp, u.Value); !ok {
		return false, DropInvalid
	}
	return true, ""
}

// IngestTraceEntry fans every decoded signal of e into the store and returns
// how many samples were stored.
func (v *ViewState) IngestTraceEntry(e *models.TraceEntry) int {
	if e == nil {
		return 0
	}
	n := 0
	for _, u := range e.Updates() {
		if ok, _ := v.Ingest(u); ok {
			n++
		}
	}
	return n
}

// IngestSignalValue stores a value for message.signal timestamped now.
func (v *ViewState) IngestSignalValue(message, signal string, value float64) bool {
	ok, _ := v.Ingest(&models.SignalUpdate{Message: message, Signal: signal, Timestamp: v.Now(), Value: value})
	return ok
}

// ClearAllSamples empties every buffer, e.g. when a new recording starts.
func (v *ViewState) ClearAllSamples() { v.store.ClearAll() }

// Buffered is the number of samples held across all signals.
func (v *ViewState) Buffered() int { return v.store.Total() }

// Snapshot returns the time-sorted samples of id visible in the window.
func (v *ViewState) Snapshot(id string) ([]models.Sample, error) {
	if !v.registry.has(id) {
		return nil, fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}
	w := v.window.State()
	return v.store.Snapshot(id, w.Start, w.End), nil
}

// Tick advances a running window to now and evicts samples nothing can show
// anymore. It returns the number of evicted samples.
func (v *ViewState) Tick(now float64) int {
	if !finite(now) {
		return 0
	}
	if dt := now - v.lastTick; dt > 0 {
		v.window.Advance(dt)
	}
	v.lastTick = now
	cutoff := math.Min(v.window.State().Start, v.window.HistoryStart(now)) - v.cfg.RetentionSlack
	evicted := v.store.Evict(cutoff)
	v.cursors.Prune(v.registry.has)
	return evicted
}

// ---- window ----

func (v *ViewState) Window() window.State { return v.window.State() }

func (v *ViewState) Paused() bool { return v.window.Paused() }

func (v *ViewState) TimePerDivision() float64 { return v.window.TimePerDivision() }

func (v *ViewState) Pause() { v.window.Pause() }

// Resume snaps the window back to now and switches every cursor off.
func (v *ViewState) Resume() {
	now := v.Now()
	v.window.Resume(now)
	v.lastTick = now
	v.cursors.DisableAll()
}

// ShiftWindow moves a paused window by delta seconds.
func (v *ViewState) ShiftWindow(delta float64) { v.window.ShiftWindow(delta, v.Now()) }

func (v *ViewState) AdjustTimePerDivision(factor float64) {
	v.window.AdjustTimePerDivision(factor, v.Now())
}

// ---- scales ----

// scaleFor returns the scale of a signal id or the combined scale for cursor.Combined.
func (v *ViewState) scaleFor(scope string) (*scale.State, error) {
	if scope == cursor.Combined {
		return v.combined, nil
	}
	e, ok := v.registry.get(scope)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSignalNotFound, scope)
	}
	return e.scale, nil
}

// Scale returns a copy of the scale of scope.
func (v *ViewState) Scale(scope string) (scale.State, error) {
	st, err := v.scaleFor(scope)
	if err != nil {
		return scale.State{}, err
	}
	return *st, nil
}

func (v *ViewState) AdjustZoom(scope string, factor float64) {
	if st, err := v.scaleFor(scope); err == nil {
		st.AdjustZoom(factor)
	}
}

// Pan offsets scope by deltaPixels of a panel panelHeight pixels tall.
func (v *ViewState) Pan(scope string, deltaPixels, panelHeight float64) {
	st, err := v.scaleFor(scope)
	if err != nil {
		return
	}
	st.Pan(deltaPixels, panelHeight, v.DisplayRange(scope).Span())
}

// ResetScale restores zoom and offset of scope and drops any fitted range.
func (v *ViewState) ResetScale(scope string) error {
	st, err := v.scaleFor(scope)
	if err != nil {
		return err
	}
	st.Reset()
	return nil
}

// AutoScale fits scope to the values currently inside the window.
func (v *ViewState) AutoScale(scope string) error {
	st, err := v.scaleFor(scope)
	if err != nil {
		return err
	}
	w := v.window.State()
	if scope == cursor.Combined {
		var all []float64
		for _, e := range v.registry.enabled() {
			all = append(all, v.visibleValues(e.signal.ID, w)...)
		}
		st.AutoScale(all)
		return nil
	}
	st.AutoScale(v.visibleValues(scope, w))
	return nil
}

// CombinedRange is the unzoomed union range of every enabled signal.
func (v *ViewState) CombinedRange() models.Range {
	w := v.window.State()
	enabled := v.registry.enabled()
	inputs := make([]scale.Input, 0, len(enabled))
	for _, e := range enabled {
		inputs = append(inputs, scale.Input{Values: v.visibleValues(e.signal.ID, w), Static: e.signal.Range})
	}
	return scale.CombinedRange(inputs)
}

// DisplayRange is the range scope is drawn against after zoom and offset.
func (v *ViewState) DisplayRange(scope string) models.Range {
	if scope == cursor.Combined {
		base := v.CombinedRange()
		if v.combined.Fit != nil && v.combined.Fit.Valid() {
			base = *v.combined.Fit
		}
		return v.combined.Apply(base)
	}
	e, ok := v.registry.get(scope)
	if !ok {
		return scale.DefaultRange
	}
	w := v.window.State()
	base := scale.BaseRange(e.scale.Fit, e.signal.Range, v.visibleValues(scope, w))
	return e.scale.Apply(base)
}

// visibleValues are the values of id with timestamps inside w.
func (v *ViewState) visibleValues(id string, w window.State) []float64 {
	q := v.store.Query(id, w.Start, w.End)
	out := make([]float64, 0, len(q))
	for _, s := range q {
		if w.Contains(s.T) {
			out = append(out, s.V)
		}
	}
	return out
}

// ---- cursors ----

// EnableCursors switches the cursors of scope on. The window must be paused.
func (v *ViewState) EnableCursors(scope string) (cursor.Readout, error) {
	if scope != cursor.Combined && !v.registry.has(scope) {
		return cursor.Readout{}, fmt.Errorf("%w: %s", ErrSignalNotFound, scope)
	}
	if !v.cursors.Enable(scope, v.window.Paused(), v.window.State()) {
		return cursor.Readout{}, ErrCursorsLocked
	}
	return v.cursors.Readout(scope), nil
}

func (v *ViewState) DisableCursors(scope string) { v.cursors.Disable(scope) }

func (v *ViewState) CursorsEnabled(scope string) bool { return v.cursors.Enabled(scope) }

// MoveCursor places cursor index of scope at t.
func (v *ViewState) MoveCursor(scope string, index int, t float64) { v.cursors.Move(scope, index, t) }

// SetCursor is MoveCursor with feedback for API callers.
func (v *ViewState) SetCursor(scope string, index int, t float64) (cursor.Readout, error) {
	if !v.cursors.Move(scope, index, t) {
		return cursor.Readout{}, fmt.Errorf("cursor %d of %q cannot move to %v", index, scope, t)
	}
	return v.cursors.Readout(scope), nil
}

func (v *ViewState) CursorHit(scope string, t, pxPerSecond float64) (int, bool) {
	return v.cursors.HitTest(scope, t, pxPerSecond)
}

func (v *ViewState) CursorReadout(scope string) cursor.Readout { return v.cursors.Readout(scope) }

// ---- layout, mode and input ----

func (v *ViewState) Mode() render.Mode { return v.mode }

func (v *ViewState) SetMode(m render.Mode) { v.mode = render.ParseMode(string(m)) }

func (v *ViewState) Viewport() render.Viewport { return v.viewport }

// SetViewport resizes the drawing area. Viewports without area are ignored.
func (v *ViewState) SetViewport(vp render.Viewport) bool {
	if !vp.Valid() {
		return false
	}
	v.viewport = vp
	return true
}

// Layout arranges the surfaces for the current mode and enabled signals.
func (v *ViewState) Layout() render.Layout {
	enabled := v.registry.enabled()
	ids := make([]string, len(enabled))
	for i, e := range enabled {
		ids[i] = e.signal.ID
	}
	return render.Arrange(v.mode, ids, v.viewport)
}

// SurfaceAt maps a viewport position to the interactive surface under it.
func (v *ViewState) SurfaceAt(x, y float64) (interaction.Surface, bool) {
	s, ok := v.Layout().At(x, y)
	if !ok {
		return interaction.Surface{}, false
	}
	return interaction.Surface{Scope: s.Key, Plot: s.Plot, HorizontalPan: true, VerticalPan: true}, true
}

// Controller is the gesture state machine fed by pointer and wheel input.
func (v *ViewState) Controller() *interaction.Controller { return v.control }

func (v *ViewState) SetEditMode(on bool) { v.control.SetEditMode(on) }

func (v *ViewState) EditMode() bool { return v.control.EditMode() }

// ActivateRemove removes id when edit mode is on.
func (v *ViewState) ActivateRemove(id string) bool { return v.control.ActivateRemove(id) }

// ---- rendering ----

// Frame captures what the next paint needs. Slices are fresh copies.
func (v *ViewState) Frame() render.Frame {
	w := v.window.State()
	f := render.Frame{
		Window:          w,
		Now:             v.Now(),
		Paused:          v.window.Paused(),
		Mode:            v.mode,
		CombinedRange:   v.DisplayRange(cursor.Combined),
		CombinedCursors: v.cursors.Get(cursor.Combined),
		Divisions:       v.window.Config().Divisions,
		Viewport:        v.viewport,
	}
	for _, e := range v.registry.enabled() {
		id := e.signal.ID
		label := e.signal.DisplayName
		if label == "" {
			label = e.signal.QualifiedName()
		}
		f.Series = append(f.Series, render.Series{
			ID:      id,
			Label:   label,
			Unit:    e.signal.Unit,
			Color:   e.signal.Color,
			Samples: v.store.Snapshot(id, w.Start, w.End),
			Range:   v.DisplayRange(id),
			Cursors: v.cursors.Get(id),
		})
	}
	return f
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
