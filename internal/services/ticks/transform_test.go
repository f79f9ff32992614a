package ticks

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BusScope/internal/domain/models"
	"BusScope/internal/services/window"
)

var (
	testRect  = Rect{X: 10, Y: 20, W: 500, H: 200}
	testWin   = window.State{Start: 100, End: 110, Duration: 10}
	testRange = models.Range{Min: 0, Max: 100}
)

func TestProjectIsLinearInTime(t *testing.T) {
	t.Parallel()

	p0, ok := Project(100, 50, testRect, testWin, testRange)
	require.True(t, ok)
	p1, _ := Project(105, 50, testRect, testWin, testRange)
	p2, _ := Project(110, 50, testRect, testWin, testRange)

	assert.InDelta(t, 10, p0.X, 1e-9)
	assert.InDelta(t, 260, p1.X, 1e-9)
	assert.InDelta(t, 510, p2.X, 1e-9)
	assert.InDelta(t, p1.X-p0.X, p2.X-p1.X, 1e-9)
}

func TestProjectPutsMaxValueAtTop(t *testing.T) {
	t.Parallel()

	top, _ := Project(100, 100, testRect, testWin, testRange)
	bottom, _ := Project(100, 0, testRect, testWin, testRange)
	assert.InDelta(t, 20, top.Y, 1e-9)
	assert.InDelta(t, 220, bottom.Y, 1e-9)
}

func TestProjectRejectsDegenerateInput(t *testing.T) {
	t.Parallel()

	_, ok := Project(100, 1, testRect, window.State{Start: 5, End: 5}, testRange)
	assert.False(t, ok)
	_, ok = Project(100, 1, testRect, testWin, models.Range{Min: 3, Max: 3})
	assert.False(t, ok)
}

func TestTimeAtInvertsProjection(t *testing.T) {
	t.Parallel()

	p, _ := Project(103.7, 1, testRect, testWin, testRange)
	assert.InDelta(t, 103.7, TimeAt(p.X, testRect, testWin), 1e-9)
}

func TestStepPathHoldsValues(t *testing.T) {
	t.Parallel()

	rect := Rect{W: 100, H: 100}
	win := window.State{Start: 0, End: 10, Duration: 10}
	yr := models.Range{Min: 0, Max: 10}
	samples := []models.Sample{{T: 1, V: 2}, {T: 4, V: 8}, {T: 6, V: 5}}

	got := StepPath(samples, rect, win, yr, 9)
	want := []Point{
		{X: 10, Y: 80},
		{X: 40, Y: 80}, {X: 40, Y: 20},
		{X: 60, Y: 20}, {X: 60, Y: 50},
		{X: 90, Y: 50},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b float64) bool { return a-b < 1e-9 && b-a < 1e-9 })); diff != "" {
		t.Errorf("StepPath mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, StepPath(nil, rect, win, yr, 9))
}

func TestClipKeepsEdgeCrossings(t *testing.T) {
	t.Parallel()

	rect := Rect{X: 10, W: 100, H: 100}
	path := []Point{{X: -20, Y: 30}, {X: 50, Y: 30}, {X: 50, Y: 70}, {X: 140, Y: 70}}

	got := Clip(path, rect)
	want := []Point{{X: 10, Y: 30}, {X: 50, Y: 30}, {X: 50, Y: 70}, {X: 110, Y: 70}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Clip mismatch (-want +got):\n%s", diff)
	}
}
