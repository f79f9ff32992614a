package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BusScope/internal/domain/models"
	"BusScope/internal/service/ratelimit"
	"BusScope/pkg/clock"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []*models.SignalUpdate
	fail int
}

func (s *recordingSink) Ingest(_ context.Context, u *models.SignalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("sink down")
	}
	s.got = append(s.got, u)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type countingMetrics struct {
	mu      sync.Mutex
	dropped map[string]int
	errs    map[string]int
	ingest  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{dropped: map[string]int{}, errs: map[string]int{}}
}

func (m *countingMetrics) RecordIngested(string)         { m.mu.Lock(); m.ingest++; m.mu.Unlock() }
func (m *countingMetrics) RecordDropped(r string)        { m.mu.Lock(); m.dropped[r]++; m.mu.Unlock() }
func (m *countingMetrics) RecordError(k string)          { m.mu.Lock(); m.errs[k]++; m.mu.Unlock() }
func (m *countingMetrics) RecordLatency(string, float64) {}
func (m *countingMetrics) RecordFrame(string, float64)   {}
func (m *countingMetrics) SetBuffered(string, int)       {}
func (m *countingMetrics) SetSessions(int)               {}

func update(signal string, ts, v float64) *models.SignalUpdate {
	return &models.SignalUpdate{Message: "Engine", Signal: signal, Timestamp: ts, Value: v}
}

func TestProcessValidates(t *testing.T) {
	t.Parallel()

	sink, m := &recordingSink{}, newCountingMetrics()
	p := NewRealtimePipeline(sink, m)

	tests := []struct {
		name string
		in   *models.SignalUpdate
		want error
	}{
		{"nil", nil, ErrNilUpdate},
		{"empty signal", update("", 1, 1), ErrEmptySignal},
		{"zero timestamp", update("rpm", 0, 1), ErrInvalidTimestamp},
		{"nan value", update("rpm", 1, math.NaN()), ErrInvalidValue},
		{"inf value", update("rpm", 1, math.Inf(1)), ErrInvalidValue},
	}
	for _, tc := range tests {
		assert.ErrorIs(t, p.Process(context.Background(), tc.in), tc.want, tc.name)
	}
	assert.Zero(t, sink.count())
	assert.Equal(t, len(tests), m.errs["pipeline_validate"])
}

func TestProcessThrottlesPerKey(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock(time.Unix(100, 0))
	sink, m := &recordingSink{}, newCountingMetrics()
	p := NewRealtimePipeline(sink, m,
		WithLimiter(ratelimit.NewWithClock(mock)), WithMaxRPS(10), WithBurst(2))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Process(ctx, update("rpm", 100, float64(i))))
	}
	require.NoError(t, p.Process(ctx, update("speed", 100, 1)))

	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 3, m.dropped[DropThrottled])
	assert.Equal(t, 3, m.ingest)
}

func TestDefaultPipelineKeepsEverySample(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock(time.Unix(100, 0))
	sink, m := &recordingSink{}, newCountingMetrics()
	p := NewRealtimePipeline(sink, m, WithLimiter(ratelimit.NewWithClock(mock)))

	ctx := context.Background()
	for i := 0; i < 500; i++ {
		require.NoError(t, p.Process(ctx, update("rpm", 100+float64(i)/1000, float64(i))))
	}

	assert.Equal(t, 500, sink.count())
	assert.Zero(t, m.dropped[DropThrottled])
}

func TestTransformCanRenameAndDrop(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewRealtimePipeline(sink, newCountingMetrics(), WithMaxRPS(0),
		WithTransform(func(u *models.SignalUpdate) *models.SignalUpdate {
			if u.Signal == "ignored" {
				return nil
			}
			u.Signal = "EngineSpeed"
			return u
		}))

	ctx := context.Background()
	require.NoError(t, p.Process(ctx, update("rpm", 1, 1)))
	require.NoError(t, p.Process(ctx, update("ignored", 1, 1)))

	require.Equal(t, 1, sink.count())
	assert.Equal(t, "EngineSpeed", sink.got[0].Signal)
}

func TestFailedUpdatesAreBufferedAndFlushed(t *testing.T) {
	t.Parallel()

	sink, m := &recordingSink{fail: 1}, newCountingMetrics()
	p := NewRealtimePipeline(sink, m, WithMaxRPS(0), WithBufferSize(4))

	err := p.Process(context.Background(), update("rpm", 1, 7))
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Start(ctx)
	defer p.Stop()

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.Buffered())
}

func TestProcessEntryFansOut(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewRealtimePipeline(sink, newCountingMetrics(), WithMaxRPS(0))

	err := p.ProcessEntry(context.Background(), &models.TraceEntry{
		TS:      12.5,
		ID:      "0x1a0",
		Message: "Engine",
		Decoded: map[string]interface{}{"rpm": 900.0, "gear": "3", "label": "n/a"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sink.count())
	assert.ErrorIs(t, p.ProcessEntry(context.Background(), nil), ErrNilUpdate)
}
