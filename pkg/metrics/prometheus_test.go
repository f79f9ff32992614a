package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordIngested("websocket")
	r.RecordIngested("websocket")
	r.RecordDropped("throttled")
	r.RecordFrame("s1", 0.004)
	r.SetBuffered("s1", 42)
	r.SetSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ingested.WithLabelValues("websocket")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dropped.WithLabelValues("throttled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.frames.WithLabelValues("s1")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.buffered.WithLabelValues("s1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.sessions))

	n, err := testutil.GatherAndCount(reg, "busscope_samples_buffered")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r.ForgetSession("s1")
	n, err = testutil.GatherAndCount(reg, "busscope_samples_buffered")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
