package logger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *fakePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *fakePublisher) published() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]AggregatedLogEntry(nil), p.batches...)
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busscope.log")
	l, err := New(&Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	l.Component("render").Info("frame drawn", String("session", "s1"), Int("signals", 3), Duration("took", 12*time.Millisecond))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(b))), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "frame drawn", entry["message"])
	assert.Equal(t, "render", entry["component"])
	assert.Equal(t, "s1", entry["session"])
	assert.EqualValues(t, 3, entry["signals"])
	assert.EqualValues(t, 12, entry["took"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestCollectorReachesEarlierChildren(t *testing.T) {
	t.Parallel()

	root := NewNop()
	child := root.Component("ingest")

	pub := &fakePublisher{}
	root.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "busscope.logs",
		Service:        "busscope",
		Publisher:      pub,
	})

	// entries merge by message and caller, so repeat from one call site
	for i := 0; i < 2; i++ {
		child.Error("decode failed", String("message", "Engine"))
	}
	child.Error("sink unavailable", Error(errors.New("closed")))
	child.Warn("throttled")

	root.RemoveCollector()

	batches := pub.published()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"busscope.logs"}, pub.topics)

	logs := batches[0]
	require.Len(t, logs, 2, "warnings are not collected")
	assert.Equal(t, "decode failed", logs[0].Message)
	assert.Equal(t, 2, logs[0].Count)
	assert.Equal(t, "busscope", logs[0].Service)
	assert.Equal(t, "Engine", logs[0].Fields["message"])
	assert.Contains(t, logs[0].Caller, "logger_test.go")
	assert.Equal(t, "closed", logs[1].Fields["error"])

	child.Error("after removal")
	assert.Len(t, pub.published(), 1)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	assert.Equal(t, 1, c.Pending())
	c.AddLog("error", "b", nil, "x.go:2")

	assert.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, c.Pending())
}

func TestCollectorDefaults(t *testing.T) {
	t.Parallel()

	cfg := &CollectionConfig{}
	c := NewLogCollector(cfg)
	c.Close()
	assert.Equal(t, 30*time.Second, cfg.TimeInterval)
	assert.Equal(t, 100, cfg.CountThreshold)
	assert.NoError(t, c.Flush(context.Background()))
}
