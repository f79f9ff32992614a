package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	in chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{in: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.in <- m
	}
	return r
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.in:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type funcHandler struct {
	topic string
	fn    func([]byte) error
}

func (h funcHandler) Topic() string                            { return h.topic }
func (h funcHandler) Handle(_ context.Context, b []byte) error { return h.fn(b) }

func TestProducerPublish(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	w := &fakeWriter{}
	p := newProducer(w, &ProducerConfig{Compression: "snappy", Registerer: reg})

	require.NoError(t, p.Publish(context.Background(), "trace", []byte("0x1A0"), map[string]int{"ts": 1}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", "plain"))
	require.NoError(t, p.PublishBatch(context.Background(), "trace", []Message{{Key: []byte("a"), Value: []byte("x")}, {Value: "y"}}))
	require.NoError(t, p.PublishBatch(context.Background(), "trace", nil))

	got := w.written()
	require.Len(t, got, 4)
	assert.Equal(t, `{"ts":1}`, string(got[0].Value))
	assert.Equal(t, "0x1A0", string(got[0].Key))
	assert.Equal(t, "logs", got[1].Topic)
	assert.Nil(t, got[1].Key)
	assert.Equal(t, "y", string(got[3].Value))

	assert.Equal(t, 3.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("trace", "snappy", "ok")))

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), "trace", nil, "z"))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.errs.WithLabelValues("trace")))
}

func TestProducerRequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := NewProducer()
	assert.Error(t, err)
}

func newTestConsumer(t *testing.T, reader *fakeReader, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"127.0.0.1:9092"}),
		WithConsumerRetry(1, time.Millisecond, time.Millisecond),
	}, opts...)
	c, err := NewConsumer(opts...)
	require.NoError(t, err)
	c.newReader = func(string) messageReader { return reader }
	return c
}

func TestConsumerHandlesAndCommits(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(
		kafka.Message{Topic: "trace", Offset: 1, Value: []byte("a")},
		kafka.Message{Topic: "trace", Offset: 2, Value: []byte("b")},
	)
	c := newTestConsumer(t, reader, WithConsumerWorkers(2))

	var mu sync.Mutex
	var seen []string
	c.RegisterHandler(funcHandler{topic: "trace", fn: func(b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(b))
		return nil
	}})
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return len(reader.offsets()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestConsumerRetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	reader := newFakeReader()
	c := newTestConsumer(t, reader, WithConsumerDLQ("trace.dlq"))
	dlq := &fakeWriter{}
	c.dlq = dlq
	c.readers["trace"] = reader

	attempts := 0
	var errs []error
	c.WithConsumerHook(HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) {
		errs = append(errs, err)
	}})
	c.RegisterHandler(funcHandler{topic: "trace", fn: func([]byte) error {
		attempts++
		return errors.New("bad payload")
	}})

	c.process(&message{topic: "trace", km: kafka.Message{Topic: "trace", Offset: 7, Value: []byte("poison")}})

	assert.Equal(t, 2, attempts, "one try plus one retry")
	assert.Len(t, errs, 2)
	got := dlq.written()
	require.Len(t, got, 1)
	assert.Equal(t, "trace.dlq", got[0].Topic)
	assert.Equal(t, "poison", string(got[0].Value))
	assert.Equal(t, []int64{7}, reader.offsets(), "dead lettered messages are committed")
}

func TestConsumerKeepsFailedOffsetWithoutDLQ(t *testing.T) {
	t.Parallel()

	reader := newFakeReader()
	c := newTestConsumer(t, reader)
	c.readers["trace"] = reader
	c.RegisterHandler(funcHandler{topic: "trace", fn: func([]byte) error { return errors.New("nope") }})

	c.process(&message{topic: "trace", km: kafka.Message{Offset: 3}})
	assert.Empty(t, reader.offsets())
}

func TestConsumerRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	reader := newFakeReader()
	c := newTestConsumer(t, reader)
	c.RegisterHandler(funcHandler{topic: "trace", fn: func([]byte) error { panic("boom") }})

	assert.NotPanics(t, func() { c.process(&message{topic: "trace", km: kafka.Message{}}) })
}

func TestStartWithoutHandlers(t *testing.T) {
	t.Parallel()

	c := newTestConsumer(t, newFakeReader())
	assert.Error(t, c.Start())
}

func TestHookChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before "+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after "+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))

	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(">"))
	require.NoError(t, err)
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)

	assert.Equal(t, ">ab", string(data))
	assert.Equal(t, []string{"before a", "before b", "after b", "after a"}, order)
}

func TestHookChainPanicBecomesError(t *testing.T) {
	t.Parallel()

	chain := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
	})
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
}

func TestLoggingHookStampsContext(t *testing.T) {
	t.Parallel()

	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := LoggingHook{}.BeforeHandle(context.Background(), "t", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))
	_, ok := StartTime(ctx)
	assert.True(t, ok)
}

func TestStaleHookSkipsQuietly(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	reader := newFakeReader()
	c := newTestConsumer(t, reader)
	c.readers["trace"] = reader

	var failures int
	c.WithConsumerHook(NewHookChain(
		StaleHook{MaxAge: 30 * time.Second, Now: func() time.Time { return now }},
		HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) { failures++ }},
	))
	var handled []string
	c.RegisterHandler(funcHandler{topic: "trace", fn: func(b []byte) error {
		handled = append(handled, string(b))
		return nil
	}})

	c.process(&message{topic: "trace", km: kafka.Message{Offset: 1, Time: now.Add(-time.Minute), Value: []byte("old")}})
	c.process(&message{topic: "trace", km: kafka.Message{Offset: 2, Time: now.Add(-time.Second), Value: []byte("fresh")}})
	c.process(&message{topic: "trace", km: kafka.Message{Offset: 3, Value: []byte("untimed")}})

	assert.Equal(t, []string{"fresh", "untimed"}, handled)
	assert.Zero(t, failures, "skipping is not an error")
	assert.Equal(t, []int64{1, 2, 3}, reader.offsets(), "skipped offsets are committed")
}

func TestBackoffWithJitter(t *testing.T) {
	t.Parallel()

	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.LessOrEqual(t, d, time.Second)
		assert.Greater(t, d, time.Duration(0))
	}
	assert.LessOrEqual(t, backoffWithJitter(100*time.Millisecond, time.Second, 1), 100*time.Millisecond)
}
