package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"BusScope/internal/domain/models"
	domrepo "BusScope/internal/domain/repository"
	pkgkafka "BusScope/pkg/kafka"
)

// KafkaTraceHandler consumes trace topic messages into the local sessions.
type KafkaTraceHandler struct {
	topic   string
	entries EntrySink
	updates domrepo.SignalSink
	metrics domrepo.Metrics
	now     func() time.Time
}

func NewKafkaTraceHandler(topic string, entries EntrySink, updates domrepo.SignalSink, metrics domrepo.Metrics) *KafkaTraceHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &KafkaTraceHandler{topic: topic, entries: entries, updates: updates, metrics: metrics, now: time.Now}
}

func (h *KafkaTraceHandler) Topic() string { return h.topic }

// incoming message schema: a trace entry {ts, id, message, decoded{...}} or a
// single signal update {message, signal, ts, value}
func (h *KafkaTraceHandler) Handle(ctx context.Context, b []byte) error {
	var probe struct {
		Decoded json.RawMessage `json:"decoded"`
		Signal  *string         `json:"signal"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	switch {
	case len(probe.Decoded) > 0:
		var e models.TraceEntry
		if err := decodeNumbers(b, &e); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return err
		}
		h.observeLag(e.TS)
		if err := h.entries.ProcessEntry(ctx, &e); err != nil {
			h.metrics.RecordError("consumer_ingest")
			return err
		}
	case probe.Signal != nil:
		var u models.SignalUpdate
		if err := json.Unmarshal(b, &u); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return err
		}
		h.observeLag(u.Timestamp)
		if err := h.updates.Ingest(ctx, &u); err != nil {
			h.metrics.RecordError("consumer_ingest")
			return err
		}
	default:
		h.metrics.RecordDropped("consumer_unknown_schema")
		return fmt.Errorf("kafka trace handler: message carries neither decoded signals nor a signal value")
	}
	return nil
}

// observeLag records the delay between capture and consumption.
func (h *KafkaTraceHandler) observeLag(ts float64) {
	if ts <= 0 {
		return
	}
	if ts > 1e11 { // ms
		ts /= 1000
	}
	lag := float64(h.now().UnixNano())/1e9 - ts
	if lag >= 0 {
		h.metrics.RecordLatency("ingest_e2e_seconds", lag)
	}
}

// decodeNumbers keeps decoded values as json.Number so large integers survive.
func decodeNumbers(b []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

var _ pkgkafka.MessageHandler = (*KafkaTraceHandler)(nil)
