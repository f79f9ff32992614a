package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BusScope/internal/domain/models"
	drepo "BusScope/internal/domain/repository"
)

// EntrySink ingests whole trace entries locally, e.g. the realtime pipeline.
type EntrySink interface {
	ProcessEntry(ctx context.Context, e *models.TraceEntry) error
}

// Relay modes.
const (
	RelayLocal = "local"
	RelayKafka = "kafka"
)

// TraceRelay routes captured trace entries either into the local sessions or
// onto the Kafka trace topic, from which every replica consumes.
type TraceRelay struct {
	pub     drepo.TracePublisher
	local   EntrySink
	metrics drepo.Metrics
	mode    string
}

// NewTraceRelay creates a relay. mode is RelayKafka when pub should carry the
// entries, anything else ingests locally.
func NewTraceRelay(pub drepo.TracePublisher, local EntrySink, metrics drepo.Metrics, mode string) *TraceRelay {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if mode != RelayKafka || pub == nil {
		mode = RelayLocal
	}
	return &TraceRelay{pub: pub, local: local, metrics: metrics, mode: mode}
}

// Mode reports where entries go.
func (r *TraceRelay) Mode() string { return r.mode }

// Process routes a single entry.
func (r *TraceRelay) Process(ctx context.Context, e *models.TraceEntry) error {
	if e == nil {
		return errors.New("trace entry is nil")
	}
	start := time.Now()
	var err error
	switch r.mode {
	case RelayKafka:
		err = r.pub.Publish(ctx, e)
	default:
		if r.local == nil {
			return fmt.Errorf("relay: no local sink")
		}
		err = r.local.ProcessEntry(ctx, e)
	}
	if err != nil {
		r.metrics.RecordError("relay")
		return fmt.Errorf("relay trace entry: %w", err)
	}
	r.metrics.RecordLatency("relay", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes several entries; Kafka receives them in one write.
func (r *TraceRelay) ProcessBatch(ctx context.Context, entries []*models.TraceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if r.mode != RelayKafka {
		var first error
		for _, e := range entries {
			if err := r.Process(ctx, e); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	start := time.Now()
	if err := r.pub.PublishBatch(ctx, entries); err != nil {
		r.metrics.RecordError("relay_batch")
		return fmt.Errorf("relay batch: %w", err)
	}
	r.metrics.RecordLatency("relay_batch", time.Since(start).Seconds())
	return nil
}

// Close closes the publisher if there is one.
func (r *TraceRelay) Close() {
	if r.pub != nil {
		_ = r.pub.Close()
	}
}
