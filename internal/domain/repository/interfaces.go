package repository

import (
	"context"

	"BusScope/internal/domain/models"
)

// TraceStream is a live source of decoded bus frames.
type TraceStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.TraceEntry, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalSink accepts decoded signal values.
type SignalSink interface {
	Ingest(ctx context.Context, u *models.SignalUpdate) error
}

// TracePublisher forwards trace entries to other replicas.
type TracePublisher interface {
	Publish(ctx context.Context, e *models.TraceEntry) error
	PublishBatch(ctx context.Context, entries []*models.TraceEntry) error
	Close() error
}

// Catalog lists the signals a bus database defines.
type Catalog interface {
	Signals(ctx context.Context) ([]models.Signal, error)
}

type Metrics interface {
	// RecordIngested counts a value delivered by source into at least one session.
	RecordIngested(source string)
	// RecordDropped counts a value discarded for reason.
	RecordDropped(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordFrame(session string, seconds float64)
	SetBuffered(session string, samples int)
	SetSessions(n int)
}
