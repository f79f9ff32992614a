package api

import (
	"context"
	"io"
	"time"

	"github.com/labstack/echo/v4"

	"BusScope/internal/domain/models"
	"BusScope/internal/service/metrics"
	"BusScope/internal/service/tracestream"
	"BusScope/internal/usecase"
	"BusScope/pkg/clock"
	xhttp "BusScope/pkg/http"
	"BusScope/pkg/logger"
)

const maxIngestBody = 4 << 20

// EntryRouter delivers captured trace entries, locally or through Kafka.
type EntryRouter interface {
	Process(ctx context.Context, e *models.TraceEntry) error
}

// ValueProcessor accepts single decoded values.
type ValueProcessor interface {
	Process(ctx context.Context, u *models.SignalUpdate) error
}

// IngestHandler accepts trace entries and signal values pushed over HTTP and
// serves the signal catalog.
type IngestHandler struct {
	manager *usecase.SessionManager
	entries EntryRouter
	values  ValueProcessor
	clock   clock.Clock
	metrics *metrics.API
	log     *logger.Logger
}

func NewIngestHandler(manager *usecase.SessionManager, entries EntryRouter, values ValueProcessor, m *metrics.API, log *logger.Logger) *IngestHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &IngestHandler{
		manager: manager,
		entries: entries,
		values:  values,
		clock:   clock.Real{},
		metrics: m,
		log:     log.Component("ingest-api"),
	}
}

func (h *IngestHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/ingest/trace", h.Trace)
	g.POST("/ingest/value", h.Value)
	g.POST("/ingest/clear", h.Clear)
	g.GET("/catalog", h.Catalog)
}

// IngestResult counts what a push delivered.
type IngestResult struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// Trace accepts one trace entry, an array of them or an {"event":"trace"}
// envelope, the same shapes the gateway streams.
func (h *IngestHandler) Trace(c echo.Context) error {
	start := time.Now()
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxIngestBody))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("unreadable body").WithError(err))
	}
	entries, _, err := tracestream.Decode(body)
	if err != nil {
		h.metrics.Observe("ingest_trace", start, err)
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("body is not a trace entry").WithError(err))
	}
	if len(entries) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("no trace entries"))
	}

	res := IngestResult{}
	ctx := c.Request().Context()
	for _, e := range entries {
		if e.TS <= 0 {
			e.TS = clock.Seconds(h.clock.Now())
		}
		if err := h.entries.Process(ctx, e); err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Accepted++
	}
	if res.Accepted == 0 {
		h.metrics.Observe("ingest_trace", start, xhttp.BadRequestError("no entry was accepted"))
		return xhttp.BadRequestResponse(c, res)
	}
	h.metrics.Observe("ingest_trace", start, nil)
	if res.Rejected > 0 {
		h.log.Debug("trace push partially rejected", logger.Int("accepted", res.Accepted), logger.Int("rejected", res.Rejected))
	}
	return xhttp.AcceptedResponse(c, res)
}

type valueRequest struct {
	Message   string   `json:"message"`
	MessageID string   `json:"message_id"`
	Signal    string   `json:"signal" validate:"required"`
	Value     *float64 `json:"value" validate:"required"`
	// Timestamp defaults to now.
	Timestamp float64 `json:"ts" validate:"gte=0"`
}

// Value ingests a single decoded value, timestamped now unless ts is given.
func (h *IngestHandler) Value(c echo.Context) error {
	start := time.Now()
	req := &valueRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	u := &models.SignalUpdate{
		Message:   req.Message,
		MessageID: req.MessageID,
		Signal:    req.Signal,
		Timestamp: req.Timestamp,
		Value:     *req.Value,
	}
	if u.Timestamp == 0 {
		u.Timestamp = clock.Seconds(h.clock.Now())
	}
	err := h.values.Process(c.Request().Context(), u)
	h.metrics.Observe("ingest_value", start, err)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithField("value"))
	}
	return xhttp.AcceptedResponse(c, IngestResult{Accepted: 1})
}

// Clear empties the sample buffers of every session.
func (h *IngestHandler) Clear(c echo.Context) error {
	start := time.Now()
	err := h.manager.ClearAllSamples(c.Request().Context())
	h.metrics.Observe("clear_samples", start, err)
	if err != nil {
		h.log.Error("clear samples failed", logger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.NoContentResponse(c)
}

// Catalog lists the signals the bus database defines.
func (h *IngestHandler) Catalog(c echo.Context) error {
	start := time.Now()
	sigs, err := h.manager.CatalogSignals(c.Request().Context())
	h.metrics.Observe("catalog", start, err)
	if err != nil {
		h.log.Warn("catalog unavailable", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("catalog unavailable").WithError(err))
	}
	if sigs == nil {
		sigs = []models.Signal{}
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}
