package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"BusScope/internal/domain/models"
	"BusScope/internal/service/metrics"
	"BusScope/internal/services/cursor"
	"BusScope/internal/services/render"
	"BusScope/internal/services/scale"
	"BusScope/internal/services/window"
	"BusScope/internal/usecase"
	xhttp "BusScope/pkg/http"
	"BusScope/pkg/logger"
)

// SessionsHandler exposes sessions and their view state over HTTP.
type SessionsHandler struct {
	manager *usecase.SessionManager
	metrics *metrics.API
	log     *logger.Logger
}

func NewSessionsHandler(manager *usecase.SessionManager, m *metrics.API, log *logger.Logger) *SessionsHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &SessionsHandler{manager: manager, metrics: m, log: log.Component("api")}
}

func (h *SessionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/sessions")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.PUT("/:id/viewport", h.SetViewport)
	g.POST("/:id/render", h.SetRendering)

	g.POST("/:id/pause", h.Pause)
	g.POST("/:id/resume", h.Resume)
	g.POST("/:id/window/shift", h.ShiftWindow)
	g.POST("/:id/window/time-per-division", h.AdjustTimePerDivision)

	g.POST("/:id/scale/zoom", h.Zoom)
	g.POST("/:id/scale/pan", h.Pan)
	g.POST("/:id/scale/reset", h.ResetScale)
	g.POST("/:id/scale/auto", h.AutoScale)

	g.GET("/:id/cursors", h.Cursors)
	g.POST("/:id/cursors/enable", h.EnableCursors)
	g.POST("/:id/cursors/disable", h.DisableCursors)
	g.PUT("/:id/cursors/:index", h.MoveCursor)

	g.PUT("/:id/mode", h.SetMode)
	g.PUT("/:id/edit", h.SetEditMode)

	g.GET("/:id/signals", h.Signals)
	g.POST("/:id/signals", h.RegisterSignal)
	g.PATCH("/:id/signals/:signal", h.SetSignalEnabled)
	g.DELETE("/:id/signals/:signal", h.RemoveSignal)
	g.POST("/:id/signals/:signal/remove", h.ActivateRemove)
	g.GET("/:id/signals/:signal/samples", h.Samples)

	g.GET("/:id/frame.png", h.Frame)
	g.GET("/:id/export.html", h.Export)
}

// SessionState is the externally visible state of a session.
type SessionState struct {
	ID              string              `json:"id"`
	Window          window.State        `json:"window"`
	Paused          bool                `json:"paused"`
	TimePerDivision float64             `json:"time_per_division"`
	Mode            render.Mode         `json:"mode"`
	EditMode        bool                `json:"edit_mode"`
	Rendering       bool                `json:"rendering"`
	Viewport        render.Viewport     `json:"viewport"`
	Scale           scale.State         `json:"scale"`
	Range           models.Range        `json:"range"`
	Cursors         cursor.Readout      `json:"cursors"`
	Signals         []models.SignalView `json:"signals"`
}

func stateOf(s *usecase.Session, v *usecase.ViewState) SessionState {
	sc, _ := v.Scale(cursor.Combined)
	return SessionState{
		ID:              s.ID(),
		Window:          v.Window(),
		Paused:          v.Paused(),
		TimePerDivision: v.TimePerDivision(),
		Mode:            v.Mode(),
		EditMode:        v.EditMode(),
		Rendering:       s.Rendering(),
		Viewport:        v.Viewport(),
		Scale:           sc,
		Range:           v.DisplayRange(cursor.Combined),
		Cursors:         v.CursorReadout(cursor.Combined),
		Signals:         v.Signals(),
	}
}

// toAppError maps usecase failures onto HTTP errors.
func toAppError(err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, usecase.ErrSessionNotFound), errors.Is(err, usecase.ErrSignalNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrInvalidSignal):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrCursorsLocked):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrSessionClosed):
		return xhttp.NewAppError("ERR_GONE", "", err.Error(), http.StatusGone).WithError(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return xhttp.UnavailableError("session did not answer in time").WithError(err)
	default:
		return err
	}
}

func (h *SessionsHandler) fail(c echo.Context, endpoint string, err error) error {
	mapped := toAppError(err)
	var appErr *xhttp.AppError
	if !errors.As(mapped, &appErr) || appErr.Status >= http.StatusInternalServerError {
		h.log.Error("request failed", logger.String("endpoint", endpoint), logger.Error(err))
	}
	return xhttp.AppErrorResponse(c, mapped)
}

// apply runs fn on the loop of the addressed session and answers with the
// resulting state.
func (h *SessionsHandler) apply(c echo.Context, endpoint string, fn func(v *usecase.ViewState) error) error {
	start := time.Now()
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		h.metrics.Observe(endpoint, start, err)
		return h.fail(c, endpoint, err)
	}
	var (
		st    SessionState
		fnErr error
	)
	err = s.Do(c.Request().Context(), func(v *usecase.ViewState) {
		if fnErr = fn(v); fnErr == nil {
			st = stateOf(s, v)
		}
	})
	if err == nil {
		err = fnErr
	}
	h.metrics.Observe(endpoint, start, err)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SessionsHandler) Create(c echo.Context) error {
	start := time.Now()
	req := &usecase.CreateOptions{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.manager.Create(c.Request().Context(), *req)
	h.metrics.Observe("create_session", start, err)
	if err != nil {
		return h.fail(c, "create_session", err)
	}
	var st SessionState
	if err := s.Do(c.Request().Context(), func(v *usecase.ViewState) { st = stateOf(s, v) }); err != nil {
		return h.fail(c, "create_session", err)
	}
	return xhttp.CreatedResponse(c, st)
}

func (h *SessionsHandler) List(c echo.Context) error {
	rows := h.manager.List()
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SessionsHandler) Get(c echo.Context) error {
	return h.apply(c, "get_session", func(*usecase.ViewState) error { return nil })
}

func (h *SessionsHandler) Delete(c echo.Context) error {
	start := time.Now()
	err := h.manager.Delete(c.Param("id"))
	h.metrics.Observe("delete_session", start, err)
	if err != nil {
		return h.fail(c, "delete_session", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *SessionsHandler) SetViewport(c echo.Context) error {
	req := &render.Viewport{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "set_viewport", func(v *usecase.ViewState) error {
		if !v.SetViewport(*req) {
			return xhttp.BadRequestError("viewport has no drawable area").WithField("width")
		}
		return nil
	})
}

type renderRequest struct {
	Running bool `json:"running"`
}

func (h *SessionsHandler) SetRendering(c echo.Context) error {
	req := &renderRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, "set_rendering", err)
	}
	if req.Running {
		s.StartRendering()
	} else {
		s.StopRendering()
	}
	return h.apply(c, "set_rendering", func(*usecase.ViewState) error { return nil })
}

// ---- window ----

func (h *SessionsHandler) Pause(c echo.Context) error {
	return h.apply(c, "pause", func(v *usecase.ViewState) error {
		v.Pause()
		return nil
	})
}

func (h *SessionsHandler) Resume(c echo.Context) error {
	return h.apply(c, "resume", func(v *usecase.ViewState) error {
		v.Resume()
		return nil
	})
}

type shiftRequest struct {
	// Delta is in seconds; positive moves toward now.
	Delta float64 `json:"delta"`
}

func (h *SessionsHandler) ShiftWindow(c echo.Context) error {
	req := &shiftRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "shift_window", func(v *usecase.ViewState) error {
		if !v.Paused() {
			return xhttp.ConflictError("the window only shifts while paused")
		}
		v.ShiftWindow(req.Delta)
		return nil
	})
}

type factorRequest struct {
	Factor float64 `json:"factor" validate:"gt=0"`
}

func (h *SessionsHandler) AdjustTimePerDivision(c echo.Context) error {
	req := &factorRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "time_per_division", func(v *usecase.ViewState) error {
		v.AdjustTimePerDivision(req.Factor)
		return nil
	})
}

// ---- scale ----

// scopeRequest addresses a signal id, or the combined surface when empty.
type scopeRequest struct {
	Scope string `json:"scope" query:"scope"`
}

type zoomRequest struct {
	Scope  string  `json:"scope"`
	Factor float64 `json:"factor" validate:"gt=0"`
}

type panRequest struct {
	Scope       string  `json:"scope"`
	DeltaPixels float64 `json:"delta_pixels"`
	PanelHeight float64 `json:"panel_height" validate:"gt=0"`
}

func requireScope(v *usecase.ViewState, scope string) error {
	if scope == cursor.Combined {
		return nil
	}
	_, err := v.Signal(scope)
	return err
}

func (h *SessionsHandler) Zoom(c echo.Context) error {
	req := &zoomRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "zoom", func(v *usecase.ViewState) error {
		if err := requireScope(v, req.Scope); err != nil {
			return err
		}
		v.AdjustZoom(req.Scope, req.Factor)
		return nil
	})
}

func (h *SessionsHandler) Pan(c echo.Context) error {
	req := &panRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "pan", func(v *usecase.ViewState) error {
		if err := requireScope(v, req.Scope); err != nil {
			return err
		}
		v.Pan(req.Scope, req.DeltaPixels, req.PanelHeight)
		return nil
	})
}

func (h *SessionsHandler) ResetScale(c echo.Context) error {
	req := &scopeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "reset_scale", func(v *usecase.ViewState) error {
		return v.ResetScale(req.Scope)
	})
}

func (h *SessionsHandler) AutoScale(c echo.Context) error {
	req := &scopeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "auto_scale", func(v *usecase.ViewState) error {
		return v.AutoScale(req.Scope)
	})
}

// ---- mode ----

type modeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=combined separate"`
}

func (h *SessionsHandler) SetMode(c echo.Context) error {
	req := &modeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "set_mode", func(v *usecase.ViewState) error {
		v.SetMode(render.Mode(req.Mode))
		return nil
	})
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *SessionsHandler) SetEditMode(c echo.Context) error {
	req := &toggleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "set_edit_mode", func(v *usecase.ViewState) error {
		v.SetEditMode(req.Enabled)
		return nil
	})
}
