package api

import (
	"bytes"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"BusScope/internal/domain/models"
	"BusScope/internal/services/cursor"
	"BusScope/internal/usecase"
	xhttp "BusScope/pkg/http"
)

// ---- signals ----

func (h *SessionsHandler) Signals(c echo.Context) error {
	start := time.Now()
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, "signals", err)
	}
	var rows []models.SignalView
	err = s.Do(c.Request().Context(), func(v *usecase.ViewState) { rows = v.Signals() })
	h.metrics.Observe("signals", start, err)
	if err != nil {
		return h.fail(c, "signals", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

type signalRequest struct {
	ID          string        `json:"id"`
	MessageName string        `json:"message_name"`
	MessageID   string        `json:"message_id"`
	SignalName  string        `json:"signal_name" validate:"required_without=ID"`
	DisplayName string        `json:"display_name"`
	Unit        string        `json:"unit"`
	Color       string        `json:"color" validate:"omitempty,hexcolor"`
	Range       *models.Range `json:"range"`
	Enabled     *bool         `json:"enabled"`
	Aliases     []string      `json:"aliases"`
}

func (r *signalRequest) signal() models.Signal {
	sig := models.Signal{
		ID:          r.ID,
		MessageName: r.MessageName,
		MessageID:   r.MessageID,
		SignalName:  r.SignalName,
		DisplayName: r.DisplayName,
		Unit:        r.Unit,
		Color:       r.Color,
		Range:       r.Range,
		Enabled:     true,
		Aliases:     r.Aliases,
	}
	if r.Enabled != nil {
		sig.Enabled = *r.Enabled
	}
	return sig
}

func (h *SessionsHandler) RegisterSignal(c echo.Context) error {
	req := &signalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.apply(c, "register_signal", func(v *usecase.ViewState) error {
		_, err := v.RegisterSignal(req.signal())
		return err
	})
}

func (h *SessionsHandler) SetSignalEnabled(c echo.Context) error {
	req := &toggleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id := c.Param("signal")
	return h.apply(c, "set_signal_enabled", func(v *usecase.ViewState) error {
		return v.SetSignalEnabled(id, req.Enabled)
	})
}

func (h *SessionsHandler) RemoveSignal(c echo.Context) error {
	id := c.Param("signal")
	return h.apply(c, "remove_signal", func(v *usecase.ViewState) error {
		return v.RemoveSignal(id)
	})
}

// ActivateRemove is the remove affordance of edit mode; outside edit mode it
// is refused.
func (h *SessionsHandler) ActivateRemove(c echo.Context) error {
	id := c.Param("signal")
	return h.apply(c, "activate_remove", func(v *usecase.ViewState) error {
		if !v.EditMode() {
			return xhttp.ConflictError("signals are only removable in edit mode")
		}
		if _, err := v.Signal(id); err != nil {
			return err
		}
		v.ActivateRemove(id)
		return nil
	})
}

func (h *SessionsHandler) Samples(c echo.Context) error {
	start := time.Now()
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, "samples", err)
	}
	id := c.Param("signal")
	var (
		rows []models.Sample
		qErr error
	)
	err = s.Do(c.Request().Context(), func(v *usecase.ViewState) { rows, qErr = v.Snapshot(id) })
	if err == nil {
		err = qErr
	}
	h.metrics.Observe("samples", start, err)
	if err != nil {
		return h.fail(c, "samples", err)
	}
	rows = filterSamples(rows, c.QueryParam("since"), c.QueryParam("until"), xhttp.ParseIntDefault(c.QueryParam("limit"), 0))
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// filterSamples orders rows by time, keeps those inside [since, until] and
// then the newest limit of them. Unparsable bounds are ignored.
func filterSamples(rows []models.Sample, since, until string, limit int) []models.Sample {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].T < rows[j].T })
	if lo, ok := xhttp.ParseSeconds(since); ok {
		i := sort.Search(len(rows), func(i int) bool { return rows[i].T >= lo })
		rows = rows[i:]
	}
	if hi, ok := xhttp.ParseSeconds(until); ok {
		i := sort.Search(len(rows), func(i int) bool { return rows[i].T > hi })
		rows = rows[:i]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows
}

// ---- cursors ----

func (h *SessionsHandler) Cursors(c echo.Context) error {
	req := &scopeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start := time.Now()
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, "cursors", err)
	}
	var (
		out  cursor.Readout
		sErr error
	)
	err = s.Do(c.Request().Context(), func(v *usecase.ViewState) {
		if sErr = requireScope(v, req.Scope); sErr == nil {
			out = v.CursorReadout(req.Scope)
		}
	})
	if err == nil {
		err = sErr
	}
	h.metrics.Observe("cursors", start, err)
	if err != nil {
		return h.fail(c, "cursors", err)
	}
	return xhttp.SuccessResponse(c, out)
}

// cursorCall runs fn and answers with the cursor readout of scope.
func (h *SessionsHandler) cursorCall(c echo.Context, endpoint, scope string, fn func(v *usecase.ViewState) error) error {
	start := time.Now()
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	var (
		out   cursor.Readout
		fnErr error
	)
	err = s.Do(c.Request().Context(), func(v *usecase.ViewState) {
		if fnErr = fn(v); fnErr == nil {
			out = v.CursorReadout(scope)
		}
	})
	if err == nil {
		err = fnErr
	}
	h.metrics.Observe(endpoint, start, err)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *SessionsHandler) EnableCursors(c echo.Context) error {
	req := &scopeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.cursorCall(c, "enable_cursors", req.Scope, func(v *usecase.ViewState) error {
		_, err := v.EnableCursors(req.Scope)
		return err
	})
}

func (h *SessionsHandler) DisableCursors(c echo.Context) error {
	req := &scopeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.cursorCall(c, "disable_cursors", req.Scope, func(v *usecase.ViewState) error {
		v.DisableCursors(req.Scope)
		return nil
	})
}

type moveCursorRequest struct {
	Scope string  `json:"scope"`
	T     float64 `json:"t" validate:"gt=0"`
}

func (h *SessionsHandler) MoveCursor(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || (index != 0 && index != 1) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("cursor index must be 0 or 1").WithField("index"))
	}
	req := &moveCursorRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.cursorCall(c, "move_cursor", req.Scope, func(v *usecase.ViewState) error {
		if !v.CursorsEnabled(req.Scope) {
			return xhttp.ConflictError("cursors are not enabled")
		}
		_, err := v.SetCursor(req.Scope, index, req.T)
		if err != nil {
			return xhttp.BadRequestError(err.Error()).WithField("t")
		}
		return nil
	})
}

// ---- frames ----

// Frame serves the latest rendered frame as PNG.
func (h *SessionsHandler) Frame(c echo.Context) error {
	start := time.Now()
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, "frame", err)
	}
	b, seq, err := s.PNG(c.Request().Context())
	h.metrics.Observe("frame", start, err)
	if err != nil {
		return h.fail(c, "frame", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	c.Response().Header().Set("X-Frame-Sequence", strconv.FormatUint(seq, 10))
	return c.Blob(http.StatusOK, "image/png", b)
}

// Export serves the visible window as a self-contained chart page.
func (h *SessionsHandler) Export(c echo.Context) error {
	start := time.Now()
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, "export", err)
	}
	var buf bytes.Buffer
	err = s.ExportHTML(c.Request().Context(), &buf, c.QueryParam("title"))
	h.metrics.Observe("export", start, err)
	if err != nil {
		return h.fail(c, "export", err)
	}
	if c.QueryParam("download") != "" {
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="busscope-`+s.ID()+`.html"`)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
