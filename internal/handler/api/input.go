package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"BusScope/internal/service/metrics"
	"BusScope/internal/services/interaction"
	"BusScope/internal/usecase"
	xhttp "BusScope/pkg/http"
	"BusScope/pkg/logger"
)

// Input event types sent by the viewer.
const (
	EventDown   = "down"
	EventMove   = "move"
	EventUp     = "up"
	EventCancel = "cancel"
	EventLeave  = "leave"
	EventWheel  = "wheel"
	// EventState asks for the session state; it is answered on the socket.
	EventState = "state"
)

// InputEvent is one pointer, wheel or state request in viewport pixels.
type InputEvent struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	DX   float64 `json:"dx,omitempty"`
	DY   float64 `json:"dy,omitempty"`
}

type inputError struct {
	Error string `json:"error"`
}

// InputHandler feeds pointer and wheel input from a websocket into the
// gesture controller of a session.
type InputHandler struct {
	manager  *usecase.SessionManager
	upgrader websocket.Upgrader
	metrics  *metrics.API
	log      *logger.Logger
	// idle closes sockets that send nothing, pings included, for this long.
	idle time.Duration
}

func NewInputHandler(manager *usecase.SessionManager, m *metrics.API, log *logger.Logger, origins ...string) *InputHandler {
	if log == nil {
		log = logger.NewNop()
	}
	h := &InputHandler{
		manager: manager,
		metrics: m,
		log:     log.Component("input"),
		idle:    2 * time.Minute,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(origins),
	}
	return h
}

func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

func (h *InputHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/sessions/:id/input", h.Serve)
}

// Serve upgrades the request and applies every received event on the session
// loop in arrival order.
func (h *InputHandler) Serve(c echo.Context) error {
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the error response
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(4096)
	h.log.Debug("input attached", logger.String("session", s.ID()))

	ctx := c.Request().Context()
	extend := func() { _ = conn.SetReadDeadline(time.Now().Add(h.idle)) }
	extend()
	conn.SetPingHandler(func(data string) error {
		extend()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		var ev InputEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("input detached", logger.String("session", s.ID()), logger.Error(err))
			}
			// a pointer that vanished mid drag must not leave a captured gesture
			s.Post(func(v *usecase.ViewState) { v.Controller().PointerCancel() })
			return nil
		}
		extend()
		h.metrics.Input(ev.Type)

		if ev.Type == EventState {
			if err := h.writeState(ctx, conn, s); err != nil {
				return nil
			}
			continue
		}
		apply, ok := inputTask(ev)
		if !ok {
			_ = conn.WriteJSON(inputError{Error: "unknown event type " + ev.Type})
			continue
		}
		if !s.Post(apply) {
			_ = conn.WriteJSON(inputError{Error: usecase.ErrSessionClosed.Error()})
			return nil
		}
	}
}

func (h *InputHandler) writeState(ctx context.Context, conn *websocket.Conn, s *usecase.Session) error {
	var st SessionState
	err := s.Do(ctx, func(v *usecase.ViewState) { st = stateOf(s, v) })
	if err != nil {
		if errors.Is(err, usecase.ErrSessionClosed) {
			_ = conn.WriteJSON(inputError{Error: err.Error()})
		}
		return err
	}
	return conn.WriteJSON(st)
}

// inputTask maps an event onto the controller call it triggers.
func inputTask(ev InputEvent) (func(v *usecase.ViewState), bool) {
	p := interaction.Pointer{X: ev.X, Y: ev.Y}
	switch ev.Type {
	case EventDown:
		return func(v *usecase.ViewState) { v.Controller().PointerDown(p) }, true
	case EventMove:
		return func(v *usecase.ViewState) { v.Controller().PointerMove(p) }, true
	case EventUp:
		return func(v *usecase.ViewState) { v.Controller().PointerUp(p) }, true
	case EventCancel:
		return func(v *usecase.ViewState) { v.Controller().PointerCancel() }, true
	case EventLeave:
		return func(v *usecase.ViewState) { v.Controller().PointerLeave() }, true
	case EventWheel:
		w := interaction.Wheel{X: ev.X, Y: ev.Y, DeltaX: ev.DX, DeltaY: ev.DY}
		return func(v *usecase.ViewState) { v.Controller().Wheel(w) }, true
	default:
		return nil, false
	}
}
