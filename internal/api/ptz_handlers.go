package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/placeos"
	"github.com/technosupport/roomview/internal/ptz"
)

// ptzMessage is one gesture event from the dashboard joystick or zoom slider.
type ptzMessage struct {
	Axis string  `json:"axis"`
	Type string  `json:"type"` // start | move | end
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type PTZHandler struct {
	Exec     ptz.Executor
	Homes    *ptz.HomeGuard
	Options  ptz.Options
	Logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewPTZHandler accepts websocket upgrades only from allowedOrigins ("*" for any).
func NewPTZHandler(exec ptz.Executor, homes *ptz.HomeGuard, opts ptz.Options, allowedOrigins []string, logger *zap.Logger) *PTZHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if homes == nil {
		homes = ptz.NewHomeGuard(exec, opts.Publisher, logger)
	}
	return &PTZHandler{
		Exec:    exec,
		Homes:   homes,
		Options: opts,
		Logger:  logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

func moduleRef(r *http.Request) (string, placeos.ModuleRef) {
	return chi.URLParam(r, "id"), placeos.ParseModuleRef(chi.URLParam(r, "module"))
}

// POST /api/v1/systems/{id}/modules/{module}/home
func (h *PTZHandler) Home(w http.ResponseWriter, r *http.Request) {
	systemID, ref := moduleRef(r)
	err := h.Homes.Home(r.Context(), systemID, ref)
	switch {
	case errors.Is(err, ptz.ErrHomeInFlight):
		respondError(w, http.StatusConflict, "Home already in progress")
	case err != nil:
		respondError(w, http.StatusBadGateway, "Home command failed")
	default:
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// GET /api/v1/systems/{id}/modules/{module}/ptz
//
// Each socket owns one controller. Closing the socket releases any axis
// still held, so a dropped client never leaves the camera moving.
func (h *PTZHandler) Control(w http.ResponseWriter, r *http.Request) {
	systemID, ref := moduleRef(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("PTZ socket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	// the server's read timeout must not end a long drag session
	conn.SetReadDeadline(time.Time{})

	ctrl := ptz.NewController(systemID, ref, h.Exec, h.Options)
	defer ctrl.Close()

	logger := h.Logger.With(zap.String("system", systemID), zap.String("module", ref.Slug()))
	logger.Debug("PTZ socket connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("PTZ socket closed", zap.Error(err))
			}
			return
		}

		var msg ptzMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			if conn.WriteJSON(map[string]string{"type": "error", "error": "invalid message"}) != nil {
				return
			}
			continue
		}

		axis, err := ctrl.Axis(ptz.Kind(msg.Axis))
		if err != nil {
			if conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()}) != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case "start":
			axis.Start(msg.X, msg.Y)
		case "move":
			axis.Move(msg.X, msg.Y)
		case "end":
			axis.Release()
		default:
			if conn.WriteJSON(map[string]string{"type": "error", "error": "unknown type " + msg.Type}) != nil {
				return
			}
		}
	}
}
