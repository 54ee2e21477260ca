package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lesprima/attempt-service/internal/engine"
	"github.com/lesprima/attempt-service/internal/middleware"
	"github.com/lesprima/attempt-service/internal/model"
	ws "github.com/lesprima/attempt-service/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams attempt events (ticks, expiry, outcome) and accepts
// autosave and submit actions over one WebSocket connection.
type WSHandler struct {
	registry *engine.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(registry *engine.Registry, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		registry: registry,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempt/stream?token=...
// Upgrades to WebSocket for countdown ticks and real-time autosave.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attempt, err := h.registry.Attempt(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int("student_id", claims.UserID).Msg("Load attempt failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().Int("student_id", claims.UserID).Logger()
	wsLog.Info().Msg("Student connected")

	events, cancel := attempt.Subscribe()
	defer cancel()

	// Event pump: pushes ticks and outcomes until the subscription is
	// cancelled. Writes are serialized inside Conn.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			var err error
			switch ev.Type {
			case engine.EventTick:
				err = conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: ev.RemainingSeconds})
			case engine.EventExpired:
				err = conn.WriteTyped(ws.ExpiredResponse{Event: ws.EventExpired})
			case engine.EventResult:
				err = conn.WriteTyped(ws.ResultResponse{Event: ws.EventResult, Outcome: ev.Outcome})
			case engine.EventFailed:
				err = conn.WriteTyped(ws.FailedResponse{Event: ws.EventFailed, Failure: ev.Failure})
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var msg ws.AutosaveRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(c, conn, attempt, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(c, conn, attempt, wsLog)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}

	cancel()
	<-done
}

// handleAutosave buffers one answer through the same engine path as the
// REST endpoint, so the write-through and phase guarantees hold.
func (h *WSHandler) handleAutosave(c *gin.Context, conn *ws.Conn, attempt *engine.Attempt, msg *ws.AutosaveRequest) {
	if msg.QuestionID <= 0 {
		conn.WriteError("question_id is required")
		return
	}

	ans := model.Answer{ChosenOptionID: msg.ChosenOptionID, WrittenText: msg.WrittenText}
	if err := attempt.SetAnswer(c.Request.Context(), msg.QuestionID, ans); err != nil {
		conn.WriteError(err.Error())
		return
	}

	conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QuestionID: msg.QuestionID})
}

// handleSubmit triggers submission; the outcome arrives on the event
// stream, so only errors are answered inline.
func (h *WSHandler) handleSubmit(c *gin.Context, conn *ws.Conn, attempt *engine.Attempt, wsLog zerolog.Logger) {
	if _, err := attempt.Submit(c.Request.Context()); err != nil {
		wsLog.Warn().Err(err).Msg("WS submit rejected")
		conn.WriteError(err.Error())
	}
}
