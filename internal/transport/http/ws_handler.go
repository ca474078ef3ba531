package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"rater-tracker-service/internal/app"
	"rater-tracker-service/internal/domain"
)

// SummaryInvalidator drops cached summaries after an event commits. Optional;
// a nil invalidator means summaries are always recomputed from the ledger.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, userID string, date time.Time, loc *time.Location)
}

type WSHandler struct {
	service     *app.TrackerService
	invalidator SummaryInvalidator
	loc         *time.Location
	log         *logrus.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(service *app.TrackerService, invalidator SummaryInvalidator, loc *time.Location, log *logrus.Logger) *WSHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &WSHandler{
		service:     service,
		invalidator: invalidator,
		loc:         loc,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type eventPayload struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ServeWS upgrades the widget connection and feeds its events through the
// state machine. One connection serves one user; messages on it are handled
// strictly in order, and the per-session lock covers retries arriving on
// parallel connections.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "event":
			h.handleEvent(r.Context(), conn, userID, inbound.Payload)
		case "daySummary":
			h.handleDaySummary(r.Context(), conn, userID)
		default:
			h.writeError(conn, "unknownMessageType", "unsupported message type")
		}
	}
}

func (h *WSHandler) handleEvent(ctx context.Context, conn *websocket.Conn, userID string, raw json.RawMessage) {
	var payload eventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.writeError(conn, "badPayload", "invalid event payload")
		return
	}
	evType, err := domain.ParseEventType(payload.Type)
	if err != nil {
		h.writeError(conn, errorKind(err), err.Error())
		return
	}

	result, err := h.service.HandleEvent(ctx, userID, app.EventInput{
		Type:      evType,
		Timestamp: payload.Timestamp,
		SessionID: payload.SessionID,
	})
	if err != nil {
		h.writeError(conn, errorKind(err), err.Error())
		return
	}

	if h.invalidator != nil {
		h.invalidator.Invalidate(ctx, userID, result.ServerTimestamp, h.loc)
	}
	if err := conn.WriteJSON(outboundMessage[domain.EventResult]{Type: "eventResult", Payload: result}); err != nil {
		h.log.WithError(err).Warn("ws write error")
	}
}

func (h *WSHandler) handleDaySummary(ctx context.Context, conn *websocket.Conn, userID string) {
	summary, err := h.service.DaySummary(ctx, userID, time.Now().In(h.loc), h.loc)
	if err != nil {
		h.writeError(conn, errorKind(err), err.Error())
		return
	}
	if err := conn.WriteJSON(outboundMessage[domain.DaySummary]{Type: "daySummary", Payload: summary}); err != nil {
		h.log.WithError(err).Warn("ws write error")
	}
}

func (h *WSHandler) writeError(conn *websocket.Conn, kind, message string) {
	_ = conn.WriteJSON(outboundMessage[errorPayload]{
		Type:    "error",
		Payload: errorPayload{Kind: kind, Message: message},
	})
}

// errorKind maps the core's sentinel errors onto stable wire identifiers the
// widget switches on.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoActiveSession):
		return "noActiveSession"
	case errors.Is(err, domain.ErrSessionClosed):
		return "sessionClosed"
	case errors.Is(err, domain.ErrNothingToUndo):
		return "nothingToUndo"
	case errors.Is(err, domain.ErrInvalidTimestamp):
		return "invalidTimestamp"
	case errors.Is(err, domain.ErrUnknownEventType):
		return "unknownEventType"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "sessionNotFound"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "concurrentModification"
	}
	return "internal"
}
