package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/hirestream/backend/internal/observability"
	"github.com/zhouzirui/hirestream/backend/pkg/utils"
)

const wsWriteWait = 10 * time.Second

type outgoingMessage struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Data      string `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket relays the same chunk sequence as handleStream over a
// WebSocket, one JSON frame per chunk. Session errors are reported as plain
// HTTP responses before the upgrade.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromQuery(r)
	logger := observability.LoggerFromContext(r.Context()).With("session_id", sessionID)

	if !websocket.IsWebSocketUpgrade(r) {
		utils.RespondError(w, http.StatusBadRequest, "websocket upgrade required")
		return
	}

	// hijacked connections do not cancel the request context on disconnect
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	chunks, err := h.relay.Open(ctx, sessionID)
	if err != nil {
		status, message := openErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("failed to open stream", "error", err)
		}
		utils.RespondError(w, status, message)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for chunk := range chunks {
		if chunk.Err != nil {
			logger.Error("stream aborted", "error", chunk.Err)
			h.writeFrame(conn, outgoingMessage{Event: EventError, SessionID: sessionID, Data: "Error while generating response"})
			return
		}
		if err := h.writeFrame(conn, outgoingMessage{Event: EventEntry, SessionID: sessionID, Data: chunk.Text}); err != nil {
			logger.Warn("failed to write chunk", "error", err)
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := h.writeFrame(conn, outgoingMessage{Event: EventClose, SessionID: sessionID}); err != nil {
		logger.Warn("failed to send close frame", "error", err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
}

func (h *Handler) writeFrame(conn *websocket.Conn, msg outgoingMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
