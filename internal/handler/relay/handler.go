package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/hirestream/backend/internal/model/chat"
	"github.com/zhouzirui/hirestream/backend/internal/observability"
	relayService "github.com/zhouzirui/hirestream/backend/internal/service/relay"
	"github.com/zhouzirui/hirestream/backend/pkg/utils"
)

// Event names on the stream endpoint.
const (
	EventEntry = "newEntry"
	EventClose = "close"
	EventError = "error"
)

// Handler exposes submit / stream / reset for one relay.
type Handler struct {
	relay    *relayService.Relay
	upgrader websocket.Upgrader
}

// New creates a relay handler
func New(relay *relayService.Relay) *Handler {
	return &Handler{
		relay: relay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册会话中转相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleSubmit)
	r.Get("/sessions/{sessionID}", h.handleStatus)
	r.Get("/stream", h.handleStream)
	r.Get("/reset", h.handleReset)
	r.Get("/ws", h.handleWebSocket)
}

type submitRequest struct {
	Prompt   string         `json:"prompt"`
	Messages []chat.Message `json:"messages"`
}

type submitResponse struct {
	SessionID string `json:"sessionId"`
}

// handleSubmit 保存提交内容并返回会话ID
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, err := h.relay.Submit(r.Context(), chat.Payload{
		Prompt:   payload.Prompt,
		Messages: payload.Messages,
	})
	if err != nil {
		if errors.Is(err, relayService.ErrInvalidInput) {
			utils.RespondError(w, http.StatusBadRequest, "Missing prompt")
			return
		}
		observability.LoggerFromContext(r.Context()).Error("submit failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, submitResponse{SessionID: sessionID})
}

// handleStream relays the backend output for a session as Server-Sent Events.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx)
	sessionID := sessionIDFromQuery(r)

	chunks, err := h.relay.Open(ctx, sessionID)
	if err != nil {
		status, message := openErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("failed to open stream", "session_id", sessionID, "error", err)
		}
		utils.RespondError(w, status, message)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		if chunk.Err != nil {
			logger.Error("stream aborted", "session_id", sessionID, "error", chunk.Err)
			h.sendErrorEvent(w, flusher, logger)
			return
		}
		if err := utils.SendSSEEvent(w, flusher, EventEntry, relayService.EncodeLineBreaks(chunk.Text)); err != nil {
			if errors.Is(err, utils.ErrInvalidSSEData) {
				logger.Error("unframeable chunk", "session_id", sessionID, "error", err)
				h.sendErrorEvent(w, flusher, logger)
				return
			}
			// client is gone; request ctx cancellation stops the producer
			logger.Warn("failed to write chunk", "session_id", sessionID, "error", err)
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := utils.SendSSEEvent(w, flusher, EventClose, ""); err != nil {
		logger.Warn("failed to send close event", "error", err)
	}
}

func (h *Handler) sendErrorEvent(w http.ResponseWriter, flusher http.Flusher, logger *slog.Logger) {
	if err := utils.SendSSEJSON(w, flusher, EventError, map[string]string{"error": "Error while generating response"}); err != nil {
		logger.Warn("failed to send error event", "error", err)
	}
}

type statusResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// handleStatus 查询会话是否已被消费
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	status, err := h.relay.Status(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, relayService.ErrInvalidSession) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		observability.LoggerFromContext(r.Context()).Error("session status failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to read session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, statusResponse{SessionID: sessionID, Status: status})
}

// handleReset 清空会话存储
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	removed := h.relay.Reset(r.Context())
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "Data reset successfully",
		"removed": removed,
	})
}

func sessionIDFromQuery(r *http.Request) string {
	query := r.URL.Query()
	if id := query.Get("sessionId"); id != "" {
		return id
	}
	return query.Get("id")
}

func openErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, relayService.ErrInvalidSession):
		return http.StatusBadRequest, "Invalid session ID"
	case errors.Is(err, relayService.ErrMissingPayload):
		return http.StatusBadRequest, "Missing payload"
	default:
		return http.StatusInternalServerError, "Error while generating response"
	}
}
