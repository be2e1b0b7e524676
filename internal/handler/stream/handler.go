// Package stream answers assessment messages as Server-Sent Events for
// clients that cannot hold a WebSocket open.
package stream

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	assessmentHandler "github.com/zhouzirui/z-assess/backend/internal/handler/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/logger"
	assessmentService "github.com/zhouzirui/z-assess/backend/internal/service/assessment"
	"github.com/zhouzirui/z-assess/backend/pkg/utils"
)

// Event names emitted on the stream.
const (
	EventStart        = "start"
	EventMessage      = "message"
	EventSessionEnded = "session_ended"
	EventError        = "error"
	EventEnd          = "end"
)

// Handler manages streaming assessment responses via Server-Sent Events
type Handler struct {
	svc    *assessmentService.Service
	logger *zap.Logger
}

// New creates a new stream handler
func New(svc *assessmentService.Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.OrNop(log)}
}

// RegisterRoutes 注册SSE路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/assessments/{sessionID}/stream", h.handleStream)
}

// StreamResponse represents one event payload
type StreamResponse struct {
	SessionID   string `json:"sessionId,omitempty"`
	Content     string `json:"content,omitempty"`
	ActiveStage string `json:"activeStage,omitempty"`
	Finished    bool   `json:"finished,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Unknown sessions get a plain HTTP error before the stream opens.
	if _, err := h.svc.Session(r.Context(), sessionID); err != nil {
		status, message := assessmentHandler.ErrorStatus(err)
		utils.RespondError(w, status, message)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	h.HandleStreamRequest(r.Context(), w, flusher, sessionID, payload.Content)
}

// HandleStreamRequest processes one participant message and streams the outcome
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, content string) {
	utils.SendSSEEvent(w, flusher, EventStart, StreamResponse{SessionID: sessionID})

	resp, err := h.svc.HandleMessage(ctx, sessionID, content)
	if err != nil {
		_, message := assessmentHandler.ErrorStatus(err)
		utils.SendSSEEvent(w, flusher, EventError, StreamResponse{SessionID: sessionID, Error: message})
		return
	}

	utils.SendSSEEvent(w, flusher, EventMessage, StreamResponse{
		SessionID:   sessionID,
		Content:     resp.Text,
		ActiveStage: string(resp.ActiveStage),
	})

	if resp.IsComplete {
		out, err := h.svc.EndSession(ctx, sessionID)
		if err != nil {
			h.logger.Warn("failed to finalize streamed session", zap.String("sessionId", sessionID), zap.Error(err))
			_, message := assessmentHandler.ErrorStatus(err)
			utils.SendSSEEvent(w, flusher, EventError, StreamResponse{SessionID: sessionID, Error: message})
			return
		}
		utils.SendSSEEvent(w, flusher, EventSessionEnded, map[string]any{
			"sessionId":      sessionID,
			"closingMessage": out.ClosingMessage,
			"reportId":       out.Report.ID,
		})
	}

	utils.SendSSEEvent(w, flusher, EventEnd, StreamResponse{SessionID: sessionID, Finished: true})
}
