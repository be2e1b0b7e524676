// Package ws serves the assessment conversation over a WebSocket.
// A connection is only a view on a session: dropping it leaves the session
// resumable through a new connection or the REST API.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	assessmentHandler "github.com/zhouzirui/z-assess/backend/internal/handler/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/logger"
	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	assessmentService "github.com/zhouzirui/z-assess/backend/internal/service/assessment"
	"github.com/zhouzirui/z-assess/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Inbound message types.
const (
	TypeMessage = "message"
	TypeEnd     = "end"
)

// Outbound message types.
const (
	TypeReady        = "ready"
	TypeTyping       = "typing"
	TypeResponse     = "response"
	TypeSessionEnded = "session_ended"
	TypeError        = "error"
)

// Handler WebSocket测评对话处理器
type Handler struct {
	svc         *assessmentService.Service
	upgrader    websocket.Upgrader
	readTimeout time.Duration
	logger      *zap.Logger
}

// New 创建WebSocket处理器
func New(svc *assessmentService.Service, log *zap.Logger) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout: readTimeout,
		logger:      logger.OrNop(log),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection serializes writes; gorilla allows one concurrent writer.
type connection struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
	logger    *zap.Logger
}

func (c *connection) send(msgType string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := outgoingMessage{Type: msgType, SessionID: c.sessionID, Data: data, Timestamp: time.Now().Unix()}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("websocket write failed", zap.String("type", msgType), zap.Error(err))
	}
}

func (c *connection) sendError(message string) {
	c.send(TypeError, map[string]string{"message": message})
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.svc.Session(r.Context(), sessionID)
	if err != nil {
		status, message := assessmentHandler.ErrorStatus(err)
		utils.RespondError(w, status, message)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer raw.Close()

	log := logger.Session(h.logger, sessionID, string(session.ActiveStage))
	conn := &connection{conn: raw, sessionID: sessionID, logger: log}
	log.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	go h.pingLoop(ctx, conn)

	conn.send(TypeReady, readyPayload(session))

	for {
		_ = raw.SetReadDeadline(time.Now().Add(h.readTimeout))

		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			log.Info("websocket disconnected, session stays resumable")
			return
		}
		// A transition turn may outlast readTimeout; the deadline is renewed before the next read.
		_ = raw.SetReadDeadline(time.Time{})

		switch msg.Type {
		case TypeMessage:
			if ended := h.handleMessage(ctx, conn, msg.Content); ended {
				return
			}
		case TypeEnd:
			h.endSession(ctx, conn)
			return
		default:
			conn.sendError("unknown message type")
		}
	}
}

// handleMessage returns true once the session has been finalized.
func (h *Handler) handleMessage(ctx context.Context, conn *connection, content string) bool {
	conn.send(TypeTyping, nil)

	resp, err := h.svc.HandleMessage(ctx, conn.sessionID, content)
	if err != nil {
		_, message := assessmentHandler.ErrorStatus(err)
		conn.sendError(message)
		return false
	}
	conn.send(TypeResponse, resp)

	if resp.IsComplete {
		h.endSession(ctx, conn)
		return true
	}
	return false
}

func (h *Handler) endSession(ctx context.Context, conn *connection) {
	out, err := h.svc.EndSession(ctx, conn.sessionID)
	if err != nil {
		_, message := assessmentHandler.ErrorStatus(err)
		conn.sendError(message)
		return
	}
	conn.send(TypeSessionEnded, map[string]any{
		"closingMessage": out.ClosingMessage,
		"reportId":       out.Report.ID,
		"overallScore":   out.Report.OverallScore,
		"recommendation": out.Report.Recommendation,
	})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func readyPayload(s *assessment.Session) map[string]any {
	payload := map[string]any{
		"activeStage": s.ActiveStage,
		"isComplete":  s.IsComplete,
	}
	// Resuming clients get the last prompt back.
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == assessment.RoleSystem {
			payload["lastMessage"] = s.Messages[i].Content
			break
		}
	}
	return payload
}
