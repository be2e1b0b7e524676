package assessment

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/logger"
	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	assessmentService "github.com/zhouzirui/z-assess/backend/internal/service/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/handoff"
	"github.com/zhouzirui/z-assess/backend/internal/store"
	"github.com/zhouzirui/z-assess/backend/pkg/utils"
)

// MessageRestart 会话不存在时提示前端重新开始
const MessageRestart = "session not found, please restart the assessment"

// Handler 测评流程与HR复核的HTTP处理器
type Handler struct {
	svc    *assessmentService.Service
	review *handoff.ReviewService
	logger *zap.Logger
}

// New 创建测评处理器
func New(svc *assessmentService.Service, review *handoff.ReviewService, log *zap.Logger) *Handler {
	return &Handler{svc: svc, review: review, logger: logger.OrNop(log)}
}

// RegisterRoutes 注册测评与报告相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/assessments", h.handleStart)
	r.Get("/assessments/{sessionID}", h.handleGetSession)
	r.Post("/assessments/{sessionID}/messages", h.handlePostMessage)
	r.Post("/assessments/{sessionID}/end", h.handleEnd)

	r.Get("/reports/{reportID}", h.handleGetReport)
	r.Get("/reports/{reportID}/handoff", h.handleGetHandoff)
	r.Post("/reports/{reportID}/decision", h.handleDecision)
	r.Get("/reports/{reportID}/decisions", h.handleListDecisions)
	r.Get("/participants/{participantID}/reports", h.handleListReports)
}

// handleStart 创建会话并返回开场白
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ParticipantID string `json:"participantId"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, opening, err := h.svc.StartSession(r.Context(), payload.ParticipantID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"sessionId":   session.ID,
		"activeStage": session.ActiveStage,
		"message":     opening,
	})
}

// handleGetSession 返回会话快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handlePostMessage 处理候选人的一条回复
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.svc.HandleMessage(r.Context(), chi.URLParam(r, "sessionID"), payload.Content)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleEnd 结束会话，生成报告并交给HR
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.EndSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.review.Report(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleGetHandoff(w http.ResponseWriter, r *http.Request) {
	plan, err := h.review.Plan(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, plan)
}

// handleDecision 记录HR决定，报告本身不变
func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Decision string `json:"decision"`
		Notes    string `json:"notes"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := h.review.Decide(r.Context(), chi.URLParam(r, "reportID"), payload.Decision, payload.Notes)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, d)
}

func (h *Handler) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.review.Decisions(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, decisions)
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.review.Reports(r.Context(), chi.URLParam(r, "participantID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reports)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	status, message := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("assessment request failed", zap.Error(err))
	}
	utils.RespondError(w, status, message)
}

// ErrorStatus 将领域错误映射为HTTP状态码和对外提示
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, assessment.ErrSessionComplete):
		return http.StatusConflict, "assessment already complete"
	case errors.Is(err, assessment.ErrSessionNotFound):
		return http.StatusNotFound, MessageRestart
	case errors.Is(err, assessmentService.ErrParticipantRequired),
		errors.Is(err, assessmentService.ErrEmptyMessage),
		errors.Is(err, handoff.ErrInvalidDecision):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, assessmentService.ErrParticipantNotFound):
		return http.StatusNotFound, "participant not found"
	case errors.Is(err, store.ErrReportNotFound):
		return http.StatusNotFound, "report not found"
	default:
		return http.StatusInternalServerError, "internal assessment error"
	}
}
