package participant

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-assess/backend/internal/model/participant"
	"github.com/zhouzirui/z-assess/backend/pkg/utils"
)

// Handler 候选人资料的HTTP处理器
type Handler struct {
	participants participant.Store
}

// New 创建候选人处理器
func New(participants participant.Store) *Handler {
	return &Handler{participants: participants}
}

// RegisterRoutes 注册候选人相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/participants", h.handleList)
	r.Post("/participants", h.handleSave)
	r.Get("/participants/{participantID}", h.handleGet)
}

// handleList 列出所有候选人
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.participants.List())
}

// handleGet 查询单个候选人
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.participants.FindByID(chi.URLParam(r, "participantID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "participant not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

// handleSave 录入候选人资料，context原样保存
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload participant.Participant
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.participants.Save(payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, participant.ErrNameRequired) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, saved)
}
