package match

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wutongtree/backend/internal/service/matching"
	"github.com/wutongtree/backend/pkg/utils"
)

// Handler 匹配流程的HTTP处理器
type Handler struct {
	svc *matching.Service
}

// New 创建匹配处理器
func New(svc *matching.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册匹配相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/match", func(r chi.Router) {
		r.Post("/", h.handleFind)
		r.Get("/", h.handleStatus)
		r.Post("/accept", h.handleAccept)
		r.Post("/decline", h.handleDecline)
		r.Post("/cancel", h.handleCancel)
	})
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	h.svc.FindMatch()
	utils.RespondJSON(w, http.StatusAccepted, h.svc.Status())
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Status())
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Accept(); err != nil {
		respondMatchError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.Status())
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Decline(); err != nil {
		respondMatchError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.Status())
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.svc.Cancel()
	utils.RespondJSON(w, http.StatusOK, h.svc.Status())
}

func respondMatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, matching.ErrNoMatch) {
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
