package onboarding

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	authService "github.com/wutongtree/backend/internal/service/auth"
	onboardingService "github.com/wutongtree/backend/internal/service/onboarding"
	"github.com/wutongtree/backend/pkg/log"
	"github.com/wutongtree/backend/pkg/utils"
)

// Handler 引导访谈的HTTP处理器
type Handler struct {
	svc *onboardingService.Service
}

// New 创建引导访谈处理器
func New(svc *onboardingService.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册引导访谈相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/onboarding/interview", func(r chi.Router) {
		r.Post("/", h.handleStart)
		r.Get("/", h.handleSnapshot)
		r.Post("/answer", h.handleAnswer)
		r.Post("/finish", h.handleFinish)
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusCreated, h.svc.Start())
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot())
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.svc.Answer(r.Context(), payload.Text)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

// handleFinish 把访谈结果写入当前用户
func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Finish()
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, onboardingService.ErrEmptyAnswer):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, onboardingService.ErrNotStarted),
		errors.Is(err, onboardingService.ErrComplete),
		errors.Is(err, onboardingService.ErrNotComplete):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, authService.ErrNotAuthenticated):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	default:
		log.Errorf("[onboarding] request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
