package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	authService "github.com/wutongtree/backend/internal/service/auth"
	"github.com/wutongtree/backend/pkg/log"
	"github.com/wutongtree/backend/pkg/utils"
)

// Handler 登录相关的HTTP处理器
type Handler struct {
	svc *authService.Service
}

// New 创建登录处理器
func New(svc *authService.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册登录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signin", h.handleSignIn)
		r.Get("/me", h.handleMe)
		r.Post("/signout", h.handleSignOut)
		r.Post("/onboarding", h.handleOnboarding)
	})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Provider string `json:"provider"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.svc.SignIn(payload.Provider)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Current()
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SignOut(); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	var payload authService.Onboarding
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.svc.CompleteOnboarding(payload)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authService.ErrUnknownProvider):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authService.ErrNotAuthenticated):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	default:
		log.Errorf("[auth] request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
