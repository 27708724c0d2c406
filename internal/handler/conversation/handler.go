package conversation

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wutongtree/backend/internal/model/chat"
	"github.com/wutongtree/backend/internal/model/conversation"
	"github.com/wutongtree/backend/internal/service/room"
	"github.com/wutongtree/backend/internal/store/transcript"
	"github.com/wutongtree/backend/pkg/log"
	"github.com/wutongtree/backend/pkg/utils"
)

// Handler 历史对话的HTTP处理器
type Handler struct {
	rooms       *room.Service
	transcripts transcript.Store
}

// New 创建历史对话处理器
func New(rooms *room.Service, transcripts transcript.Store) *Handler {
	return &Handler{rooms: rooms, transcripts: transcripts}
}

// RegisterRoutes 注册历史对话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/{id}/rating", h.handleRate)
		r.Get("/{id}/transcript", h.handleTranscript)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.rooms.Conversations()
	if err != nil {
		log.Errorf("[conversation] list failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	if records == nil {
		records = []conversation.Record{}
	}
	utils.RespondJSON(w, http.StatusOK, records)
}

func (h *Handler) handleRate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Rating *int `json:"rating"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil || payload.Rating == nil {
		utils.RespondError(w, http.StatusBadRequest, "rating is required")
		return
	}

	rec, err := h.rooms.Rate(chi.URLParam(r, "id"), *payload.Rating)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, rec)
	case errors.Is(err, conversation.ErrInvalidRating):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, room.ErrRoomActive):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, room.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		log.Errorf("[conversation] rate failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to save rating")
	}
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	messages, err := h.transcripts.LoadTranscript(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Errorf("[conversation] load transcript failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}
