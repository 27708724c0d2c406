package room

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wutongtree/backend/internal/service/auth"
	"github.com/wutongtree/backend/internal/service/matching"
	roomService "github.com/wutongtree/backend/internal/service/room"
	"github.com/wutongtree/backend/pkg/log"
	"github.com/wutongtree/backend/pkg/utils"
)

// sseHeartbeat SSE 心跳间隔
const sseHeartbeat = 15 * time.Second

// Handler 房间的HTTP处理器
type Handler struct {
	rooms       *roomService.Service
	match       *matching.Service
	auth        *auth.Service
	connections *Connections
}

// New 创建房间处理器。match 与 auth 可以为 nil。
func New(rooms *roomService.Service, match *matching.Service, authSvc *auth.Service) *Handler {
	return &Handler{
		rooms:       rooms,
		match:       match,
		auth:        authSvc,
		connections: NewConnections(),
	}
}

// Connections exposes the websocket registry so the server can close it on shutdown.
func (h *Handler) Connections() *Connections {
	return h.connections
}

// RegisterRoutes 注册房间相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleSnapshot)
			r.Delete("/", h.handleEnd)
			r.Post("/listen/start", h.handleListenStart)
			r.Post("/listen/stop", h.handleListenStop)
			r.Post("/transcript", h.handleTranscript)
			r.Post("/mute", h.handleMute)
			r.Post("/speaker", h.handleSpeaker)
			r.Post("/recording", h.handleRecording)
			r.Post("/nudge/{slot}", h.handleNudge)
			r.Get("/events", h.handleEvents)
			r.Get("/ws", h.handleWebSocket)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req roomService.CreateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fromMatch := false
	if strings.TrimSpace(req.PartnerName) == "" && h.match != nil {
		if partner, ok := h.match.Accepted(); ok {
			req.PartnerName = partner.Name
			fromMatch = true
		}
	}
	if strings.TrimSpace(req.PartnerName) == "" {
		utils.RespondError(w, http.StatusBadRequest, "an accepted match or partnerName is required")
		return
	}
	if strings.TrimSpace(req.SelfName) == "" && h.auth != nil {
		if u, err := h.auth.Current(); err == nil {
			req.SelfName = u.Name
		}
	}

	rm, err := h.rooms.Create(r.Context(), req)
	if err != nil {
		log.Errorf("[room] create failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	if fromMatch {
		// 匹配已经兑现为房间
		h.match.Cancel()
	}

	snap, err := rm.Snapshot()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, snap)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string][]string{"rooms": h.rooms.List()})
}

func (h *Handler) room(w http.ResponseWriter, r *http.Request) (*roomService.Room, bool) {
	rm, err := h.rooms.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondRoomError(w, err)
		return nil, false
	}
	return rm, true
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	snap, err := rm.Snapshot()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.rooms.End(id)
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	h.connections.CloseRoom(id)
	utils.RespondJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleListenStart(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	if err := rm.StartListening(); err != nil {
		h.respondRoomError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"listening": true})
}

func (h *Handler) handleListenStop(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	msg, err := rm.StopListening()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"listening": false, "message": msg})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil || strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err := rm.PushTranscript(payload.Text); err != nil {
		h.respondRoomError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleMute(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	muted, err := rm.ToggleMute()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"muted": muted})
}

func (h *Handler) handleSpeaker(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	on, err := rm.ToggleSpeaker()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"speakerOn": on})
}

func (h *Handler) handleRecording(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	recording, err := rm.ToggleRecording()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"recording": recording})
}

func (h *Handler) handleNudge(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}

	var trigger func() (any, error)
	switch roomService.Slot(chi.URLParam(r, "slot")) {
	case roomService.SlotHost:
		trigger = func() (any, error) { return rm.TriggerHost() }
	case roomService.SlotParticipant:
		trigger = func() (any, error) { return rm.TriggerParticipant() }
	default:
		utils.RespondError(w, http.StatusBadRequest, "slot must be host or participant")
		return
	}

	msg, err := trigger()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, msg)
}

// handleEvents 以 SSE 推送房间事件，先发一次完整快照。
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe, err := rm.Subscribe()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}
	defer unsubscribe()

	snap, err := rm.Snapshot()
	if err != nil {
		h.respondRoomError(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "snapshot", snap); err != nil {
		return
	}
	log.Debugf("[sse] opened event stream for room=%s", rm.ID())

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debugf("[sse] client left room=%s", rm.ID())
			return
		case <-heartbeat.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		case ev, open := <-events:
			if !open {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				return
			}
		}
	}
}

func (h *Handler) respondRoomError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("[room] request failed: %v", err)
	}
	utils.RespondError(w, status, message)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, roomService.ErrRoomNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, roomService.ErrRoomClosed):
		return http.StatusGone, err.Error()
	case errors.Is(err, roomService.ErrMuted),
		errors.Is(err, roomService.ErrSlotBusy),
		errors.Is(err, roomService.ErrNotListening):
		return http.StatusConflict, err.Error()
	case errors.Is(err, roomService.ErrCaptureUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
