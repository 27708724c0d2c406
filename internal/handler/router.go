package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authHandler "github.com/wutongtree/backend/internal/handler/auth"
	"github.com/wutongtree/backend/internal/handler/conversation"
	"github.com/wutongtree/backend/internal/handler/match"
	onboardingHandler "github.com/wutongtree/backend/internal/handler/onboarding"
	"github.com/wutongtree/backend/internal/handler/persona"
	roomHandler "github.com/wutongtree/backend/internal/handler/room"
	middlewarePkg "github.com/wutongtree/backend/internal/middleware"
	personaModel "github.com/wutongtree/backend/internal/model/persona"
	"github.com/wutongtree/backend/internal/service/auth"
	"github.com/wutongtree/backend/internal/service/matching"
	"github.com/wutongtree/backend/internal/service/onboarding"
	"github.com/wutongtree/backend/internal/service/room"
	"github.com/wutongtree/backend/internal/store/transcript"
	"github.com/wutongtree/backend/pkg/utils"
)

// Services 路由依赖的核心服务。
type Services struct {
	Personas    personaModel.Store
	Rooms       *room.Service
	Match       *matching.Service
	Auth        *auth.Service
	Onboarding  *onboarding.Service
	Transcripts transcript.Store
}

// NewRouter wires HTTP routes to core services. The returned connection
// registry lets the caller close live sockets on shutdown.
func NewRouter(svc Services) (http.Handler, *roomHandler.Connections) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	rooms := roomHandler.New(svc.Rooms, svc.Match, svc.Auth)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status": "ok",
				"rooms":  len(svc.Rooms.List()),
			})
		})

		persona.New(svc.Personas).RegisterRoutes(api)
		authHandler.New(svc.Auth).RegisterRoutes(api)
		onboardingHandler.New(svc.Onboarding).RegisterRoutes(api)
		match.New(svc.Match).RegisterRoutes(api)
		rooms.RegisterRoutes(api)
		conversation.New(svc.Rooms, svc.Transcripts).RegisterRoutes(api)
	})

	return r, rooms.Connections()
}
