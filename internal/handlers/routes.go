package handlers

import (
	"net/http"

	"purple-player/internal/auth"
	"purple-player/internal/config"
	"purple-player/internal/metrics"
	"purple-player/internal/presence"
	"purple-player/internal/services"
	ws "purple-player/internal/websocket"
	"purple-player/pkg/logger"
	mw "purple-player/pkg/middleware"
	"purple-player/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Dependencies is everything the HTTP surface needs.
type Dependencies struct {
	Config   *config.Config
	Auth     *auth.Service
	Users    *services.UserService
	Groups   *services.GroupService
	Tracks   *services.TrackService
	Presence *presence.Tracker
	Router   *ws.Router
	Metrics  *metrics.Metrics
}

func NewRouter(d Dependencies) http.Handler {
	var verifier ws.MembershipVerifier
	if d.Config.WebSocket.VerifyMembership {
		verifier = d.Groups
	}

	authHandlers := NewAuthHandlers(d.Auth)
	userHandlers := NewUserHandlers(d.Users)
	presenceHandlers := NewPresenceHandlers(d.Presence)
	groupHandlers := NewGroupHandlers(d.Groups, d.Presence)
	trackHandlers := NewTrackHandlers(d.Tracks)
	wsHandlers := NewWebSocketHandlers(d.Router, verifier, d.Config.WebSocket.SendBuffer, d.Config.Server.AllowedOrigin)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger.GlobalLogger.Access(), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(mw.CORS(d.Config.Server.AllowedOrigin))

	r.Get("/ws", wsHandlers.HandleWebSocket)
	r.Method(http.MethodGet, "/metrics", d.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKey(d.Config.APIKey))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Mount("/auth", authHandlers.Routes())

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(d.Auth))
			r.Mount("/users", userHandlers.Routes())
			r.Mount("/presence", presenceHandlers.Routes())
			r.Mount("/groups", groupHandlers.Routes())
			r.Mount("/tracks", trackHandlers.Routes())
		})
	})

	return r
}
