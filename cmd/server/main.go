package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"purple-player/internal/auth"
	"purple-player/internal/config"
	"purple-player/internal/database"
	"purple-player/internal/handlers"
	"purple-player/internal/metrics"
	"purple-player/internal/presence"
	"purple-player/internal/services"
	"purple-player/internal/websocket"
	"purple-player/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database: %v", err)
	}

	m := metrics.New()

	// Initialize services
	groupService := services.NewGroupService(db)
	tracker := presence.NewTracker(db, groupService,
		presence.WithStaleAfter(cfg.Presence.StaleAfter),
		presence.WithMetrics(m),
	)
	authService := auth.NewService(db, cfg, m)
	userService := services.NewUserService(db, groupService)
	trackService := services.NewTrackService(db)

	// Start the broadcast router
	routerCtx, cancelRouter := context.WithCancel(context.Background())
	router := websocket.NewRouter(tracker, websocket.WithMetrics(m))
	go router.Run(routerCtx)

	server := &http.Server{
		Addr: cfg.Server.Port,
		Handler: handlers.NewRouter(handlers.Dependencies{
			Config:   cfg,
			Auth:     authService,
			Users:    userService,
			Groups:   groupService,
			Tracks:   trackService,
			Presence: tracker,
			Router:   router,
			Metrics:  m,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
	cancelRouter()
	<-router.Done()
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   POST   /api/auth/register")
	logger.Info("   POST   /api/auth/login")
	logger.Info("   GET    /api/users/me")
	logger.Info("   PUT    /api/users/me/profile")
	logger.Info("   PUT    /api/users/me/password")
	logger.Info("   DELETE /api/users/me")
	logger.Info("   POST   /api/presence/heartbeat")
	logger.Info("   PUT    /api/presence/offline")
	logger.Info("   PUT    /api/presence/listening")
	logger.Info("   GET    /api/presence/online")
	logger.Info("   GET    /api/presence/status/{email}")
	logger.Info("   POST   /api/groups")
	logger.Info("   POST   /api/groups/join")
	logger.Info("   POST   /api/groups/leave")
	logger.Info("   GET    /api/groups/members")
	logger.Info("   GET    /api/groups/{groupId}")
	logger.Info("   GET    /api/tracks")
	logger.Info("   POST   /api/tracks")
	logger.Info("   GET    /api/tracks/top")
	logger.Info("   DELETE /api/tracks/{trackId}")
	logger.Info("   GET    /metrics")
}
