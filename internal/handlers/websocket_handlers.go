package handlers

import (
	"net/http"

	ws "purple-player/internal/websocket"
	"purple-player/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	router     *ws.Router
	verifier   ws.MembershipVerifier
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewWebSocketHandlers wires the upgrade endpoint to the router. A nil
// verifier leaves join-group announcements unchecked.
func NewWebSocketHandlers(router *ws.Router, verifier ws.MembershipVerifier, sendBuffer int, allowedOrigin string) *WebSocketHandlers {
	return &WebSocketHandlers{
		router:     router,
		verifier:   verifier,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigin),
		},
	}
}

func checkOrigin(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "" || allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.router, conn, h.sendBuffer, h.verifier)
	h.router.Register(client)
	logger.Debug("Socket %s connected from %s", client.ID(), r.RemoteAddr)

	go client.WritePump()
	go client.ReadPump()
}
