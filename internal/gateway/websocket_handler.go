package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/partygames/gamesnight/internal/identity"
)

// WebSocketHandler handles WebSocket upgrade requests for room connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	resolver          identity.Resolver
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, resolver identity.Resolver) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		resolver:          resolver,
	}
}

// HandleConnection upgrades a client connection. A valid token resolves
// to a user identity; no token admits an anonymous guest; an invalid
// token refuses the connection before the upgrade.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	var userID string
	if token != "" {
		resolved, err := h.resolver.Resolve(r.Context(), token)
		if err != nil {
			log.Warn().Err(err).Msg("refusing connection with invalid token")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID = resolved
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, userID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		// Upgrade already wrote the HTTP error response.
		return
	}
}

// bearerToken extracts the identity token from the Authorization header
// or, for browser WebSocket clients that cannot set headers, the token
// query parameter.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// HandleStats returns statistics about active connections.
func (h *WebSocketHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}
