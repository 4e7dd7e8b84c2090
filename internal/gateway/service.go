// Package gateway accepts persistent WebSocket connections, resolves or
// admits identities, routes inbound room and game events to the
// coordinator, and delivers outbound broadcasts.
package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/partygames/gamesnight/internal/identity"
	"github.com/partygames/gamesnight/internal/room"
)

// Service is the connection gateway: WebSocket handling plus broadcast
// fan-out and external event publishing.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	publisher         EventPublisher
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates the gateway and wires it to the coordinator as its
// broadcaster.
func NewService(config Config, coordinator *room.Coordinator, resolver identity.Resolver, publisher EventPublisher) *Service {
	cm := NewConnectionManager(config.ConnectionConfig, coordinator, publisher)
	coordinator.SetBroadcaster(cm)

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, resolver),
		publisher:         cm.publisher,
	}
}

// RegisterRoutes registers the WebSocket HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// ConnectionManager exposes the manager for stats and tests.
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// Stop releases gateway resources. The publish pump is drained before
// the publisher itself is closed.
func (s *Service) Stop() error {
	s.connectionManager.StopPublishing()
	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
	log.Info().Msg("gateway service stopped")
	return nil
}
