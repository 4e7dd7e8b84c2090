package main

import (
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(config *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register WebSocket routes
	services.Gateway.RegisterRoutes(mux)

	// Add health check endpoint
	setupHealthCheck(mux)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:        config.Server.Addr,
		Handler:     h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Warn().Err(err).Msg("failed to write health check response")
		}
	})
}
