package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/partygames/gamesnight/internal/game"
	"github.com/partygames/gamesnight/internal/gateway"
	"github.com/partygames/gamesnight/internal/identity"
	"github.com/partygames/gamesnight/internal/prompts"
	"github.com/partygames/gamesnight/internal/room"
	"github.com/partygames/gamesnight/internal/store"
)

type Services struct {
	Store       *store.RedisStore
	Pool        *pgxpool.Pool
	Coordinator *room.Coordinator
	Gateway     *gateway.Service
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store layer → Dispatcher → Coordinator → Gateway

	st, err := store.NewRedisStoreFromConfig(ctx, store.RedisConfig{
		Addr:      config.Redis.Addr,
		Password:  config.Redis.Password,
		DB:        config.Redis.DB,
		OpTimeout: config.Redis.OpTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", config.Redis.Addr).Msg("connected to redis")

	pool, err := pgxpool.New(ctx, config.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	log.Info().Msg("connected to postgres")

	promptRepo := prompts.NewRepository(pool)
	dispatcher := game.NewDispatcher(st)
	coordinator := room.NewCoordinator(st, dispatcher, promptRepo)

	resolver := identity.NewJWTResolver(config.Auth.JWTSecret)

	publisher, err := setupPublisher(config)
	if err != nil {
		pool.Close()
		return nil, err
	}

	gatewayService := gateway.NewService(gateway.DefaultConfig(), coordinator, resolver, publisher)

	return &Services{
		Store:       st,
		Pool:        pool,
		Coordinator: coordinator,
		Gateway:     gatewayService,
	}, nil
}

func setupPublisher(config *Config) (gateway.EventPublisher, error) {
	if !config.NATS.Enabled {
		log.Info().Msg("event publishing disabled, using noop publisher")
		return gateway.NoopPublisher{}, nil
	}

	jsConfig := gateway.DefaultJetStreamConfig()
	if config.NATS.URL != "" {
		jsConfig.URL = config.NATS.URL
	}
	publisher, err := gateway.NewJetStreamPublisher(jsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream publisher: %w", err)
	}
	log.Info().Str("url", jsConfig.URL).Str("stream", jsConfig.StreamName).Msg("connected to nats jetstream")
	return publisher, nil
}

func (s *Services) Close() {
	if err := s.Gateway.Stop(); err != nil {
		log.Warn().Err(err).Msg("failed to stop gateway service")
	}
	if err := s.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis store")
	}
	s.Pool.Close()
}
