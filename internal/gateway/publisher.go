package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/partygames/gamesnight/internal/events"
)

// EventPublisher mirrors room broadcasts to an external bus so other
// processes (history writers, moderation, analytics) can observe them.
// Publishing is best-effort; failures never affect room delivery.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
	Close() error
}

// NoopPublisher drops events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, events.Event) error { return nil }
func (NoopPublisher) Close() error                                { return nil }

// JetStreamConfig holds configuration for the JetStream event publisher.
type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

// DefaultJetStreamConfig returns default JetStream publisher configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "ROOM_EVENTS",
		SubjectPrefix:   "room.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
	}
}

// JetStreamPublisher publishes room events to NATS JetStream under
// "<prefix>.<roomID>.<eventType>" subjects.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewJetStreamPublisher connects to NATS and ensures the event stream.
func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}
	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

// ensureStream creates the room event stream if it does not exist.
func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Room coordination events",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		MaxAge:      p.config.MaxAge,
		Duplicates:  p.config.DuplicateWindow,
	})
	if err != nil {
		return fmt.Errorf("create or update stream %s: %w", p.config.StreamName, err)
	}
	return nil
}

// Publish sends one event. The event id doubles as the dedupe id.
func (p *JetStreamPublisher) Publish(ctx context.Context, event events.Event) error {
	subject := fmt.Sprintf("%s.%s.%s", p.config.SubjectPrefix, event.RoomID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the NATS connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
