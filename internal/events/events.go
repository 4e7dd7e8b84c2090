// Package events defines the outbound event envelope and payload types
// shared between the room coordinator and the connection gateway.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies an outbound room event.
type Type string

const (
	TypeUserJoined     Type = "user_joined"
	TypeUserLeft       Type = "user_left"
	TypeGameUpdate     Type = "game_update"
	TypeTimerSync      Type = "timer_sync"
	TypeStrokeUpdate   Type = "stroke_update"
	TypeSessionStarted Type = "session_started"
	TypeSessionEnded   Type = "session_ended"
)

// Event is the envelope broadcast to every connection joined to a room.
type Event struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event envelope, marshaling the payload.
func New(roomID string, eventType Type, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}

// UserJoinedPayload is the payload for a user_joined event.
type UserJoinedPayload struct {
	UserID string `json:"user_id,omitempty"`
	Guest  bool   `json:"guest"`
}

// UserLeftPayload is the payload for a user_left event.
type UserLeftPayload struct {
	UserID string `json:"user_id,omitempty"`
	Guest  bool   `json:"guest"`
}

// GameUpdatePayload is the payload for a game_update event. Data is the
// raw action payload as submitted by the acting user.
type GameUpdatePayload struct {
	Action string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	UserID string          `json:"user_id,omitempty"`
}

// TimerSyncPayload carries the shared epoch+duration pair. Clients compute
// the remaining time locally; the server never ticks.
type TimerSyncPayload struct {
	StartEpochMS    int64 `json:"start_epoch_ms"`
	DurationSeconds int   `json:"duration_seconds"`
}

// StrokeUpdatePayload relays one drawing stroke to the other room members.
type StrokeUpdatePayload struct {
	Stroke json.RawMessage `json:"stroke"`
	UserID string          `json:"user_id,omitempty"`
}

// SessionStartedPayload announces that the prompt queue was drawn and the
// room transitioned to active.
type SessionStartedPayload struct {
	GameType    string `json:"game_type"`
	PromptCount int    `json:"prompt_count"`
}

// SessionEndedPayload announces that the room was closed.
type SessionEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}
