package models

import (
	"time"
)

// GameType identifies which party game a room is running.
type GameType string

const (
	GameTypeWouldYouRather GameType = "would_you_rather"
	GameTypeTruthOrDare    GameType = "truth_or_dare"
	GameTypeSixtySeconds   GameType = "sixty_seconds"
	GameTypeHotSeat        GameType = "hot_seat"
	GameTypeDrawGuess      GameType = "draw_guess"
)

// Valid reports whether gt is one of the known game types.
func (gt GameType) Valid() bool {
	switch gt {
	case GameTypeWouldYouRather, GameTypeTruthOrDare, GameTypeSixtySeconds,
		GameTypeHotSeat, GameTypeDrawGuess:
		return true
	}
	return false
}

// RoomStatus defines the lifecycle state of a room.
// Transitions are monotonic: waiting -> active -> closed.
type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusActive  RoomStatus = "active"
	RoomStatusClosed  RoomStatus = "closed"
)

// Room is the coordinator's view of a multiplayer session container.
// Creation is owned externally; the coordinator owns liveness and
// lifecycle tracking.
type Room struct {
	ID        string     `json:"id"`
	GameType  GameType   `json:"game_type"`
	HostID    string     `json:"host_id,omitempty"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// MemberSnapshot describes one connection currently joined to a room.
type MemberSnapshot struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id,omitempty"`
	Guest        bool      `json:"guest"`
	JoinedAt     time.Time `json:"joined_at"`
}

// RoomSnapshot is returned to a joiner after membership is recorded.
type RoomSnapshot struct {
	Room    Room             `json:"room"`
	Members []MemberSnapshot `json:"members"`
}
