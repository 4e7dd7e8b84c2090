package room

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/partygames/gamesnight/internal/apperrors"
	"github.com/partygames/gamesnight/internal/events"
	"github.com/partygames/gamesnight/internal/game"
	"github.com/partygames/gamesnight/internal/models"
)

const (
	// PromptQueueCap bounds the number of prompts drawn per session.
	PromptQueueCap = 50
	// PromptQueueTTL ages out a queue no session consumed.
	PromptQueueTTL = 24 * time.Hour
)

// PromptPayload is one prompt formatted for its game type. Only the
// fields for the room's game type are populated.
type PromptPayload struct {
	ID string `json:"id"`

	// would_you_rather
	OptionA string `json:"option_a,omitempty"`
	OptionB string `json:"option_b,omitempty"`

	// truth_or_dare
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`

	// sixty_seconds
	Category string `json:"category,omitempty"`

	// hot_seat
	Question string `json:"question,omitempty"`

	// draw_guess
	Word       string `json:"word,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// PromptSource supplies prompt content. The coordinator consumes only
// this interface; storage of prompt content is owned externally.
type PromptSource interface {
	// FetchPromptIDs returns up to limit randomly selected prompt ids
	// for the game type, filtered to safe content and, when themeIDs is
	// non-empty, to those themes.
	FetchPromptIDs(ctx context.Context, gameType models.GameType, themeIDs []int, limit int) ([]string, error)
	// FetchPromptPayload loads one prompt formatted for its game type.
	FetchPromptPayload(ctx context.Context, gameType models.GameType, id string) (PromptPayload, error)
}

// NextPromptResult is the outcome of a queue pop. Exhaustion is an
// expected terminal condition, not an error.
type NextPromptResult struct {
	Exhausted bool           `json:"exhausted"`
	Prompt    *PromptPayload `json:"prompt,omitempty"`
}

// StartSession draws the prompt queue for a room and transitions it from
// waiting to active. Host-only when the room has a host. Fails with
// NoPromptsAvailable when the candidate set is empty; the queue is drawn
// once and is not restartable.
func (c *Coordinator) StartSession(ctx context.Context, roomID, actorUserID string, themeIDs []int) (int, error) {
	rs, err := c.lookup(roomID)
	if err != nil {
		return 0, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.room.Status == models.RoomStatusClosed {
		return 0, apperrors.New(apperrors.CodeRoomClosed, "room %s is closed", roomID)
	}
	if rs.room.HostID != "" && actorUserID != rs.room.HostID {
		return 0, apperrors.Forbidden("only the host may start the session")
	}

	ids, err := c.prompts.FetchPromptIDs(ctx, rs.room.GameType, themeIDs, PromptQueueCap)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, apperrors.New(apperrors.CodeNoPromptsAvailable, "no prompts available for %s", rs.room.GameType)
	}
	if len(ids) > PromptQueueCap {
		ids = ids[:PromptQueueCap]
	}

	key := game.PromptQueueKey(roomID)
	if err := c.store.Delete(ctx, key); err != nil {
		return 0, err
	}
	if err := c.store.PushFront(ctx, key, ids...); err != nil {
		return 0, err
	}
	if err := c.store.Expire(ctx, key, PromptQueueTTL); err != nil {
		return 0, err
	}

	rs.room.Status = models.RoomStatusActive

	c.broadcastLocked(roomID, events.TypeSessionStarted, events.SessionStartedPayload{
		GameType:    string(rs.room.GameType),
		PromptCount: len(ids),
	}, "")

	log.Info().
		Str("room_id", roomID).
		Str("game_type", string(rs.room.GameType)).
		Int("prompt_count", len(ids)).
		Msg("session started")
	return len(ids), nil
}

// NextPrompt atomically pops the front of the room's prompt queue and
// loads its payload. Two concurrent calls never return the same id. An
// empty queue yields an explicit exhausted result.
func (c *Coordinator) NextPrompt(ctx context.Context, roomID string) (NextPromptResult, error) {
	rs, err := c.lookup(roomID)
	if err != nil {
		return NextPromptResult{}, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	id, ok, err := c.store.PopFront(ctx, game.PromptQueueKey(roomID))
	if err != nil {
		return NextPromptResult{}, err
	}
	if !ok {
		return NextPromptResult{Exhausted: true}, nil
	}

	prompt, err := c.prompts.FetchPromptPayload(ctx, rs.room.GameType, id)
	if err != nil {
		// The id is consumed either way; losing it is accepted.
		return NextPromptResult{}, err
	}
	return NextPromptResult{Prompt: &prompt}, nil
}
