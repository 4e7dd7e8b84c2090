package room

// Timer synchronization strategy: the server captures a start epoch and
// duration once, stores them as room scalars, and broadcasts the pair.
// Clients compute the remaining time locally. No per-room countdown
// goroutine exists on the server; the next start simply overwrites the
// scalars.

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/partygames/gamesnight/internal/apperrors"
	"github.com/partygames/gamesnight/internal/events"
	"github.com/partygames/gamesnight/internal/game"
)

// StartTimer stores the shared epoch+duration pair for a room and
// broadcasts timer_sync to every member. The caller must be joined.
func (c *Coordinator) StartTimer(ctx context.Context, roomID string, actor Conn, durationSeconds int) (events.TimerSyncPayload, error) {
	rs, err := c.lookup(roomID)
	if err != nil {
		return events.TimerSyncPayload{}, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, joined := rs.members[actor.ConnectionID]; !joined {
		return events.TimerSyncPayload{}, apperrors.New(apperrors.CodeNotInRoom, "connection not joined to room %s", roomID)
	}
	if durationSeconds <= 0 {
		return events.TimerSyncPayload{}, apperrors.MissingData("duration")
	}

	payload := events.TimerSyncPayload{
		StartEpochMS:    c.clock.Now().UnixMilli(),
		DurationSeconds: durationSeconds,
	}

	key := game.RoomKey(roomID)
	if err := c.store.HSet(ctx, key, game.FieldTimerStart, strconv.FormatInt(payload.StartEpochMS, 10)); err != nil {
		return events.TimerSyncPayload{}, err
	}
	if err := c.store.HSet(ctx, key, game.FieldTimerDuration, strconv.Itoa(durationSeconds)); err != nil {
		return events.TimerSyncPayload{}, err
	}

	c.broadcastLocked(roomID, events.TypeTimerSync, payload, "")

	log.Debug().
		Str("room_id", roomID).
		Int64("start_epoch_ms", payload.StartEpochMS).
		Int("duration_sec", durationSeconds).
		Msg("timer started")
	return payload, nil
}
