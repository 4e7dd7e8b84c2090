// Package room implements the per-room coordination core: membership,
// lifecycle, prompt queue draw order, broadcast fan-out, and the timer
// synchronizer. All mutation for a room is serialized under that room's
// lock; different rooms proceed independently.
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/partygames/gamesnight/internal/apperrors"
	"github.com/partygames/gamesnight/internal/events"
	"github.com/partygames/gamesnight/internal/game"
	"github.com/partygames/gamesnight/internal/models"
	"github.com/partygames/gamesnight/internal/store"
)

// ActionAuditTTL bounds the best-effort per-room action audit list.
const ActionAuditTTL = 24 * time.Hour

// StrokeTTL bounds the per-room stroke list used for best-effort canvas
// replay; clear_canvas deletes it explicitly.
const StrokeTTL = time.Hour

// Broadcaster delivers an event to every connection currently joined to
// a room, except excludeConnID when non-empty. Implementations must not
// block: delivery is fire-and-forget relative to the store mutation, but
// per-room ordering must be preserved.
type Broadcaster interface {
	Broadcast(roomID string, event events.Event, excludeConnID string)
}

// Conn identifies one connection joining or leaving a room.
type Conn struct {
	ConnectionID string
	UserID       string // empty for guests
	Guest        bool
}

type member struct {
	conn     Conn
	joinedAt time.Time
}

type roomState struct {
	mu      sync.Mutex
	room    models.Room
	members map[string]*member // keyed by connection id
}

// Coordinator owns room membership and lifecycle and serializes all
// per-room mutation, including game action dispatch.
type Coordinator struct {
	store       store.Store
	dispatcher  *game.Dispatcher
	prompts     PromptSource
	broadcaster Broadcaster
	clock       clockwork.Clock

	mu    sync.RWMutex
	rooms map[string]*roomState
}

// NewCoordinator creates a coordinator. broadcaster may be set later via
// SetBroadcaster to break the construction cycle with the gateway.
func NewCoordinator(st store.Store, dispatcher *game.Dispatcher, prompts PromptSource) *Coordinator {
	return &Coordinator{
		store:      st,
		dispatcher: dispatcher,
		prompts:    prompts,
		clock:      clockwork.NewRealClock(),
		rooms:      make(map[string]*roomState),
	}
}

// SetBroadcaster wires the broadcast sink. Must be called before any
// member joins.
func (c *Coordinator) SetBroadcaster(b Broadcaster) {
	c.broadcaster = b
}

// SetClock replaces the coordinator's clock. Tests use a fake clock.
func (c *Coordinator) SetClock(clock clockwork.Clock) {
	c.clock = clock
}

// Register makes a room known to the coordinator. Creation is owned
// externally; the coordinator tracks liveness from registration onward.
// Registering an already-known room id is an error.
func (c *Coordinator) Register(room models.Room) error {
	if room.ID == "" {
		return apperrors.MissingData("room_id")
	}
	if !room.GameType.Valid() {
		return apperrors.UnknownGameType(string(room.GameType))
	}
	if room.Status == "" {
		room.Status = models.RoomStatusWaiting
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = c.clock.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.rooms[room.ID]; exists {
		return fmt.Errorf("room %s already registered", room.ID)
	}
	c.rooms[room.ID] = &roomState{
		room:    room,
		members: make(map[string]*member),
	}

	log.Info().
		Str("room_id", room.ID).
		Str("game_type", string(room.GameType)).
		Msg("room registered")
	return nil
}

// lookup returns the live state for a room id.
func (c *Coordinator) lookup(roomID string) (*roomState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rs, ok := c.rooms[roomID]
	if !ok {
		return nil, apperrors.NotFound("room %s not found", roomID)
	}
	return rs, nil
}

// Room returns a copy of the room's current descriptor.
func (c *Coordinator) Room(roomID string) (models.Room, error) {
	rs, err := c.lookup(roomID)
	if err != nil {
		return models.Room{}, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.room, nil
}

// Join adds a connection to a room and notifies the other members.
// Rejoining an already-joined connection is a no-op success. The snapshot
// is computed after membership is durably recorded; the user_joined
// broadcast to the other members happens before Join returns, under the
// room lock, so it is observed before any subsequent event for the room.
func (c *Coordinator) Join(ctx context.Context, roomID string, conn Conn) (models.RoomSnapshot, error) {
	rs, err := c.lookup(roomID)
	if err != nil {
		return models.RoomSnapshot{}, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.room.Status == models.RoomStatusClosed {
		return models.RoomSnapshot{}, apperrors.New(apperrors.CodeRoomClosed, "room %s is closed", roomID)
	}

	if _, already := rs.members[conn.ConnectionID]; already {
		return c.snapshotLocked(rs), nil
	}

	rs.members[conn.ConnectionID] = &member{conn: conn, joinedAt: c.clock.Now()}

	// Mirror membership into the shared store so out-of-process readers
	// can see who is in the room. Best-effort.
	if conn.UserID != "" {
		if err := c.store.SAdd(ctx, game.MembersKey(roomID), conn.UserID); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("failed to mirror membership")
		}
	}

	snapshot := c.snapshotLocked(rs)
	c.broadcastLocked(roomID, events.TypeUserJoined, events.UserJoinedPayload{
		UserID: conn.UserID,
		Guest:  conn.Guest,
	}, conn.ConnectionID)

	log.Info().
		Str("room_id", roomID).
		Str("connection_id", conn.ConnectionID).
		Str("user_id", conn.UserID).
		Int("members", len(rs.members)).
		Msg("connection joined room")
	return snapshot, nil
}

// Leave removes a connection from a room and notifies the remaining
// members. It is a no-op if the connection is not a member.
func (c *Coordinator) Leave(ctx context.Context, roomID string, conn Conn) error {
	rs, err := c.lookup(roomID)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	m, ok := rs.members[conn.ConnectionID]
	if !ok {
		return nil
	}
	delete(rs.members, conn.ConnectionID)

	if m.conn.UserID != "" && !c.userStillPresentLocked(rs, m.conn.UserID) {
		if err := c.store.SRem(ctx, game.MembersKey(roomID), m.conn.UserID); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("failed to unmirror membership")
		}
	}

	c.broadcastLocked(roomID, events.TypeUserLeft, events.UserLeftPayload{
		UserID: m.conn.UserID,
		Guest:  m.conn.Guest,
	}, "")

	log.Info().
		Str("room_id", roomID).
		Str("connection_id", conn.ConnectionID).
		Str("user_id", m.conn.UserID).
		Int("members", len(rs.members)).
		Msg("connection left room")
	return nil
}

// userStillPresentLocked reports whether another connection for the same
// user remains joined.
func (c *Coordinator) userStillPresentLocked(rs *roomState, userID string) bool {
	for _, m := range rs.members {
		if m.conn.UserID == userID {
			return true
		}
	}
	return false
}

// HandleGameAction dispatches one game action under the room lock,
// appends a best-effort audit entry, and broadcasts game_update to all
// members including the actor.
func (c *Coordinator) HandleGameAction(ctx context.Context, roomID string, actor Conn, action string, data json.RawMessage) (any, error) {
	rs, err := c.lookup(roomID)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, joined := rs.members[actor.ConnectionID]; !joined {
		return nil, apperrors.New(apperrors.CodeNotInRoom, "connection not joined to room %s", roomID)
	}
	if rs.room.Status == models.RoomStatusClosed {
		return nil, apperrors.New(apperrors.CodeRoomClosed, "room %s is closed", roomID)
	}

	result, err := c.dispatcher.Handle(ctx, roomID, rs.room.GameType, action, data)
	if err != nil {
		return nil, err
	}

	c.appendAudit(ctx, roomID, action, actor.UserID)
	c.broadcastLocked(roomID, events.TypeGameUpdate, events.GameUpdatePayload{
		Action: action,
		Data:   data,
		UserID: actor.UserID,
	}, "")

	return result, nil
}

// HandleStroke records a drawing stroke for best-effort replay and relays
// it to the other room members.
func (c *Coordinator) HandleStroke(ctx context.Context, roomID string, actor Conn, stroke json.RawMessage) error {
	rs, err := c.lookup(roomID)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, joined := rs.members[actor.ConnectionID]; !joined {
		return apperrors.New(apperrors.CodeNotInRoom, "connection not joined to room %s", roomID)
	}
	if len(stroke) == 0 {
		return apperrors.MissingData("stroke")
	}

	key := game.StrokesKey(roomID)
	if err := c.store.PushFront(ctx, key, string(stroke)); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to record stroke")
	} else if err := c.store.Expire(ctx, key, StrokeTTL); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to expire strokes")
	}

	c.broadcastLocked(roomID, events.TypeStrokeUpdate, events.StrokeUpdatePayload{
		Stroke: stroke,
		UserID: actor.UserID,
	}, actor.ConnectionID)
	return nil
}

// CloseRoom transitions a room to closed and notifies members. Closing an
// already-closed room is a no-op success.
func (c *Coordinator) CloseRoom(ctx context.Context, roomID, reason string) error {
	rs, err := c.lookup(roomID)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.room.Status == models.RoomStatusClosed {
		return nil
	}
	rs.room.Status = models.RoomStatusClosed

	c.broadcastLocked(roomID, events.TypeSessionEnded, events.SessionEndedPayload{Reason: reason}, "")

	log.Info().Str("room_id", roomID).Str("reason", reason).Msg("room closed")
	return nil
}

// MemberCount returns the number of connections currently joined.
func (c *Coordinator) MemberCount(roomID string) (int, error) {
	rs, err := c.lookup(roomID)
	if err != nil {
		return 0, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.members), nil
}

// snapshotLocked builds a membership snapshot. Callers hold rs.mu.
func (c *Coordinator) snapshotLocked(rs *roomState) models.RoomSnapshot {
	members := make([]models.MemberSnapshot, 0, len(rs.members))
	for _, m := range rs.members {
		members = append(members, models.MemberSnapshot{
			ConnectionID: m.conn.ConnectionID,
			UserID:       m.conn.UserID,
			Guest:        m.conn.Guest,
			JoinedAt:     m.joinedAt,
		})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ConnectionID < members[j].ConnectionID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return models.RoomSnapshot{Room: rs.room, Members: members}
}

// broadcastLocked emits an event while holding the room lock, preserving
// causal order per room. Callers hold rs.mu.
func (c *Coordinator) broadcastLocked(roomID string, eventType events.Type, payload any, excludeConnID string) {
	if c.broadcaster == nil {
		return
	}
	ev, err := events.New(roomID, eventType, c.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	c.broadcaster.Broadcast(roomID, ev, excludeConnID)
}

// appendAudit pushes a best-effort audit entry onto the room's action
// list. Failures are logged, never surfaced.
func (c *Coordinator) appendAudit(ctx context.Context, roomID, action, userID string) {
	entry, err := json.Marshal(map[string]any{
		"type":      action,
		"user_id":   userID,
		"timestamp": c.clock.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	key := game.ActionsKey(roomID)
	if err := c.store.PushFront(ctx, key, string(entry)); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to append action audit")
		return
	}
	if err := c.store.Expire(ctx, key, ActionAuditTTL); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to expire action audit")
	}
}
