package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partygames/gamesnight/internal/apperrors"
	"github.com/partygames/gamesnight/internal/events"
	"github.com/partygames/gamesnight/internal/game"
	"github.com/partygames/gamesnight/internal/models"
	"github.com/partygames/gamesnight/internal/store"
)

// recordingBroadcaster captures broadcasts in delivery order.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedBroadcast
}

type recordedBroadcast struct {
	roomID  string
	event   events.Event
	exclude string
}

func (b *recordingBroadcaster) Broadcast(roomID string, event events.Event, excludeConnID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedBroadcast{roomID: roomID, event: event, exclude: excludeConnID})
}

func (b *recordingBroadcaster) byType(eventType events.Type) []recordedBroadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedBroadcast
	for _, rb := range b.events {
		if rb.event.Type == eventType {
			out = append(out, rb)
		}
	}
	return out
}

// stubPrompts serves a fixed id list and synthesized payloads.
type stubPrompts struct {
	ids []string
	err error
}

func (s *stubPrompts) FetchPromptIDs(_ context.Context, _ models.GameType, _ []int, limit int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.ids) > limit {
		return s.ids[:limit], nil
	}
	return s.ids, nil
}

func (s *stubPrompts) FetchPromptPayload(_ context.Context, _ models.GameType, id string) (PromptPayload, error) {
	return PromptPayload{ID: id, Question: "q-" + id}, nil
}

type testEnv struct {
	coordinator *Coordinator
	store       *store.MemoryStore
	broadcasts  *recordingBroadcaster
	clock       *clockwork.FakeClock
	prompts     *stubPrompts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClock()
	st := store.NewMemoryStoreWithClock(clock)
	prompts := &stubPrompts{ids: []string{"p1", "p2", "p3"}}
	c := NewCoordinator(st, game.NewDispatcher(st), prompts)
	c.SetClock(clock)
	broadcasts := &recordingBroadcaster{}
	c.SetBroadcaster(broadcasts)
	return &testEnv{coordinator: c, store: st, broadcasts: broadcasts, clock: clock, prompts: prompts}
}

func (env *testEnv) registerRoom(t *testing.T, id string, gameType models.GameType, hostID string) {
	t.Helper()
	require.NoError(t, env.coordinator.Register(models.Room{ID: id, GameType: gameType, HostID: hostID}))
}

func (env *testEnv) join(t *testing.T, roomID string, conn Conn) models.RoomSnapshot {
	t.Helper()
	snapshot, err := env.coordinator.Join(context.Background(), roomID, conn)
	require.NoError(t, err)
	return snapshot
}

func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("defaults to waiting", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")

		room, err := env.coordinator.Room("r1")
		require.NoError(t, err)
		assert.Equal(t, models.RoomStatusWaiting, room.Status)
	})

	t.Run("rejects unknown game type", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		err := env.coordinator.Register(models.Room{ID: "r1", GameType: "charades"})
		assert.True(t, apperrors.Is(err, apperrors.CodeUnknownGameType))
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
		assert.Error(t, env.coordinator.Register(models.Room{ID: "r1", GameType: models.GameTypeHotSeat}))
	})
}

func TestJoin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown room", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		_, err := env.coordinator.Join(ctx, "nope", Conn{ConnectionID: "c1"})
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	})

	t.Run("snapshot includes the joiner", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")

		snapshot := env.join(t, "r1", Conn{ConnectionID: "c1", UserID: "alice"})
		require.Len(t, snapshot.Members, 1)
		assert.Equal(t, "alice", snapshot.Members[0].UserID)
	})

	t.Run("user_joined excludes the joiner", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")

		env.join(t, "r1", Conn{ConnectionID: "c1", UserID: "alice"})
		env.join(t, "r1", Conn{ConnectionID: "c2", UserID: "bob"})

		joins := env.broadcasts.byType(events.TypeUserJoined)
		require.Len(t, joins, 2)
		assert.Equal(t, "c2", joins[1].exclude)

		var payload events.UserJoinedPayload
		require.NoError(t, json.Unmarshal(joins[1].event.Data, &payload))
		assert.Equal(t, "bob", payload.UserID)
	})

	t.Run("rejoin is a no-op", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
		conn := Conn{ConnectionID: "c1", UserID: "alice"}

		env.join(t, "r1", conn)
		snapshot := env.join(t, "r1", conn)

		assert.Len(t, snapshot.Members, 1)
		assert.Len(t, env.broadcasts.byType(events.TypeUserJoined), 1)
	})

	t.Run("membership mirrored into store", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
		env.join(t, "r1", Conn{ConnectionID: "c1", UserID: "alice"})

		ok, err := env.store.SIsMember(ctx, game.MembersKey("r1"), "alice")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("concurrent joins all land", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")

		const n = 32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				env.join(t, "r1", Conn{
					ConnectionID: fmt.Sprintf("c%d", i),
					UserID:       fmt.Sprintf("u%d", i),
				})
			}(i)
		}
		wg.Wait()

		count, err := env.coordinator.MemberCount("r1")
		require.NoError(t, err)
		assert.Equal(t, n, count)
	})
}

func TestLeave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("removes membership and notifies", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
		env.join(t, "r1", Conn{ConnectionID: "c1", UserID: "alice"})
		env.join(t, "r1", Conn{ConnectionID: "c2", UserID: "bob"})

		require.NoError(t, env.coordinator.Leave(ctx, "r1", Conn{ConnectionID: "c1", UserID: "alice"}))

		count, err := env.coordinator.MemberCount("r1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Len(t, env.broadcasts.byType(events.TypeUserLeft), 1)

		ok, err := env.store.SIsMember(ctx, game.MembersKey("r1"), "alice")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("leave when not joined is a no-op", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")

		require.NoError(t, env.coordinator.Leave(ctx, "r1", Conn{ConnectionID: "ghost"}))
		assert.Empty(t, env.broadcasts.byType(events.TypeUserLeft))
	})

	t.Run("mirror survives while another connection remains", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
		env.join(t, "r1", Conn{ConnectionID: "c1", UserID: "alice"})
		env.join(t, "r1", Conn{ConnectionID: "c2", UserID: "alice"})

		require.NoError(t, env.coordinator.Leave(ctx, "r1", Conn{ConnectionID: "c1", UserID: "alice"}))

		ok, err := env.store.SIsMember(ctx, game.MembersKey("r1"), "alice")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestHandleGameAction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires membership", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")

		_, err := env.coordinator.HandleGameAction(ctx, "r1", Conn{ConnectionID: "ghost"}, "set_hot_seat", nil)
		assert.True(t, apperrors.Is(err, apperrors.CodeNotInRoom))
	})

	t.Run("dispatches and broadcasts game_update", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
		conn := Conn{ConnectionID: "c1", UserID: "alice"}
		env.join(t, "r1", conn)

		data := json.RawMessage(`{"player_id":"alice"}`)
		result, err := env.coordinator.HandleGameAction(ctx, "r1", conn, "set_hot_seat", data)
		require.NoError(t, err)
		assert.Equal(t, game.SetHotSeatResult{PlayerID: "alice"}, result)

		updates := env.broadcasts.byType(events.TypeGameUpdate)
		require.Len(t, updates, 1)
		assert.Empty(t, updates[0].exclude, "game_update goes to the actor too")

		var payload events.GameUpdatePayload
		require.NoError(t, json.Unmarshal(updates[0].event.Data, &payload))
		assert.Equal(t, "set_hot_seat", payload.Action)
		assert.Equal(t, "alice", payload.UserID)
	})

	t.Run("failed action does not broadcast", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
		conn := Conn{ConnectionID: "c1", UserID: "alice"}
		env.join(t, "r1", conn)

		_, err := env.coordinator.HandleGameAction(ctx, "r1", conn, "set_hot_seat", json.RawMessage(`{}`))
		assert.True(t, apperrors.Is(err, apperrors.CodeMissingData))
		assert.Empty(t, env.broadcasts.byType(events.TypeGameUpdate))
	})

	t.Run("appends audit entry", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
		conn := Conn{ConnectionID: "c1", UserID: "alice"}
		env.join(t, "r1", conn)

		_, err := env.coordinator.HandleGameAction(ctx, "r1", conn, "set_hot_seat", json.RawMessage(`{"player_id":"alice"}`))
		require.NoError(t, err)

		entries, err := env.store.Range(ctx, game.ActionsKey("r1"), 0, -1)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(entries[0]), &entry))
		assert.Equal(t, "set_hot_seat", entry["type"])
		assert.Equal(t, "alice", entry["user_id"])
	})

	t.Run("rejected after close", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
		conn := Conn{ConnectionID: "c1", UserID: "alice"}
		env.join(t, "r1", conn)
		require.NoError(t, env.coordinator.CloseRoom(ctx, "r1", "host ended"))

		_, err := env.coordinator.HandleGameAction(ctx, "r1", conn, "set_hot_seat", json.RawMessage(`{"player_id":"alice"}`))
		assert.True(t, apperrors.Is(err, apperrors.CodeRoomClosed))
	})
}

func TestHandleStroke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("relays to others and records", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeDrawGuess, "")
		drawer := Conn{ConnectionID: "c1", UserID: "alice"}
		env.join(t, "r1", drawer)

		stroke := json.RawMessage(`{"points":[[0,0],[5,5]],"color":"#000"}`)
		require.NoError(t, env.coordinator.HandleStroke(ctx, "r1", drawer, stroke))

		strokes := env.broadcasts.byType(events.TypeStrokeUpdate)
		require.Len(t, strokes, 1)
		assert.Equal(t, "c1", strokes[0].exclude, "the drawer must not echo its own stroke")

		recorded, err := env.store.Range(ctx, game.StrokesKey("r1"), 0, -1)
		require.NoError(t, err)
		assert.Len(t, recorded, 1)
	})

	t.Run("requires membership", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.registerRoom(t, "r1", models.GameTypeDrawGuess, "")

		err := env.coordinator.HandleStroke(ctx, "r1", Conn{ConnectionID: "ghost"}, json.RawMessage(`{}`))
		assert.True(t, apperrors.Is(err, apperrors.CodeNotInRoom))
	})
}

func TestCloseRoom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.registerRoom(t, "r1", models.GameTypeHotSeat, "")
	env.join(t, "r1", Conn{ConnectionID: "c1", UserID: "alice"})

	require.NoError(t, env.coordinator.CloseRoom(ctx, "r1", "host ended"))
	require.NoError(t, env.coordinator.CloseRoom(ctx, "r1", "again"), "closing twice is a no-op")

	assert.Len(t, env.broadcasts.byType(events.TypeSessionEnded), 1)

	_, err := env.coordinator.Join(ctx, "r1", Conn{ConnectionID: "c2", UserID: "bob"})
	assert.True(t, apperrors.Is(err, apperrors.CodeRoomClosed))

	room, err := env.coordinator.Room("r1")
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusClosed, room.Status)
}
