package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partygames/gamesnight/internal/events"
	"github.com/partygames/gamesnight/internal/game"
	"github.com/partygames/gamesnight/internal/identity"
	"github.com/partygames/gamesnight/internal/models"
	"github.com/partygames/gamesnight/internal/room"
	"github.com/partygames/gamesnight/internal/store"
)

const readTimeout = 2 * time.Second

type noPrompts struct{}

func (noPrompts) FetchPromptIDs(context.Context, models.GameType, []int, int) ([]string, error) {
	return []string{"p1"}, nil
}

func (noPrompts) FetchPromptPayload(_ context.Context, _ models.GameType, id string) (room.PromptPayload, error) {
	return room.PromptPayload{ID: id}, nil
}

// frame is the union of outbound shapes: acks carry type "ack", room
// events carry their event type.
type frame struct {
	Type      string          `json:"type"`
	Event     string          `json:"event,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Success   bool            `json:"success"`
	Error     *ErrorPayload   `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func startTestServer(t *testing.T, gameType models.GameType) (*httptest.Server, *room.Coordinator) {
	t.Helper()
	srv, coordinator, _ := startTestServerWith(t, gameType, DefaultConfig(), NoopPublisher{})
	return srv, coordinator
}

func startTestServerWith(t *testing.T, gameType models.GameType, config Config, publisher EventPublisher) (*httptest.Server, *room.Coordinator, *Service) {
	t.Helper()
	st := store.NewMemoryStore()
	coordinator := room.NewCoordinator(st, game.NewDispatcher(st), noPrompts{})
	require.NoError(t, coordinator.Register(models.Room{ID: "room-1", GameType: gameType}))

	resolver := identity.StaticResolver{
		"tok-alice": "alice",
		"tok-bob":   "bob",
	}
	service := NewService(config, coordinator, resolver, publisher)
	t.Cleanup(func() { service.Stop() })

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, coordinator, service
}

func wsDial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		wsURL += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "dial failed")
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// expectFrame drains frames until one matches the target type.
func expectFrame(t *testing.T, conn *websocket.Conn, target string) frame {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for {
		require.False(t, time.Now().After(deadline), "timed out waiting for %s", target)
		require.NoError(t, conn.SetReadDeadline(deadline))

		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "read failed while waiting for %s", target)

		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == target {
			return f
		}
	}
}

func expectAck(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for {
		require.False(t, time.Now().After(deadline), "timed out waiting for %s ack", event)
		require.NoError(t, conn.SetReadDeadline(deadline))

		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "read failed while waiting for %s ack", event)

		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == "ack" && f.Event == event {
			return f
		}
	}
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()
	send(t, conn, ClientMessage{Event: "join_room", Data: json.RawMessage(`{"room_id":"` + roomID + `"}`)})
	ack := expectAck(t, conn, "join_room")
	require.True(t, ack.Success, "join failed: %+v", ack.Error)
}

func TestJoinAndMemberEvents(t *testing.T) {
	srv, _ := startTestServer(t, models.GameTypeHotSeat)

	alice := wsDial(t, srv, "tok-alice")
	joinRoom(t, alice, "room-1")

	bob := wsDial(t, srv, "tok-bob")
	joinRoom(t, bob, "room-1")

	// Alice sees bob join; bob does not see his own join event.
	joined := expectFrame(t, alice, "user_joined")
	var payload struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(joined.Data, &payload))
	assert.Equal(t, "bob", payload.UserID)
}

func TestGuestsAdmittedInvalidTokenRefused(t *testing.T) {
	srv, _ := startTestServer(t, models.GameTypeHotSeat)

	// No token at all: guest connection succeeds.
	guest := wsDial(t, srv, "")
	joinRoom(t, guest, "room-1")

	// Invalid token: refused before the upgrade.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGameActionFlow(t *testing.T) {
	srv, _ := startTestServer(t, models.GameTypeHotSeat)

	alice := wsDial(t, srv, "tok-alice")
	joinRoom(t, alice, "room-1")
	bob := wsDial(t, srv, "tok-bob")
	joinRoom(t, bob, "room-1")
	expectFrame(t, alice, "user_joined")

	send(t, alice, ClientMessage{
		Event:     "game_action",
		RequestID: "req-1",
		Data:      json.RawMessage(`{"type":"set_hot_seat","data":{"player_id":"bob"}}`),
	})

	// Both members receive the game_update, actor included. For the actor
	// the broadcast is enqueued before the ack, so read it first.
	for _, conn := range []*websocket.Conn{alice, bob} {
		update := expectFrame(t, conn, "game_update")
		var payload struct {
			Action string `json:"type"`
			UserID string `json:"user_id"`
		}
		require.NoError(t, json.Unmarshal(update.Data, &payload))
		assert.Equal(t, "set_hot_seat", payload.Action)
		assert.Equal(t, "alice", payload.UserID)
	}

	ack := expectAck(t, alice, "game_action")
	require.True(t, ack.Success, "action failed: %+v", ack.Error)
	assert.Equal(t, "req-1", ack.RequestID)

	// Question submission rides the same path.
	send(t, bob, ClientMessage{
		Event: "game_action",
		Data:  json.RawMessage(`{"type":"submit_question","data":{"user_id":"bob","question":"Favorite food?"}}`),
	})
	expectFrame(t, bob, "game_update")
	ack = expectAck(t, bob, "game_action")
	require.True(t, ack.Success, "action failed: %+v", ack.Error)
	expectFrame(t, alice, "game_update")
}

func TestGameActionRequiresRoom(t *testing.T) {
	srv, _ := startTestServer(t, models.GameTypeHotSeat)

	alice := wsDial(t, srv, "tok-alice")
	send(t, alice, ClientMessage{
		Event: "game_action",
		Data:  json.RawMessage(`{"type":"set_hot_seat","data":{"player_id":"bob"}}`),
	})

	ack := expectAck(t, alice, "game_action")
	require.False(t, ack.Success)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "not_in_room", ack.Error.Code)
}

func TestUnknownEvent(t *testing.T) {
	srv, _ := startTestServer(t, models.GameTypeHotSeat)

	alice := wsDial(t, srv, "tok-alice")
	send(t, alice, ClientMessage{Event: "teleport", RequestID: "req-9"})

	ack := expectAck(t, alice, "teleport")
	require.False(t, ack.Success)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "unknown_event", ack.Error.Code)
	assert.Equal(t, "req-9", ack.RequestID)
}

func TestStrokeRelayedToOthersOnly(t *testing.T) {
	srv, _ := startTestServer(t, models.GameTypeDrawGuess)

	alice := wsDial(t, srv, "tok-alice")
	joinRoom(t, alice, "room-1")
	bob := wsDial(t, srv, "tok-bob")
	joinRoom(t, bob, "room-1")
	expectFrame(t, alice, "user_joined")

	send(t, alice, ClientMessage{
		Event: "drawing_stroke",
		Data:  json.RawMessage(`{"stroke":{"points":[[0,0],[10,10]],"color":"#f00"}}`),
	})
	ack := expectAck(t, alice, "drawing_stroke")
	require.True(t, ack.Success, "stroke failed: %+v", ack.Error)

	// Bob receives the relay.
	update := expectFrame(t, bob, "stroke_update")
	var payload struct {
		UserID string          `json:"user_id"`
		Stroke json.RawMessage `json:"stroke"`
	}
	require.NoError(t, json.Unmarshal(update.Data, &payload))
	assert.Equal(t, "alice", payload.UserID)

	// Alice must not get her own stroke echoed back: the next frame she
	// reads from a timer_sync probe is the ack, not a stroke_update.
	send(t, alice, ClientMessage{Event: "start_timer", Data: json.RawMessage(`{"duration":30}`)})
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := alice.ReadMessage()
	require.NoError(t, err)
	var next frame
	require.NoError(t, json.Unmarshal(data, &next))
	assert.NotEqual(t, "stroke_update", next.Type)
}

func TestTimerSyncBroadcast(t *testing.T) {
	srv, _ := startTestServer(t, models.GameTypeSixtySeconds)

	alice := wsDial(t, srv, "tok-alice")
	joinRoom(t, alice, "room-1")
	bob := wsDial(t, srv, "tok-bob")
	joinRoom(t, bob, "room-1")
	expectFrame(t, alice, "user_joined")

	before := time.Now().UnixMilli()
	send(t, alice, ClientMessage{Event: "start_timer", Data: json.RawMessage(`{"duration":60}`)})

	for _, conn := range []*websocket.Conn{alice, bob} {
		sync := expectFrame(t, conn, "timer_sync")
		var payload struct {
			StartEpochMS    int64 `json:"start_epoch_ms"`
			DurationSeconds int   `json:"duration_seconds"`
		}
		require.NoError(t, json.Unmarshal(sync.Data, &payload))
		assert.Equal(t, 60, payload.DurationSeconds)
		assert.GreaterOrEqual(t, payload.StartEpochMS, before)
	}

	ack := expectAck(t, alice, "start_timer")
	require.True(t, ack.Success, "timer failed: %+v", ack.Error)
}

func TestLeaveRoom(t *testing.T) {
	srv, coordinator := startTestServer(t, models.GameTypeHotSeat)

	alice := wsDial(t, srv, "tok-alice")
	joinRoom(t, alice, "room-1")
	bob := wsDial(t, srv, "tok-bob")
	joinRoom(t, bob, "room-1")
	expectFrame(t, alice, "user_joined")

	send(t, bob, ClientMessage{Event: "leave_room", Data: json.RawMessage(`{"room_id":"room-1"}`)})
	ack := expectAck(t, bob, "leave_room")
	require.True(t, ack.Success)

	left := expectFrame(t, alice, "user_left")
	var payload struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(left.Data, &payload))
	assert.Equal(t, "bob", payload.UserID)

	require.Eventually(t, func() bool {
		count, err := coordinator.MemberCount("room-1")
		return err == nil && count == 1
	}, readTimeout, 10*time.Millisecond)
}

func TestDisconnectImpliesLeave(t *testing.T) {
	srv, coordinator := startTestServer(t, models.GameTypeHotSeat)

	alice := wsDial(t, srv, "tok-alice")
	joinRoom(t, alice, "room-1")
	bob := wsDial(t, srv, "tok-bob")
	joinRoom(t, bob, "room-1")
	expectFrame(t, alice, "user_joined")

	require.NoError(t, bob.Close())

	left := expectFrame(t, alice, "user_left")
	var payload struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(left.Data, &payload))
	assert.Equal(t, "bob", payload.UserID)

	require.Eventually(t, func() bool {
		count, err := coordinator.MemberCount("room-1")
		return err == nil && count == 1
	}, readTimeout, 10*time.Millisecond)
}

// slowPublisher stands in for an unresponsive broker: every publish
// blocks for delay before the event lands on published.
type slowPublisher struct {
	delay     time.Duration
	published chan events.Event
}

func (p *slowPublisher) Publish(_ context.Context, event events.Event) error {
	time.Sleep(p.delay)
	p.published <- event
	return nil
}

func (p *slowPublisher) Close() error { return nil }

func TestSlowPublisherDoesNotStallRoom(t *testing.T) {
	pub := &slowPublisher{delay: time.Second, published: make(chan events.Event, 16)}
	srv, _, _ := startTestServerWith(t, models.GameTypeHotSeat, DefaultConfig(), pub)

	alice := wsDial(t, srv, "tok-alice")
	joinRoom(t, alice, "room-1")

	// Joins mutate the room under its lock; a broker taking a full second
	// per publish must not be felt there.
	bob := wsDial(t, srv, "tok-bob")
	start := time.Now()
	joinRoom(t, bob, "room-1")
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// The events still reach the broker, just off the hot path.
	select {
	case event := <-pub.published:
		assert.Equal(t, "room-1", event.RoomID)
	case <-time.After(3 * time.Second):
		t.Fatal("event never reached the publisher")
	}
}

func TestRefusedJoinReceivesNoBroadcasts(t *testing.T) {
	srv, coordinator, service := startTestServerWith(t, models.GameTypeHotSeat, DefaultConfig(), NoopPublisher{})

	require.NoError(t, coordinator.Register(models.Room{ID: "room-2", GameType: models.GameTypeHotSeat}))
	require.NoError(t, coordinator.CloseRoom(context.Background(), "room-2", "game over"))

	bob := wsDial(t, srv, "tok-bob")
	send(t, bob, ClientMessage{Event: "join_room", Data: json.RawMessage(`{"room_id":"room-2"}`)})
	ack := expectAck(t, bob, "join_room")
	require.False(t, ack.Success)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "room_closed", ack.Error.Code)

	// A refused joiner never enters the fan-out pool, so subsequent room
	// broadcasts cannot reach it.
	event, err := events.New("room-2", events.TypeGameUpdate, time.Now(), events.GameUpdatePayload{Action: "noop"})
	require.NoError(t, err)
	service.ConnectionManager().Broadcast("room-2", event, "")

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, readErr := bob.ReadMessage()
	var netErr net.Error
	require.ErrorAs(t, readErr, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestKeepalivePingsDoNotDisturbTraffic(t *testing.T) {
	config := DefaultConfig()
	config.ConnectionConfig.PingInterval = 15 * time.Millisecond
	srv, _, _ := startTestServerWith(t, models.GameTypeHotSeat, config, NoopPublisher{})

	alice := wsDial(t, srv, "tok-alice")
	joinRoom(t, alice, "room-1")

	// Interleave actions with server pings across many ping intervals;
	// the client's default ping handler answers with pongs while reading.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		send(t, alice, ClientMessage{
			Event: "game_action",
			Data:  json.RawMessage(`{"type":"submit_question","data":{"user_id":"alice","question":"Still here?"}}`),
		})
		expectFrame(t, alice, "game_update")
		ack := expectAck(t, alice, "game_action")
		require.True(t, ack.Success, "action failed: %+v", ack.Error)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := startTestServer(t, models.GameTypeHotSeat)

	alice := wsDial(t, srv, "tok-alice")
	joinRoom(t, alice, "room-1")

	resp, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveRooms)
}
