package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/partygames/gamesnight/internal/events"
	"github.com/partygames/gamesnight/internal/room"
)

// publishTimeout bounds one external publish attempt.
const publishTimeout = 5 * time.Second

// ConnectionManager owns all live WebSocket connections and the
// connection->room bookkeeping, and fans room events out to members.
type ConnectionManager struct {
	coordinator *room.Coordinator
	publisher   EventPublisher

	// Connection pools organized by room id, plus a flat index.
	// publishStopped gates the publish buffer during shutdown.
	mu              sync.RWMutex
	roomConnections map[string]map[*Connection]bool
	connections     map[string]*Connection
	publishStopped  bool

	publishCh   chan events.Event
	publishDone chan struct{}

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection represents one WebSocket connection to a client.
type Connection struct {
	ID     string
	UserID string // empty for guests
	Guest  bool
	Conn   *websocket.Conn
	Send   chan []byte

	manager *ConnectionManager

	// roomID is the room this connection is joined to, empty if none.
	// Guarded by mu; a connection belongs to at most one room. closed
	// guards Send against enqueue-after-close.
	mu     sync.Mutex
	roomID string
	closed bool

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	MaxMessageSize    int64
	ReadBufferSize    int
	WriteBufferSize   int
	SendBufferSize    int
	PublishBufferSize int
	CheckOrigin       func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    64 * 1024, // strokes can be chunky
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBufferSize:    256,
		PublishBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, coordinator *room.Coordinator, publisher EventPublisher) *ConnectionManager {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if config.PublishBufferSize <= 0 {
		config.PublishBufferSize = DefaultConnectionConfig().PublishBufferSize
	}
	cm := &ConnectionManager{
		coordinator:     coordinator,
		publisher:       publisher,
		roomConnections: make(map[string]map[*Connection]bool),
		connections:     make(map[string]*Connection),
		publishCh:       make(chan events.Event, config.PublishBufferSize),
		publishDone:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
	go cm.publishPump()
	return cm
}

// publishPump drains the publish buffer. External publishing is
// best-effort and runs off the broadcast path so a slow or unreachable
// broker never blocks room mutation.
func (cm *ConnectionManager) publishPump() {
	defer close(cm.publishDone)
	for event := range cm.publishCh {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := cm.publisher.Publish(ctx, event)
		cancel()
		if err != nil {
			log.Warn().Err(err).
				Str("room_id", event.RoomID).
				Str("event_type", string(event.Type)).
				Msg("publish event failed")
		}
	}
}

// StopPublishing closes the publish buffer and waits for in-flight
// publishes to finish. Idempotent.
func (cm *ConnectionManager) StopPublishing() {
	cm.mu.Lock()
	already := cm.publishStopped
	cm.publishStopped = true
	cm.mu.Unlock()
	if already {
		return
	}
	close(cm.publishCh)
	<-cm.publishDone
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts
// its pumps. userID is empty for guest connections.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Guest:       userID == "",
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.mu.Lock()
	cm.connections[connection.ID] = connection
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Bool("guest", connection.Guest).
		Msg("WebSocket connection established")
	return connection, nil
}

// joinRoomPool adds a connection to a room's fan-out pool.
func (cm *ConnectionManager) joinRoomPool(conn *Connection, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[roomID] == nil {
		cm.roomConnections[roomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[roomID][conn] = true
}

// leaveRoomPool removes a connection from a room's fan-out pool.
func (cm *ConnectionManager) leaveRoomPool(conn *Connection, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if pool, exists := cm.roomConnections[roomID]; exists {
		delete(pool, conn)
		if len(pool) == 0 {
			delete(cm.roomConnections, roomID)
		}
	}
}

// Close tears a connection down: implicit leave for any joined room,
// bookkeeping removal, socket close. Idempotent.
func (cm *ConnectionManager) Close(conn *Connection) {
	cm.mu.Lock()
	_, live := cm.connections[conn.ID]
	delete(cm.connections, conn.ID)
	cm.mu.Unlock()
	if !live {
		return
	}

	// Membership must be updated before any further room mutation is
	// accepted, so the leave happens synchronously here.
	if roomID := conn.currentRoom(); roomID != "" {
		cm.leaveRoomPool(conn, roomID)
		conn.setRoom("")
		if err := cm.coordinator.Leave(context.Background(), roomID, conn.asRoomConn()); err != nil {
			log.Warn().Err(err).
				Str("connection_id", conn.ID).
				Str("room_id", roomID).
				Msg("implicit leave failed")
		}
	}

	conn.mu.Lock()
	conn.closed = true
	close(conn.Send)
	conn.mu.Unlock()
	conn.Conn.Close()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Msg("connection closed")
}

var _ room.Broadcaster = (*ConnectionManager)(nil)

// Broadcast fans an event out to every connection joined to the room,
// excluding excludeConnID when non-empty. The event is enqueued into each
// member's FIFO send buffer before returning, which preserves per-room
// causal order; actual socket writes are asynchronous. Slow consumers
// whose buffers are full are disconnected rather than blocking the room.
func (cm *ConnectionManager) Broadcast(roomID string, event events.Event, excludeConnID string) {
	cm.mu.RLock()
	pool := cm.roomConnections[roomID]
	targets := make([]*Connection, 0, len(pool))
	for conn := range pool {
		if excludeConnID != "" && conn.ID == excludeConnID {
			continue
		}
		targets = append(targets, conn)
	}
	if !cm.publishStopped {
		// Hand the event to the publish pump without blocking; callers
		// hold the room lock and must not wait on the broker.
		select {
		case cm.publishCh <- event:
		default:
			log.Warn().
				Str("room_id", roomID).
				Str("event_type", string(event.Type)).
				Msg("publish buffer full, dropping event")
		}
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if !conn.send(data) {
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Msg("connection send buffer full, closing connection")
			go cm.Close(conn)
		}
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("room_id", roomID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// Stats describes the live connection population.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetStats returns statistics about active connections.
func (cm *ConnectionManager) GetStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{
		TotalConnections: len(cm.connections),
		ActiveRooms:      len(cm.roomConnections),
		RoomConnections:  make(map[string]int, len(cm.roomConnections)),
	}
	for roomID, pool := range cm.roomConnections {
		stats.RoomConnections[roomID] = len(pool)
	}
	return stats
}

func (c *Connection) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Connection) setRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
}

func (c *Connection) asRoomConn() room.Conn {
	return room.Conn{
		ConnectionID: c.ID,
		UserID:       c.UserID,
		Guest:        c.Guest,
	}
}

// send enqueues an outbound frame. Returns false when the connection is
// closed or its buffer is full.
func (c *Connection) send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.manager.Close(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection and
// routes each inbound event.
func (c *Connection) readPump() {
	defer c.manager.Close(c)

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.manager.route(c, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
