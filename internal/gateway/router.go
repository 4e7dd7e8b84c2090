package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/partygames/gamesnight/internal/apperrors"
)

// Inbound events accepted from clients.
const (
	eventJoinRoom      = "join_room"
	eventLeaveRoom     = "leave_room"
	eventGameAction    = "game_action"
	eventStartTimer    = "start_timer"
	eventDrawingStroke = "drawing_stroke"
)

// ClientMessage is the inbound wire envelope.
type ClientMessage struct {
	Event     string          `json:"event"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// AckMessage is the structured result returned to the originating
// connection for every inbound event. Errors never tear the connection
// down; they ride back on this envelope.
type AckMessage struct {
	Type      string          `json:"type"` // always "ack"
	Event     string          `json:"event"`
	RequestID string          `json:"request_id,omitempty"`
	Success   bool            `json:"success"`
	Error     *ErrorPayload   `json:"error,omitempty"`
	Result    any             `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload is the structured error surfaced to a client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type joinRoomRequest struct {
	RoomID string `json:"room_id"`
}

type joinRoomResult struct {
	RoomID  string `json:"room_id"`
	Members int    `json:"members"`
}

type leaveRoomRequest struct {
	RoomID string `json:"room_id"`
}

type gameActionRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type startTimerRequest struct {
	Duration int `json:"duration"`
}

type drawingStrokeRequest struct {
	Stroke json.RawMessage `json:"stroke"`
}

// route dispatches one inbound frame and acks the sender. Any broadcast
// the event triggers is issued before the ack-producing call returns.
func (cm *ConnectionManager) route(conn *Connection, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		cm.ack(conn, ClientMessage{}, nil, apperrors.New(apperrors.CodeMissingData, "malformed message: %v", err))
		return
	}

	ctx := context.Background()
	result, err := cm.dispatch(ctx, conn, msg)
	cm.ack(conn, msg, result, err)
}

func (cm *ConnectionManager) dispatch(ctx context.Context, conn *Connection, msg ClientMessage) (any, error) {
	switch msg.Event {
	case eventJoinRoom:
		return cm.handleJoinRoom(ctx, conn, msg.Data)
	case eventLeaveRoom:
		return cm.handleLeaveRoom(ctx, conn, msg.Data)
	case eventGameAction:
		return cm.handleGameAction(ctx, conn, msg.Data)
	case eventStartTimer:
		return cm.handleStartTimer(ctx, conn, msg.Data)
	case eventDrawingStroke:
		return cm.handleDrawingStroke(ctx, conn, msg.Data)
	default:
		return nil, apperrors.New(apperrors.CodeUnknownEvent, "unknown event %q", msg.Event)
	}
}

func (cm *ConnectionManager) handleJoinRoom(ctx context.Context, conn *Connection, data json.RawMessage) (any, error) {
	var req joinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		return nil, apperrors.MissingData("room_id")
	}

	// At most one room per connection: leave the previous room first.
	if prev := conn.currentRoom(); prev != "" && prev != req.RoomID {
		cm.leaveRoomPool(conn, prev)
		conn.setRoom("")
		if err := cm.coordinator.Leave(ctx, prev, conn.asRoomConn()); err != nil {
			log.Warn().Err(err).
				Str("connection_id", conn.ID).
				Str("room_id", prev).
				Msg("implicit leave before rejoin failed")
		}
	}

	// Membership is recorded before the fan-out pool is joined so a
	// refused joiner never receives room broadcasts, not even briefly.
	// Pooling still happens before the ack is written, so an admitted
	// joiner cannot observe the ack and then miss a broadcast.
	snapshot, err := cm.coordinator.Join(ctx, req.RoomID, conn.asRoomConn())
	if err != nil {
		return nil, err
	}
	cm.joinRoomPool(conn, req.RoomID)
	conn.setRoom(req.RoomID)

	return joinRoomResult{RoomID: req.RoomID, Members: len(snapshot.Members)}, nil
}

func (cm *ConnectionManager) handleLeaveRoom(ctx context.Context, conn *Connection, data json.RawMessage) (any, error) {
	var req leaveRoomRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		return nil, apperrors.MissingData("room_id")
	}

	cm.leaveRoomPool(conn, req.RoomID)
	if conn.currentRoom() == req.RoomID {
		conn.setRoom("")
	}
	if err := cm.coordinator.Leave(ctx, req.RoomID, conn.asRoomConn()); err != nil {
		return nil, err
	}
	return nil, nil
}

func (cm *ConnectionManager) handleGameAction(ctx context.Context, conn *Connection, data json.RawMessage) (any, error) {
	roomID := conn.currentRoom()
	if roomID == "" {
		return nil, apperrors.New(apperrors.CodeNotInRoom, "join a room first")
	}

	var req gameActionRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
		return nil, apperrors.MissingData("type")
	}

	return cm.coordinator.HandleGameAction(ctx, roomID, conn.asRoomConn(), req.Type, req.Data)
}

func (cm *ConnectionManager) handleStartTimer(ctx context.Context, conn *Connection, data json.RawMessage) (any, error) {
	roomID := conn.currentRoom()
	if roomID == "" {
		return nil, apperrors.New(apperrors.CodeNotInRoom, "join a room first")
	}

	var req startTimerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperrors.MissingData("duration")
	}

	return cm.coordinator.StartTimer(ctx, roomID, conn.asRoomConn(), req.Duration)
}

func (cm *ConnectionManager) handleDrawingStroke(ctx context.Context, conn *Connection, data json.RawMessage) (any, error) {
	roomID := conn.currentRoom()
	if roomID == "" {
		return nil, apperrors.New(apperrors.CodeNotInRoom, "join a room first")
	}

	var req drawingStrokeRequest
	if err := json.Unmarshal(data, &req); err != nil || len(req.Stroke) == 0 {
		return nil, apperrors.MissingData("stroke")
	}

	return nil, cm.coordinator.HandleStroke(ctx, roomID, conn.asRoomConn(), req.Stroke)
}

// ack writes the structured result back to the originating connection.
func (cm *ConnectionManager) ack(conn *Connection, msg ClientMessage, result any, err error) {
	ack := AckMessage{
		Type:      "ack",
		Event:     msg.Event,
		RequestID: msg.RequestID,
		Success:   err == nil,
		Result:    result,
		Timestamp: time.Now(),
	}
	if err != nil {
		code := apperrors.CodeOf(err)
		if code == "" {
			// Store or collaborator failure: transient, reported to the
			// caller, no automatic retry.
			code = apperrors.CodeStoreUnavailable
			log.Error().Err(err).
				Str("connection_id", conn.ID).
				Str("event", msg.Event).
				Msg("event handling failed")
		}
		ack.Error = &ErrorPayload{Code: string(code), Message: err.Error()}
	}

	data, marshalErr := json.Marshal(ack)
	if marshalErr != nil {
		log.Error().Err(marshalErr).Msg("failed to marshal ack")
		return
	}
	if !conn.send(data) {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("failed to deliver ack, buffer full or closed")
	}
}
