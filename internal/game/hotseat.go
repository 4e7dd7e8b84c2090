package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/partygames/gamesnight/internal/apperrors"
)

const (
	actionSetHotSeat     = "set_hot_seat"
	actionSubmitQuestion = "submit_question"
)

func (d *Dispatcher) handleHotSeat(ctx context.Context, roomID, action string, data json.RawMessage) (any, error) {
	switch action {
	case actionSetHotSeat:
		var req SetHotSeatRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return d.setHotSeat(ctx, roomID, req)
	case actionSubmitQuestion:
		var req SubmitQuestionRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return d.submitQuestion(ctx, roomID, req)
	default:
		return nil, apperrors.UnknownAction(action)
	}
}

// setHotSeat overwrites the current hot-seat participant scalar.
func (d *Dispatcher) setHotSeat(ctx context.Context, roomID string, req SetHotSeatRequest) (SetHotSeatResult, error) {
	if req.PlayerID == "" {
		return SetHotSeatResult{}, apperrors.MissingData("player_id")
	}

	if err := d.store.HSet(ctx, RoomKey(roomID), FieldHotSeatPlayer, req.PlayerID); err != nil {
		return SetHotSeatResult{}, d.storeErr("set hot seat player", err)
	}
	return SetHotSeatResult{PlayerID: req.PlayerID}, nil
}

// submitQuestion appends "{user}:{question}" to the room's question list.
func (d *Dispatcher) submitQuestion(ctx context.Context, roomID string, req SubmitQuestionRequest) (struct{}, error) {
	if req.UserID == "" {
		return struct{}{}, apperrors.MissingData("user_id")
	}
	if req.Question == "" {
		return struct{}{}, apperrors.MissingData("question")
	}

	key := HotSeatQuestionsKey(roomID)
	entry := fmt.Sprintf("%s:%s", req.UserID, req.Question)
	if err := d.store.PushFront(ctx, key, entry); err != nil {
		return struct{}{}, d.storeErr("store question", err)
	}
	if err := d.store.Expire(ctx, key, HotSeatQuestionTTL); err != nil {
		return struct{}{}, d.storeErr("expire questions", err)
	}
	return struct{}{}, nil
}
