package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/partygames/gamesnight/internal/apperrors"
)

const (
	actionComplete     = "complete"
	actionSelectPlayer = "select_player"
)

func (d *Dispatcher) handleTruthOrDare(ctx context.Context, roomID, action string, data json.RawMessage) (any, error) {
	switch action {
	case actionComplete:
		var req CompleteRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return d.completePrompt(ctx, roomID, req)
	case actionSelectPlayer:
		var req SelectPlayerRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return d.selectPlayer(ctx, roomID, req)
	default:
		return nil, apperrors.UnknownAction(action)
	}
}

// completePrompt records whether the user completed or skipped a prompt.
// Outcomes live for an hour and then age out.
func (d *Dispatcher) completePrompt(ctx context.Context, roomID string, req CompleteRequest) (CompleteResult, error) {
	if req.UserID == "" {
		return CompleteResult{}, apperrors.MissingData("user_id")
	}
	if req.PromptID == "" {
		return CompleteResult{}, apperrors.MissingData("prompt_id")
	}
	if req.Result == "" {
		return CompleteResult{}, apperrors.MissingData("result")
	}

	key := TruthOrDareResultsKey(roomID)
	field := fmt.Sprintf("%s:%s", req.UserID, req.PromptID)
	if err := d.store.HSet(ctx, key, field, req.Result); err != nil {
		return CompleteResult{}, d.storeErr("record outcome", err)
	}
	if err := d.store.Expire(ctx, key, TruthOrDareTTL); err != nil {
		return CompleteResult{}, d.storeErr("expire outcomes", err)
	}
	return CompleteResult{Result: req.Result}, nil
}

// selectPlayer sets the current player and prompt type scalars. No TTL;
// the next selection overwrites them.
func (d *Dispatcher) selectPlayer(ctx context.Context, roomID string, req SelectPlayerRequest) (SelectPlayerResult, error) {
	if req.PlayerID == "" {
		return SelectPlayerResult{}, apperrors.MissingData("player_id")
	}
	if req.Type == "" {
		return SelectPlayerResult{}, apperrors.MissingData("type")
	}

	key := RoomKey(roomID)
	if err := d.store.HSet(ctx, key, FieldCurrentPlayer, req.PlayerID); err != nil {
		return SelectPlayerResult{}, d.storeErr("set current player", err)
	}
	if err := d.store.HSet(ctx, key, FieldCurrentType, req.Type); err != nil {
		return SelectPlayerResult{}, d.storeErr("set current type", err)
	}
	return SelectPlayerResult{PlayerID: req.PlayerID, Type: req.Type}, nil
}
