package game

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/partygames/gamesnight/internal/apperrors"
)

const (
	actionSetDrawer   = "set_drawer"
	actionSubmitGuess = "submit_guess"
	actionClearCanvas = "clear_canvas"
)

func (d *Dispatcher) handleDrawGuess(ctx context.Context, roomID, action string, data json.RawMessage) (any, error) {
	switch action {
	case actionSetDrawer:
		var req SetDrawerRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return d.setDrawer(ctx, roomID, req)
	case actionSubmitGuess:
		var req SubmitGuessRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return d.submitGuess(ctx, roomID, req)
	case actionClearCanvas:
		return d.clearCanvas(ctx, roomID)
	default:
		return nil, apperrors.UnknownAction(action)
	}
}

// setDrawer assigns the drawer and the secret word for the round.
func (d *Dispatcher) setDrawer(ctx context.Context, roomID string, req SetDrawerRequest) (SetDrawerResult, error) {
	if req.DrawerID == "" {
		return SetDrawerResult{}, apperrors.MissingData("drawer_id")
	}
	if req.Word == "" {
		return SetDrawerResult{}, apperrors.MissingData("word")
	}

	key := RoomKey(roomID)
	if err := d.store.HSet(ctx, key, FieldDrawerID, req.DrawerID); err != nil {
		return SetDrawerResult{}, d.storeErr("set drawer", err)
	}
	if err := d.store.HSet(ctx, key, FieldCurrentWord, req.Word); err != nil {
		return SetDrawerResult{}, d.storeErr("set word", err)
	}
	return SetDrawerResult{DrawerID: req.DrawerID}, nil
}

// normalizeGuess folds case and trims surrounding whitespace so "  Cat "
// matches "cat".
func normalizeGuess(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// submitGuess compares the normalized guess against the stored word. The
// first correct guesser is recorded as the round winner; later correct
// guesses overwrite the scalar (single-writer-last-wins).
func (d *Dispatcher) submitGuess(ctx context.Context, roomID string, req SubmitGuessRequest) (GuessResult, error) {
	if req.UserID == "" {
		return GuessResult{}, apperrors.MissingData("user_id")
	}
	if req.Guess == "" {
		return GuessResult{}, apperrors.MissingData("guess")
	}

	word, ok, err := d.store.HGet(ctx, RoomKey(roomID), FieldCurrentWord)
	if err != nil {
		return GuessResult{}, d.storeErr("read current word", err)
	}
	if !ok || word == "" {
		return GuessResult{}, apperrors.New(apperrors.CodeNoActiveDrawing, "no active drawing in room %s", roomID)
	}

	if normalizeGuess(req.Guess) != normalizeGuess(word) {
		return GuessResult{Correct: false}, nil
	}

	if err := d.store.HSet(ctx, RoomKey(roomID), FieldRoundWinner, req.UserID); err != nil {
		return GuessResult{}, d.storeErr("record winner", err)
	}
	return GuessResult{Correct: true, WinnerID: req.UserID}, nil
}

// clearCanvas deletes the room's stroke list.
func (d *Dispatcher) clearCanvas(ctx context.Context, roomID string) (struct{}, error) {
	if err := d.store.Delete(ctx, StrokesKey(roomID)); err != nil {
		return struct{}{}, d.storeErr("clear strokes", err)
	}
	return struct{}{}, nil
}
