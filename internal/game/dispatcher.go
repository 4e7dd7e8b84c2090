// Package game implements the per-game-type action dispatcher: a small
// state machine per game over ephemeral keyed state (votes, answers,
// turn scalars) with TTL-bounded expiry and scoring rules.
//
// Handlers are side-effecting only through the store; broadcasting is the
// caller's responsibility, which keeps the dispatcher transport-agnostic.
package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/partygames/gamesnight/internal/apperrors"
	"github.com/partygames/gamesnight/internal/models"
	"github.com/partygames/gamesnight/internal/store"
)

// Dispatcher routes game actions to the handler for the room's game type.
type Dispatcher struct {
	store store.Store
}

// NewDispatcher creates a dispatcher over the given store.
func NewDispatcher(st store.Store) *Dispatcher {
	return &Dispatcher{store: st}
}

// Handle validates and applies one game action for a room. The returned
// value is the action's typed result; coded errors (MissingData,
// UnknownAction, UnknownGameType, NoActiveDrawing) are surfaced to the
// caller, never fatal to the connection.
func (d *Dispatcher) Handle(ctx context.Context, roomID string, gameType models.GameType, action string, data json.RawMessage) (any, error) {
	switch gameType {
	case models.GameTypeWouldYouRather:
		return d.handleWouldYouRather(ctx, roomID, action, data)
	case models.GameTypeTruthOrDare:
		return d.handleTruthOrDare(ctx, roomID, action, data)
	case models.GameTypeSixtySeconds:
		return d.handleSixtySeconds(ctx, roomID, action, data)
	case models.GameTypeHotSeat:
		return d.handleHotSeat(ctx, roomID, action, data)
	case models.GameTypeDrawGuess:
		return d.handleDrawGuess(ctx, roomID, action, data)
	default:
		return nil, apperrors.UnknownGameType(string(gameType))
	}
}

// decode unmarshals an action payload, mapping malformed JSON to a
// MissingData error rather than a transport failure.
func decode[T any](data json.RawMessage, dst *T) error {
	if len(data) == 0 {
		return apperrors.New(apperrors.CodeMissingData, "action payload is required")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperrors.New(apperrors.CodeMissingData, "malformed action payload: %v", err)
	}
	return nil
}

func (d *Dispatcher) storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
