package game

import (
	"context"
	"encoding/json"

	"github.com/partygames/gamesnight/internal/apperrors"
)

const (
	actionVote = "vote"
)

func (d *Dispatcher) handleWouldYouRather(ctx context.Context, roomID, action string, data json.RawMessage) (any, error) {
	switch action {
	case actionVote:
		var req VoteRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return d.vote(ctx, roomID, req)
	default:
		return nil, apperrors.UnknownAction(action)
	}
}

// vote records the caller's choice keyed by (room, prompt, user) and
// returns aggregate counts over the currently non-expired votes. A later
// vote from the same user overwrites the earlier one.
func (d *Dispatcher) vote(ctx context.Context, roomID string, req VoteRequest) (VoteResult, error) {
	if req.UserID == "" {
		return VoteResult{}, apperrors.MissingData("user_id")
	}
	if req.PromptID == "" {
		return VoteResult{}, apperrors.MissingData("prompt_id")
	}
	if req.Choice != "a" && req.Choice != "b" {
		return VoteResult{}, apperrors.New(apperrors.CodeMissingData, "choice must be %q or %q", "a", "b")
	}

	key := VotesKey(roomID, req.PromptID)
	if err := d.store.HSet(ctx, key, req.UserID, req.Choice); err != nil {
		return VoteResult{}, d.storeErr("record vote", err)
	}
	if err := d.store.Expire(ctx, key, VoteTTL); err != nil {
		return VoteResult{}, d.storeErr("expire votes", err)
	}

	votes, err := d.store.HGetAll(ctx, key)
	if err != nil {
		return VoteResult{}, d.storeErr("read votes", err)
	}

	result := VoteResult{TotalVotes: len(votes)}
	for _, choice := range votes {
		switch choice {
		case "a":
			result.VoteCounts.A++
		case "b":
			result.VoteCounts.B++
		}
	}
	return result, nil
}
