package game

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/partygames/gamesnight/internal/apperrors"
)

const (
	actionSubmitAnswers   = "submit_answers"
	actionCalculateScores = "calculate_scores"
)

func (d *Dispatcher) handleSixtySeconds(ctx context.Context, roomID, action string, data json.RawMessage) (any, error) {
	switch action {
	case actionSubmitAnswers:
		var req SubmitAnswersRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return d.submitAnswers(ctx, roomID, req)
	case actionCalculateScores:
		var req CalculateScoresRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return d.calculateScores(ctx, roomID, req)
	default:
		return nil, apperrors.UnknownAction(action)
	}
}

// submitAnswers replaces the caller's answer list for the prompt. The
// list expires with the round.
func (d *Dispatcher) submitAnswers(ctx context.Context, roomID string, req SubmitAnswersRequest) (SubmitAnswersResult, error) {
	if req.UserID == "" {
		return SubmitAnswersResult{}, apperrors.MissingData("user_id")
	}
	if req.PromptID == "" {
		return SubmitAnswersResult{}, apperrors.MissingData("prompt_id")
	}

	key := AnswersKey(roomID, req.PromptID, req.UserID)
	if err := d.store.Delete(ctx, key); err != nil {
		return SubmitAnswersResult{}, d.storeErr("clear answers", err)
	}
	if len(req.Answers) > 0 {
		if err := d.store.PushFront(ctx, key, req.Answers...); err != nil {
			return SubmitAnswersResult{}, d.storeErr("store answers", err)
		}
		if err := d.store.Expire(ctx, key, AnswerTTL); err != nil {
			return SubmitAnswersResult{}, d.storeErr("expire answers", err)
		}
	}
	return SubmitAnswersResult{AnswerCount: len(req.Answers)}, nil
}

// calculateScores scores the supplied participants for a prompt. Each
// participant's score is the number of case-insensitively distinct
// answers in their own list; TotalUnique is the distinct count across
// all supplied participants. Participants whose answers expired score
// zero.
func (d *Dispatcher) calculateScores(ctx context.Context, roomID string, req CalculateScoresRequest) (ScoresResult, error) {
	if req.PromptID == "" {
		return ScoresResult{}, apperrors.MissingData("prompt_id")
	}
	if len(req.UserIDs) == 0 {
		return ScoresResult{}, apperrors.MissingData("user_ids")
	}

	result := ScoresResult{Scores: make(map[string]int, len(req.UserIDs))}
	allAnswers := make(map[string]struct{})

	for _, userID := range req.UserIDs {
		answers, err := d.store.Range(ctx, AnswersKey(roomID, req.PromptID, userID), 0, -1)
		if err != nil {
			return ScoresResult{}, d.storeErr("read answers", err)
		}

		own := make(map[string]struct{}, len(answers))
		for _, answer := range answers {
			folded := strings.ToLower(answer)
			own[folded] = struct{}{}
			allAnswers[folded] = struct{}{}
		}
		result.Scores[userID] = len(own)
	}

	result.TotalUnique = len(allAnswers)
	return result, nil
}
