package game

import "time"

// Ephemeral state TTLs. Rounds that outlive a window silently lose that
// round's data; callers accept the staleness rather than failing.
const (
	VoteTTL            = 5 * time.Minute
	AnswerTTL          = 5 * time.Minute
	TruthOrDareTTL     = time.Hour
	HotSeatQuestionTTL = 10 * time.Minute
)

// VoteRequest records a would-you-rather choice.
type VoteRequest struct {
	UserID   string `json:"user_id"`
	Choice   string `json:"choice"` // "a" or "b"
	PromptID string `json:"prompt_id"`
}

// VoteCounts aggregates live, non-expired votes for a prompt.
type VoteCounts struct {
	A int `json:"a"`
	B int `json:"b"`
}

// VoteResult is returned after a vote is recorded.
type VoteResult struct {
	VoteCounts VoteCounts `json:"vote_counts"`
	TotalVotes int        `json:"total_votes"`
}

// CompleteRequest records a truth-or-dare outcome for a user and prompt.
type CompleteRequest struct {
	UserID   string `json:"user_id"`
	PromptID string `json:"prompt_id"`
	Result   string `json:"result"` // "completed" or "skipped"
}

// CompleteResult echoes the recorded outcome.
type CompleteResult struct {
	Result string `json:"result"`
}

// SelectPlayerRequest sets the current truth-or-dare player and type.
type SelectPlayerRequest struct {
	PlayerID string `json:"player_id"`
	Type     string `json:"type"` // "truth" or "dare"
}

// SelectPlayerResult echoes the selection.
type SelectPlayerResult struct {
	PlayerID string `json:"player_id"`
	Type     string `json:"type"`
}

// SubmitAnswersRequest replaces the caller's answer list for a prompt.
type SubmitAnswersRequest struct {
	UserID   string   `json:"user_id"`
	PromptID string   `json:"prompt_id"`
	Answers  []string `json:"answers"`
}

// SubmitAnswersResult reports how many answers were stored.
type SubmitAnswersResult struct {
	AnswerCount int `json:"answer_count"`
}

// CalculateScoresRequest scores the supplied participants for a prompt.
type CalculateScoresRequest struct {
	PromptID string   `json:"prompt_id"`
	UserIDs  []string `json:"user_ids"`
}

// ScoresResult holds per-participant scores and the distinct answer count
// across all supplied participants. A participant's score is the size of
// the case-folded set of their own answers.
type ScoresResult struct {
	Scores      map[string]int `json:"scores"`
	TotalUnique int            `json:"total_unique"`
}

// SetHotSeatRequest puts a participant in the hot seat.
type SetHotSeatRequest struct {
	PlayerID string `json:"player_id"`
}

// SetHotSeatResult echoes the hot-seat participant.
type SetHotSeatResult struct {
	PlayerID string `json:"player_id"`
}

// SubmitQuestionRequest appends a question for the hot-seat participant.
type SubmitQuestionRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

// SetDrawerRequest assigns the drawer and the secret word.
type SetDrawerRequest struct {
	DrawerID string `json:"drawer_id"`
	Word     string `json:"word"`
}

// SetDrawerResult echoes the drawer assignment without the word.
type SetDrawerResult struct {
	DrawerID string `json:"drawer_id"`
}

// SubmitGuessRequest checks a guess against the current word.
type SubmitGuessRequest struct {
	UserID string `json:"user_id"`
	Guess  string `json:"guess"`
}

// GuessResult reports whether the guess matched; WinnerID is set only on
// a correct guess.
type GuessResult struct {
	Correct  bool   `json:"correct"`
	WinnerID string `json:"winner_id,omitempty"`
}
