package game

import "fmt"

// Ephemeral state key layout. Every key is scoped by room id and, where a
// round is involved, by prompt id, so state never leaks across rounds.
// The room coordinator shares this layout for the keys it owns.

// RoomKey is the per-room hash holding turn state and timer scalars.
func RoomKey(roomID string) string {
	return fmt.Sprintf("room:%s", roomID)
}

// VotesKey is the per-prompt hash of user id -> choice.
func VotesKey(roomID, promptID string) string {
	return fmt.Sprintf("room:%s:votes:%s", roomID, promptID)
}

// TruthOrDareResultsKey is the per-room hash of "user:prompt" -> outcome.
func TruthOrDareResultsKey(roomID string) string {
	return fmt.Sprintf("room:%s:tod_results", roomID)
}

// AnswersKey is one participant's answer list for a prompt.
func AnswersKey(roomID, promptID, userID string) string {
	return fmt.Sprintf("room:%s:answers:%s:%s", roomID, promptID, userID)
}

// HotSeatQuestionsKey is the per-room list of "user:question" entries.
func HotSeatQuestionsKey(roomID string) string {
	return fmt.Sprintf("room:%s:hot_seat_questions", roomID)
}

// StrokesKey is the per-room drawing stroke list.
func StrokesKey(roomID string) string {
	return fmt.Sprintf("room:%s:strokes", roomID)
}

// PromptQueueKey is the per-room queue of prompt ids drawn at session start.
func PromptQueueKey(roomID string) string {
	return fmt.Sprintf("room:%s:prompts", roomID)
}

// MembersKey is the per-room set of joined user ids.
func MembersKey(roomID string) string {
	return fmt.Sprintf("room:%s:members", roomID)
}

// ActionsKey is the per-room best-effort action audit list.
func ActionsKey(roomID string) string {
	return fmt.Sprintf("room:%s:actions", roomID)
}

// Room hash field names.
const (
	FieldCurrentPlayer = "current_player"
	FieldCurrentType   = "current_type"
	FieldHotSeatPlayer = "hot_seat_player"
	FieldDrawerID      = "drawer_id"
	FieldCurrentWord   = "current_word"
	FieldRoundWinner   = "round_winner"
	FieldTimerStart    = "timer_start"
	FieldTimerDuration = "timer_duration"
)
