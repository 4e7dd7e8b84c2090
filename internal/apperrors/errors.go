// Package apperrors defines the coded error taxonomy shared by the room
// coordinator, game dispatcher, and connection gateway. Errors carry a
// stable machine-readable code so the gateway can surface them to the
// originating connection as structured results without tearing the
// connection down.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeForbidden          Code = "forbidden"
	CodeMissingData        Code = "missing_data"
	CodeUnknownAction      Code = "unknown_action"
	CodeUnknownGameType    Code = "unknown_game_type"
	CodeUnknownEvent       Code = "unknown_event"
	CodeNoPromptsAvailable Code = "no_prompts_available"
	CodeNoActiveDrawing    Code = "no_active_drawing"
	CodeNotInRoom          Code = "not_in_room"
	CodeRoomClosed         Code = "room_closed"
	CodeStoreUnavailable   Code = "store_unavailable"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing room or participant.
func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

// Forbidden reports an action that requires a role the caller lacks.
func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, format, args...)
}

// MissingData reports a required field absent from an action payload.
func MissingData(field string) *Error {
	return New(CodeMissingData, "missing required field %q", field)
}

// UnknownAction reports an unrecognized action name for a game type.
func UnknownAction(action string) *Error {
	return New(CodeUnknownAction, "unknown action %q", action)
}

// UnknownGameType reports an unrecognized game type tag.
func UnknownGameType(gameType string) *Error {
	return New(CodeUnknownGameType, "unknown game type %q", gameType)
}

// CodeOf extracts the code from err, or empty if err is not a coded error.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
