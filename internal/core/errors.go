package core

import "errors"

// Rejection codes carried on error frames.
const (
	ErrCodeEmptyContent     = "empty_content"
	ErrCodeNotParticipant   = "not_participant"
	ErrCodeChatNotFound     = "chat_not_found"
	ErrCodePersistenceError = "persistence_error"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
)

var (
	ErrEmptyContent   = errors.New("empty content")
	ErrNotParticipant = errors.New("not a chat participant")
	ErrChatNotFound   = errors.New("chat not found")
	ErrBadRequest     = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
