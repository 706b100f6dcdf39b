package errors

import "fmt"

// Error codes reported to clients and logs.
const (
	CodeAuthFailed       = "AUTH_FAILED"
	CodeConnectionLimit  = "CONNECTION_LIMIT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInvalidRoom      = "INVALID_ROOM"
	CodeHeartbeatTimeout = "HEARTBEAT_TIMEOUT"
	CodeBackplane        = "BACKPLANE_UNAVAILABLE"
	CodeEventHandler     = "EVENT_HANDLER_FAILED"
)

// AppError represents a gateway-specific error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Fatal reports whether the error must terminate the client connection.
func (e *AppError) Fatal() bool {
	switch e.Code {
	case CodeAuthFailed, CodeConnectionLimit, CodeHeartbeatTimeout:
		return true
	}
	return false
}

func NewAuthFailed(message string) *AppError {
	return &AppError{Code: CodeAuthFailed, Message: message}
}

func NewConnectionLimit(message string) *AppError {
	return &AppError{Code: CodeConnectionLimit, Message: message}
}

func NewRateLimited(message string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: message}
}

func NewInvalidRoom(message string) *AppError {
	return &AppError{Code: CodeInvalidRoom, Message: message}
}

func NewHeartbeatTimeout(message string) *AppError {
	return &AppError{Code: CodeHeartbeatTimeout, Message: message}
}

func NewBackplaneUnavailable(message string) *AppError {
	return &AppError{Code: CodeBackplane, Message: message}
}

func NewEventHandlerFailed(message string) *AppError {
	return &AppError{Code: CodeEventHandler, Message: message}
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}
