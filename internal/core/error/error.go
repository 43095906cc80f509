package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// SessionShapeMessage describes a prompt/history shape mismatch on a duty session.
	SessionShapeMessage = "session shape mismatch"
	// SessionNotReadyMessage describes an execution attempt on an uninitialized session.
	SessionNotReadyMessage = "session not initialized"
)

// ErrSessionShape signals that a chat history was supplied to a completion
// session or vice versa. This is a programmer error and is never absorbed.
var ErrSessionShape = errors.New(SessionShapeMessage)

// ErrSessionNotReady signals that a duty session was used before initialization.
var ErrSessionNotReady = errors.New(SessionNotReadyMessage)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapRedis maps Redis errors to the unified AppError type with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapContract marks a programmer error (wrong session shape, lifecycle misuse)
// that must surface to the immediate caller instead of degrading.
func WrapContract(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusUnprocessableEntity, err.Error())
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
