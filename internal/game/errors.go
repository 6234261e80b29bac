package game

import (
	"errors"
	"fmt"
	"time"
)

// Code is the machine-readable error class surfaced to clients. The pipeline
// fails closed: any coded error short-circuits before mutation.
type Code string

const (
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeAuthError           Code = "AUTH_ERROR"
	CodeThrottled           Code = "THROTTLED"
	CodePuzzleTimeout       Code = "PUZZLE_TIMEOUT"
	CodePuzzleInvalidResult Code = "PUZZLE_INVALID_RESULT"
	CodeNotFound            Code = "RESOURCE_NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeInternal            Code = "INTERNAL_ERROR"
)

type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration // set for THROTTLED
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Throttled(remaining time.Duration) *Error {
	return &Error{
		Code:       CodeThrottled,
		Message:    fmt.Sprintf("cooldown not elapsed, retry in %s", remaining.Round(time.Second)),
		RetryAfter: remaining,
	}
}

// CodeOf classifies any error; non-coded errors are internal.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}
