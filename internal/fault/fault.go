// Package fault defines the error kinds shared by every simulation component.
// Components never panic across their boundary; they return one of these
// (usually wrapped with context) and log at the kind's severity.
package fault

import (
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrNotFound is returned when a mutation targets an unknown id.
	ErrNotFound = errors.New("not found")

	// ErrOverLimit is returned when a per-faction or per-hour cap is exceeded.
	ErrOverLimit = errors.New("over limit")

	// ErrThresholdViolation is returned when a security or trust floor is not met.
	ErrThresholdViolation = errors.New("threshold violation")

	// ErrInvalidTransition is returned when a state change's preconditions are not met.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStale marks a batch that ran out of wall-clock budget.
	ErrStale = errors.New("stale")

	// ErrUnavailable marks a call to a collaborator that was never wired.
	ErrUnavailable = errors.New("collaborator unavailable")
)

// Level maps an error to the log severity for its kind.
func Level(err error) slog.Level {
	switch {
	case err == nil:
		return slog.LevelDebug
	case errors.Is(err, ErrOverLimit),
		errors.Is(err, ErrThresholdViolation),
		errors.Is(err, ErrInvalidTransition):
		return slog.LevelWarn
	case errors.Is(err, ErrStale):
		return slog.LevelInfo
	case errors.Is(err, ErrNotFound):
		return slog.LevelDebug
	default:
		return slog.LevelError
	}
}

// Log writes msg at the severity matching err's kind.
func Log(msg string, err error, args ...any) {
	args = append(args, "error", err)
	slog.Log(context.Background(), Level(err), msg, args...)
}
