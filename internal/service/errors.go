package service

import (
	"errors"
	"fmt"

	"viola-joke/internal/models"
)

var (
	ErrRateLimited  = errors.New("too many submissions, try again later")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrPaywall      = errors.New("daily free joke limit reached")
)

// ValidationError rejects user input. Reason is safe to show the caller.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// notFound folds the store's lookup sentinels into ErrNotFound and passes
// anything else through untouched.
func notFound(err error) error {
	switch {
	case errors.Is(err, models.ErrJokeNotFound),
		errors.Is(err, models.ErrNoJokes),
		errors.Is(err, models.ErrVisitorNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}
