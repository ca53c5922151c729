// Package visitor tracks anonymous site visitors: their premium flag,
// favorite jokes and how many free jokes they used today.
package visitor

import (
	"context"
	"errors"
	"time"

	"viola-joke/internal/models"
)

const (
	DefaultFreeDailyJokes = 10
	// UnlimitedRemaining is reported as the allowance of premium visitors.
	UnlimitedRemaining = 999
)

var ErrQuotaExceeded = errors.New("daily free joke allowance used up")

type Store interface {
	Create(ctx context.Context, v *models.Visitor) error
	Get(ctx context.Context, id string) (*models.Visitor, error)
	SetPremium(ctx context.Context, id string, premium bool) error
	AddFavorite(ctx context.Context, id, jokeID string) error
	RemoveFavorite(ctx context.Context, id, jokeID string) error
	// IncrementUsage bumps the visitor's counter for day and returns the new value.
	IncrementUsage(ctx context.Context, id, day string) (int, error)
	Usage(ctx context.Context, id, day string) (int, error)
}

// Paywall meters random jokes for free visitors.
type Paywall struct {
	store     Store
	freeDaily int
	now       func() time.Time
}

func NewPaywall(store Store, freeDaily int, now func() time.Time) *Paywall {
	if freeDaily <= 0 {
		freeDaily = DefaultFreeDailyJokes
	}
	if now == nil {
		now = time.Now
	}
	return &Paywall{store: store, freeDaily: freeDaily, now: now}
}

// Day returns the UTC calendar day the allowance is counted against.
func (p *Paywall) Day() string {
	return p.now().UTC().Format(time.DateOnly)
}

// Remaining reports the visitor's allowance left today.
func (p *Paywall) Remaining(ctx context.Context, v *models.Visitor) (int, error) {
	if v.Premium {
		return UnlimitedRemaining, nil
	}
	used, err := p.store.Usage(ctx, v.ID, p.Day())
	if err != nil {
		return 0, err
	}
	return max(0, p.freeDaily-used), nil
}

// Consume charges one joke to the visitor. The counter is incremented before
// the check so concurrent requests cannot both take the last free joke.
func (p *Paywall) Consume(ctx context.Context, v *models.Visitor) (int, error) {
	if v.Premium {
		return UnlimitedRemaining, nil
	}
	used, err := p.store.IncrementUsage(ctx, v.ID, p.Day())
	if err != nil {
		return 0, err
	}
	if used > p.freeDaily {
		return 0, ErrQuotaExceeded
	}
	return p.freeDaily - used, nil
}
