package store

import (
	"context"
	"fmt"

	"viola-joke/internal/models"
)

// Store is the durable joke collection. Public read paths only ever see
// approved jokes; Get and ListUnapproved are the exceptions.
type Store interface {
	Get(ctx context.Context, id string) (*models.Joke, error)
	Random(ctx context.Context) (*models.Joke, error)
	List(ctx context.Context, page, pageSize int) ([]models.Joke, int, error)
	ListApproved(ctx context.Context) ([]models.Joke, error)
	ListByTag(ctx context.Context, tag string) ([]models.Joke, error)
	Search(ctx context.Context, query string) ([]models.Joke, error)
	Append(ctx context.Context, joke models.Joke) (*models.Joke, error)
	AllTags(ctx context.Context) ([]string, error)
	ListUnapproved(ctx context.Context) ([]models.Joke, error)
	Approve(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ContainsContent(ctx context.Context, content string) (bool, error)
	Close()
}

// StorageError reports a failed read or write of the backing file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("joke store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PageBounds returns the [start, end) slice bounds of a 1-indexed page over
// total items. ok is false when the page lies outside the collection.
func PageBounds(page, pageSize, total int) (start, end int, ok bool) {
	if page < 1 || pageSize < 1 {
		return 0, 0, false
	}
	start = (page - 1) * pageSize
	if start >= total || start < 0 {
		return 0, 0, false
	}
	end = min(start+pageSize, total)
	return start, end, true
}
