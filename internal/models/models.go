package models

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrJokeNotFound    = errors.New("joke not found")
	ErrNoJokes         = errors.New("no approved jokes available")
	ErrVisitorNotFound = errors.New("visitor not found")
)

const AnonymousAuthor = "Anonymous"

type Joke struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags"`
	Author    string     `json:"author,omitempty"`
	Approved  bool       `json:"approved"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// DisplayAuthor returns the author for display, defaulting blank names to Anonymous.
func (j Joke) DisplayAuthor() string {
	if strings.TrimSpace(j.Author) == "" {
		return AnonymousAuthor
	}
	return j.Author
}

func (j Joke) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return false
	}
	for _, t := range j.Tags {
		if strings.ToLower(t) == tag {
			return true
		}
	}
	return false
}

// NewJokeID returns a fresh ULID. ULIDs never contain a hyphen, which keeps
// slug decoding unambiguous.
func NewJokeID() string {
	return ulid.Make().String()
}

func (j Joke) Clone() Joke {
	out := j
	if j.Tags != nil {
		out.Tags = slices.Clone(j.Tags)
	}
	if j.CreatedAt != nil {
		ts := *j.CreatedAt
		out.CreatedAt = &ts
	}
	return out
}

type Visitor struct {
	ID        string    `json:"id"`
	Premium   bool      `json:"premium"`
	Favorites []string  `json:"favorites"`
	CreatedAt time.Time `json:"createdAt"`
}

func (v Visitor) HasFavorite(jokeID string) bool {
	return slices.Contains(v.Favorites, jokeID)
}

type JokeSource string

const (
	SourceSubmission JokeSource = "submission"
	SourceReddit     JokeSource = "reddit"
	SourceFile       JokeSource = "file"
)
