package store

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"viola-joke/internal/models"
	"viola-joke/pkg/logger"
)

// FileStore keeps every joke in one JSON array file. All operations hold a
// single mutex, so a load/mutate/save cycle can never interleave with another.
type FileStore struct {
	path  string
	newID func() string
	now   func() time.Time

	mu        sync.Mutex
	cache     []models.Joke
	loaded    bool
	cacheMod  time.Time
	cacheSize int64
}

var _ Store = (*FileStore)(nil)

type FileOption func(*FileStore)

func WithIDGenerator(fn func() string) FileOption {
	return func(s *FileStore) {
		s.newID = fn
	}
}

func WithNow(fn func() time.Time) FileOption {
	return func(s *FileStore) {
		s.now = fn
	}
}

func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Op: "init", Path: path, Err: err}
	}

	s := &FileStore{
		path:  path,
		newID: models.NewJokeID,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *FileStore) Close() {}

func (s *FileStore) Get(_ context.Context, id string) (*models.Joke, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jokes, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, j := range jokes {
		if j.ID == id {
			out := j.Clone()
			return &out, nil
		}
	}
	return nil, models.ErrJokeNotFound
}

func (s *FileStore) Random(_ context.Context) (*models.Joke, error) {
	approved, err := s.filter(func(j models.Joke) bool { return j.Approved })
	if err != nil {
		return nil, err
	}
	if len(approved) == 0 {
		return nil, models.ErrNoJokes
	}

	j := approved[rand.IntN(len(approved))]
	return &j, nil
}

func (s *FileStore) List(_ context.Context, page, pageSize int) ([]models.Joke, int, error) {
	approved, err := s.filter(func(j models.Joke) bool { return j.Approved })
	if err != nil {
		return nil, 0, err
	}

	start, end, ok := PageBounds(page, pageSize, len(approved))
	if !ok {
		return []models.Joke{}, len(approved), nil
	}
	return approved[start:end], len(approved), nil
}

func (s *FileStore) ListApproved(_ context.Context) ([]models.Joke, error) {
	return s.filter(func(j models.Joke) bool { return j.Approved })
}

func (s *FileStore) ListByTag(_ context.Context, tag string) ([]models.Joke, error) {
	return s.filter(func(j models.Joke) bool { return j.Approved && j.HasTag(tag) })
}

func (s *FileStore) Search(_ context.Context, query string) ([]models.Joke, error) {
	needle := strings.ToLower(query)
	return s.filter(func(j models.Joke) bool {
		return j.Approved && strings.Contains(strings.ToLower(j.Content), needle)
	})
}

func (s *FileStore) ListUnapproved(_ context.Context) ([]models.Joke, error) {
	return s.filter(func(j models.Joke) bool { return !j.Approved })
}

func (s *FileStore) AllTags(_ context.Context) ([]string, error) {
	approved, err := s.filter(func(j models.Joke) bool { return j.Approved })
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	tags := []string{}
	for _, j := range approved {
		for _, t := range j.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	slices.Sort(tags)
	return tags, nil
}

func (s *FileStore) ContainsContent(_ context.Context, content string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jokes, err := s.load()
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(jokes, func(j models.Joke) bool { return j.Content == content }), nil
}

func (s *FileStore) Append(_ context.Context, joke models.Joke) (*models.Joke, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jokes, err := s.load()
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{}, len(jokes))
	for _, j := range jokes {
		ids[j.ID] = struct{}{}
	}

	created := joke.Clone()
	created.ID = s.newID()
	for {
		if _, taken := ids[created.ID]; !taken {
			break
		}
		created.ID = s.newID()
	}
	created.Approved = false
	if created.Tags == nil {
		created.Tags = []string{}
	}
	if created.CreatedAt == nil {
		ts := s.now().UTC()
		created.CreatedAt = &ts
	}

	next := append(slices.Clone(jokes), created)
	if err := s.save(next); err != nil {
		return nil, err
	}

	out := created.Clone()
	return &out, nil
}

func (s *FileStore) Approve(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jokes, err := s.load()
	if err != nil {
		return err
	}

	i := slices.IndexFunc(jokes, func(j models.Joke) bool { return j.ID == id })
	if i < 0 || jokes[i].Approved {
		return nil
	}

	next := slices.Clone(jokes)
	next[i].Approved = true
	return s.save(next)
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jokes, err := s.load()
	if err != nil {
		return err
	}

	if !slices.ContainsFunc(jokes, func(j models.Joke) bool { return j.ID == id }) {
		return nil
	}

	next := slices.DeleteFunc(slices.Clone(jokes), func(j models.Joke) bool { return j.ID == id })
	return s.save(next)
}

func (s *FileStore) filter(keep func(models.Joke) bool) ([]models.Joke, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jokes, err := s.load()
	if err != nil {
		return nil, err
	}

	out := []models.Joke{}
	for _, j := range jokes {
		if keep(j) {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

// load returns the cached collection, re-reading the file when it changed on
// disk since the last load. Callers must hold s.mu.
func (s *FileStore) load() ([]models.Joke, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if !s.loaded {
			s.cache = []models.Joke{}
			s.loaded = true
		}
		return s.cache, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "stat", Path: s.path, Err: err}
	}

	if s.loaded && info.ModTime().Equal(s.cacheMod) && info.Size() == s.cacheSize {
		return s.cache, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: s.path, Err: err}
	}

	jokes := []models.Joke{}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &jokes); err != nil {
			return nil, &StorageError{Op: "decode", Path: s.path, Err: err}
		}
	}

	if s.loaded {
		logger.Debug("Joke file changed on disk, reloaded", logger.String("path", s.path), logger.Int("jokes", len(jokes)))
	}

	s.cache = jokes
	s.loaded = true
	s.cacheMod = info.ModTime()
	s.cacheSize = info.Size()
	return s.cache, nil
}

// save overwrites the file atomically and swaps the cache only once the new
// file is in place. Callers must hold s.mu.
func (s *FileStore) save(jokes []models.Joke) error {
	data, err := json.MarshalIndent(jokes, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	writeErr := func() error {
		if _, err := tmp.Write(data); err != nil {
			return err
		}
		if err := tmp.Sync(); err != nil {
			return err
		}
		return tmp.Close()
	}()
	if writeErr != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StorageError{Op: "write", Path: s.path, Err: writeErr}
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &StorageError{Op: "rename", Path: s.path, Err: err}
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return &StorageError{Op: "stat", Path: s.path, Err: err}
	}

	s.cache = jokes
	s.loaded = true
	s.cacheMod = info.ModTime()
	s.cacheSize = info.Size()
	return nil
}
