package visitor

import (
	"context"
	"slices"
	"sync"

	"viola-joke/internal/models"
)

// MemoryStore is the in-process Store used when Redis is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	visitors map[string]*models.Visitor
	usage    map[string]map[string]int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		visitors: make(map[string]*models.Visitor),
		usage:    make(map[string]map[string]int),
	}
}

func (s *MemoryStore) Create(_ context.Context, v *models.Visitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *v
	cp.Favorites = slices.Clone(v.Favorites)
	s.visitors[v.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Visitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visitors[id]
	if !ok {
		return nil, models.ErrVisitorNotFound
	}
	cp := *v
	cp.Favorites = slices.Clone(v.Favorites)
	if cp.Favorites == nil {
		cp.Favorites = []string{}
	}
	return &cp, nil
}

func (s *MemoryStore) SetPremium(_ context.Context, id string, premium bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visitors[id]
	if !ok {
		return models.ErrVisitorNotFound
	}
	v.Premium = premium
	return nil
}

func (s *MemoryStore) AddFavorite(_ context.Context, id, jokeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visitors[id]
	if !ok {
		return models.ErrVisitorNotFound
	}
	if !slices.Contains(v.Favorites, jokeID) {
		v.Favorites = append(v.Favorites, jokeID)
	}
	return nil
}

func (s *MemoryStore) RemoveFavorite(_ context.Context, id, jokeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visitors[id]
	if !ok {
		return models.ErrVisitorNotFound
	}
	v.Favorites = slices.DeleteFunc(v.Favorites, func(f string) bool { return f == jokeID })
	return nil
}

// IncrementUsage keeps only the current day's counter per visitor.
func (s *MemoryStore) IncrementUsage(_ context.Context, id, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visitors[id]; !ok {
		return 0, models.ErrVisitorNotFound
	}
	days, ok := s.usage[id]
	if !ok || days[day] == 0 {
		days = map[string]int{}
		s.usage[id] = days
	}
	days[day]++
	return days[day], nil
}

func (s *MemoryStore) Usage(_ context.Context, id, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.usage[id][day], nil
}
