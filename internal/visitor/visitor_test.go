package visitor

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"viola-joke/internal/models"
)

// runStoreTests exercises the behavior every Store implementation shares.
func runStoreTests(t *testing.T, s Store) {
	ctx := context.Background()
	id := uuid.NewString()

	if _, err := s.Get(ctx, id); !errors.Is(err, models.ErrVisitorNotFound) {
		t.Fatalf("Get() unknown visitor error = %v, want ErrVisitorNotFound", err)
	}
	if err := s.AddFavorite(ctx, id, "1"); !errors.Is(err, models.ErrVisitorNotFound) {
		t.Errorf("AddFavorite() unknown visitor error = %v, want ErrVisitorNotFound", err)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Create(ctx, &models.Visitor{ID: id, CreatedAt: created}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	v, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v.Premium || len(v.Favorites) != 0 || !v.CreatedAt.Equal(created) {
		t.Errorf("Get() = %+v, want fresh free visitor", v)
	}

	for _, jokeID := range []string{"a", "b", "a"} {
		if err := s.AddFavorite(ctx, id, jokeID); err != nil {
			t.Fatalf("AddFavorite(%s) error = %v", jokeID, err)
		}
	}
	if err := s.RemoveFavorite(ctx, id, "a"); err != nil {
		t.Fatalf("RemoveFavorite() error = %v", err)
	}
	v, _ = s.Get(ctx, id)
	if len(v.Favorites) != 1 || v.Favorites[0] != "b" {
		t.Errorf("Favorites = %v, want [b]", v.Favorites)
	}

	if err := s.SetPremium(ctx, id, true); err != nil {
		t.Fatalf("SetPremium() error = %v", err)
	}
	v, _ = s.Get(ctx, id)
	if !v.Premium {
		t.Error("SetPremium(true) not persisted")
	}

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementUsage(ctx, id, "2026-03-01")
		if err != nil || got != want {
			t.Fatalf("IncrementUsage() = %d, %v; want %d", got, err, want)
		}
	}
	if n, _ := s.Usage(ctx, id, "2026-03-02"); n != 0 {
		t.Errorf("Usage() on a new day = %d, want 0", n)
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	runStoreTests(t, NewRedisStore(client))
}

func TestPaywall(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	pw := NewPaywall(store, 3, func() time.Time { return now })

	free := &models.Visitor{ID: "free"}
	premium := &models.Visitor{ID: "premium", Premium: true}
	_ = store.Create(ctx, free)
	_ = store.Create(ctx, premium)

	for want := 2; want >= 0; want-- {
		got, err := pw.Consume(ctx, free)
		if err != nil || got != want {
			t.Fatalf("Consume() = %d, %v; want %d", got, err, want)
		}
	}
	if _, err := pw.Consume(ctx, free); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Consume() past allowance error = %v, want ErrQuotaExceeded", err)
	}
	if n, _ := pw.Remaining(ctx, free); n != 0 {
		t.Errorf("Remaining() = %d, want 0", n)
	}

	if n, err := pw.Consume(ctx, premium); err != nil || n != UnlimitedRemaining {
		t.Errorf("Consume(premium) = %d, %v; want %d", n, err, UnlimitedRemaining)
	}

	now = now.Add(2 * time.Minute)
	if n, _ := pw.Remaining(ctx, free); n != 3 {
		t.Errorf("Remaining() next day = %d, want 3", n)
	}
}

func TestPaywallConcurrentLastJoke(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pw := NewPaywall(store, 1, nil)
	v := &models.Visitor{ID: "racer"}
	_ = store.Create(ctx, v)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pw.Consume(ctx, v); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Errorf("granted = %d, want exactly 1", granted)
	}
}
