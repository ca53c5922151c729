package visitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"viola-joke/internal/models"
)

// usageTTL keeps a day's counter around long enough to cover every timezone
// edge of the UTC day it belongs to.
const usageTTL = 48 * time.Hour

// RedisStore keeps visitors in Redis. A profile is a hash under visitor:<id>,
// favorites a sorted set scored by the time they were added, and usage one
// expiring counter per day.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func profileKey(id string) string {
	return fmt.Sprintf("visitor:%s", id)
}

func favoritesKey(id string) string {
	return fmt.Sprintf("visitor:%s:favorites", id)
}

func usageKey(id, day string) string {
	return fmt.Sprintf("visitor:%s:usage:%s", id, day)
}

func (s *RedisStore) Create(ctx context.Context, v *models.Visitor) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, profileKey(v.ID),
		"id", v.ID,
		"premium", strconv.FormatBool(v.Premium),
		"createdAt", v.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	for i, jokeID := range v.Favorites {
		pipe.ZAddNX(ctx, favoritesKey(v.ID), &redis.Z{Score: float64(i), Member: jokeID})
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Visitor, error) {
	fields, err := s.client.HGetAll(ctx, profileKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, models.ErrVisitorNotFound
	}

	favorites, err := s.client.ZRange(ctx, favoritesKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if favorites == nil {
		favorites = []string{}
	}

	v := &models.Visitor{ID: id, Favorites: favorites}
	v.Premium, _ = strconv.ParseBool(fields["premium"])
	if ts, err := time.Parse(time.RFC3339Nano, fields["createdAt"]); err == nil {
		v.CreatedAt = ts
	}
	return v, nil
}

func (s *RedisStore) exists(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, profileKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrVisitorNotFound
	}
	return nil
}

func (s *RedisStore) SetPremium(ctx context.Context, id string, premium bool) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return s.client.HSet(ctx, profileKey(id), "premium", strconv.FormatBool(premium)).Err()
}

func (s *RedisStore) AddFavorite(ctx context.Context, id, jokeID string) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	score := float64(s.now().UnixNano())
	return s.client.ZAddNX(ctx, favoritesKey(id), &redis.Z{Score: score, Member: jokeID}).Err()
}

func (s *RedisStore) RemoveFavorite(ctx context.Context, id, jokeID string) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return s.client.ZRem(ctx, favoritesKey(id), jokeID).Err()
}

func (s *RedisStore) IncrementUsage(ctx context.Context, id, day string) (int, error) {
	if err := s.exists(ctx, id); err != nil {
		return 0, err
	}

	key := usageKey(id, day)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, usageTTL)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Usage(ctx context.Context, id, day string) (int, error) {
	n, err := s.client.Get(ctx, usageKey(id, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
