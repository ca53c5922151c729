package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"viola-joke/internal/config"
	"viola-joke/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to database at %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &ConnectionError{
			Host: cfg.Host,
			Port: cfg.Port,
			Err:  err,
		}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &ConnectionError{
			Host: cfg.Host,
			Port: cfg.Port,
			Err:  err,
		}
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

const jokeColumns = `id, content, tags, author, approved, created_at`

// JokeRepository stores jokes in Postgres. Insertion order is the seq column.
type JokeRepository struct {
	db    *DB
	newID func() string
	now   func() time.Time
}

func NewJokeRepository(db *DB) *JokeRepository {
	return &JokeRepository{
		db:    db,
		newID: models.NewJokeID,
		now:   time.Now,
	}
}

func (r *JokeRepository) Close() {
	r.db.Close()
}

func (r *JokeRepository) Get(ctx context.Context, id string) (*models.Joke, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+jokeColumns+` FROM jokes WHERE id = $1`, id)
	joke, err := scanJoke(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrJokeNotFound
		}
		return nil, err
	}
	return joke, nil
}

func (r *JokeRepository) Random(ctx context.Context) (*models.Joke, error) {
	query := `
		SELECT ` + jokeColumns + `
		FROM jokes
		WHERE approved
		ORDER BY RANDOM()
		LIMIT 1
	`
	joke, err := scanJoke(r.db.Pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNoJokes
		}
		return nil, err
	}
	return joke, nil
}

func (r *JokeRepository) List(ctx context.Context, page, pageSize int) ([]models.Joke, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM jokes WHERE approved`).Scan(&total); err != nil {
		return nil, 0, err
	}

	if page < 1 || pageSize < 1 {
		return []models.Joke{}, total, nil
	}

	query := `
		SELECT ` + jokeColumns + `
		FROM jokes
		WHERE approved
		ORDER BY seq
		LIMIT $1 OFFSET $2
	`
	jokes, err := r.query(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	return jokes, total, nil
}

func (r *JokeRepository) ListApproved(ctx context.Context) ([]models.Joke, error) {
	return r.query(ctx, `SELECT `+jokeColumns+` FROM jokes WHERE approved ORDER BY seq`)
}

func (r *JokeRepository) ListByTag(ctx context.Context, tag string) ([]models.Joke, error) {
	query := `
		SELECT ` + jokeColumns + `
		FROM jokes
		WHERE approved AND lower($1) = ANY(tags)
		ORDER BY seq
	`
	return r.query(ctx, query, tag)
}

func (r *JokeRepository) Search(ctx context.Context, q string) ([]models.Joke, error) {
	query := `
		SELECT ` + jokeColumns + `
		FROM jokes
		WHERE approved AND strpos(lower(content), lower($1)) > 0
		ORDER BY seq
	`
	return r.query(ctx, query, q)
}

func (r *JokeRepository) ListUnapproved(ctx context.Context) ([]models.Joke, error) {
	return r.query(ctx, `SELECT `+jokeColumns+` FROM jokes WHERE NOT approved ORDER BY seq`)
}

func (r *JokeRepository) AllTags(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT tag
		FROM jokes, unnest(tags) AS tag
		WHERE approved
		ORDER BY tag
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	tags, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

func (r *JokeRepository) Append(ctx context.Context, joke models.Joke) (*models.Joke, error) {
	created := joke.Clone()
	created.ID = r.newID()
	created.Approved = false
	if created.Tags == nil {
		created.Tags = []string{}
	}
	if created.CreatedAt == nil {
		ts := r.now().UTC()
		created.CreatedAt = &ts
	}

	query := `
		INSERT INTO jokes (id, content, tags, author, approved, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`
	if _, err := r.db.Pool.Exec(ctx, query,
		created.ID, created.Content, created.Tags, created.Author, created.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert joke: %w", err)
	}
	return &created, nil
}

func (r *JokeRepository) Approve(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE jokes SET approved = TRUE WHERE id = $1 AND NOT approved`, id)
	return err
}

func (r *JokeRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM jokes WHERE id = $1`, id)
	return err
}

func (r *JokeRepository) ContainsContent(ctx context.Context, content string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM jokes WHERE content = $1)", content).Scan(&exists)
	return exists, err
}

func (r *JokeRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM jokes").Scan(&count)
	return count, err
}

func (r *JokeRepository) query(ctx context.Context, query string, args ...any) ([]models.Joke, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jokes := []models.Joke{}
	for rows.Next() {
		joke, err := scanJoke(rows)
		if err != nil {
			return nil, err
		}
		jokes = append(jokes, *joke)
	}
	return jokes, rows.Err()
}

func scanJoke(row pgx.Row) (*models.Joke, error) {
	var joke models.Joke
	if err := row.Scan(
		&joke.ID, &joke.Content, &joke.Tags,
		&joke.Author, &joke.Approved, &joke.CreatedAt,
	); err != nil {
		return nil, err
	}
	if joke.Tags == nil {
		joke.Tags = []string{}
	}
	return &joke, nil
}
