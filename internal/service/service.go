// Package service exposes the joke site's operations to its transports: the
// HTTP API, the moderation bot and the jokectl command.
package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"viola-joke/internal/feed"
	"viola-joke/internal/models"
	"viola-joke/internal/moderation"
	"viola-joke/internal/ratelimit"
	"viola-joke/internal/slug"
	"viola-joke/internal/store"
	"viola-joke/internal/submission"
	"viola-joke/internal/visitor"
	"viola-joke/pkg/logger"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	MinSearchLength = 2

	adLabel = "Advertisement"
)

// Notifier is told about every accepted submission so moderators can act on it.
type Notifier interface {
	NotifySubmission(ctx context.Context, joke models.Joke) error
}

type Service struct {
	store    store.Store
	limiter  *ratelimit.Limiter
	gate     *moderation.Gate
	visitors visitor.Store
	paywall  *visitor.Paywall
	notifier Notifier

	baseURL     string
	adsEnabled  bool
	adPositions []string
	now         func() time.Time
}

type Option func(*Service)

func WithVisitors(vs visitor.Store, freeDailyJokes int) Option {
	return func(s *Service) {
		s.visitors = vs
		s.paywall = visitor.NewPaywall(vs, freeDailyJokes, s.now)
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithBaseURL(url string) Option {
	return func(s *Service) {
		s.baseURL = url
	}
}

func WithAds(enabled bool, positions []string) Option {
	return func(s *Service) {
		s.adsEnabled = enabled
		s.adPositions = positions
	}
}

// WithClock must precede WithVisitors for the paywall to share it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(st store.Store, limiter *ratelimit.Limiter, gate *moderation.Gate, opts ...Option) *Service {
	s := &Service{
		store:   st,
		limiter: limiter,
		gate:    gate,
		baseURL: "https://violajoke.com",
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.visitors == nil {
		s.visitors = visitor.NewMemoryStore()
		s.paywall = visitor.NewPaywall(s.visitors, visitor.DefaultFreeDailyJokes, s.now)
	}

	return s
}

// SubmitResult is an accepted submission and the caller's remaining quota.
type SubmitResult struct {
	Joke      models.Joke
	Remaining int
}

// Submit rate-limits by clientKey, validates the raw payload and stores the
// joke unapproved.
func (s *Service) Submit(ctx context.Context, payload any, clientKey string) (*SubmitResult, error) {
	if !s.limiter.Allow(clientKey) {
		logger.Warn("Submission rate limited", logger.String("client", clientKey))
		return nil, ErrRateLimited
	}

	sub, err := submission.Parse(payload)
	if err != nil {
		if errors.Is(err, submission.ErrSpam) {
			logger.Warn("Honeypot tripped", logger.String("client", clientKey))
		}
		return nil, &ValidationError{Reason: submission.PublicReason(err), Err: err}
	}

	joke, err := s.store.Append(ctx, models.Joke{
		Content: sub.Content,
		Author:  sub.Author,
		Tags:    sub.Tags,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Joke submitted",
		logger.String("id", joke.ID),
		logger.Strings("tags", joke.Tags),
	)

	s.notify(ctx, *joke)

	return &SubmitResult{Joke: *joke, Remaining: s.limiter.Remaining(clientKey)}, nil
}

func (s *Service) notify(ctx context.Context, joke models.Joke) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifySubmission(ctx, joke); err != nil {
		logger.Warn("Failed to notify moderators",
			logger.String("id", joke.ID),
			logger.Err(err),
		)
	}
}

// Quota is a metered visitor's remaining allowance after a random joke.
type Quota struct {
	Remaining int
	Premium   bool
}

// Random returns an approved joke. With a visitor id the daily free allowance
// is charged; an empty id is not metered.
func (s *Service) Random(ctx context.Context, visitorID string) (*models.Joke, *Quota, error) {
	var v *models.Visitor
	if visitorID != "" {
		var err error
		if v, err = s.visitors.Get(ctx, visitorID); err != nil {
			return nil, nil, notFound(err)
		}
	}

	joke, err := s.store.Random(ctx)
	if err != nil {
		return nil, nil, notFound(err)
	}

	if v == nil {
		return joke, nil, nil
	}

	remaining, err := s.paywall.Consume(ctx, v)
	if errors.Is(err, visitor.ErrQuotaExceeded) {
		return nil, &Quota{Remaining: 0}, ErrPaywall
	}
	if err != nil {
		return nil, nil, err
	}

	return joke, &Quota{Remaining: remaining, Premium: v.Premium}, nil
}

type Page struct {
	Jokes      []models.Joke `json:"jokes"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}

// List pages through approved jokes. Out-of-range page sizes fall back to
// the defaults; a page past the end is empty but still reports the total.
func (s *Service) List(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	jokes, total, err := s.store.List(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	return &Page{
		Jokes:      jokes,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// Search matches approved jokes by case-insensitive substring. Queries shorter
// than MinSearchLength characters match nothing.
func (s *Service) Search(ctx context.Context, query string) ([]models.Joke, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinSearchLength {
		return []models.Joke{}, nil
	}
	return s.store.Search(ctx, query)
}

func (s *Service) ByTag(ctx context.Context, tag string) ([]models.Joke, error) {
	return s.store.ListByTag(ctx, tag)
}

func (s *Service) Tags(ctx context.Context) ([]string, error) {
	return s.store.AllTags(ctx)
}

// JokeBySlug resolves a public joke page. Unapproved jokes are reported as
// missing.
func (s *Service) JokeBySlug(ctx context.Context, slugText string) (*models.Joke, error) {
	id := slug.Decode(slugText)
	if id == "" {
		return nil, ErrNotFound
	}

	joke, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !joke.Approved {
		return nil, ErrNotFound
	}
	return joke, nil
}

func (s *Service) authorize(credential string) error {
	if !s.gate.Authorize(credential) {
		return ErrUnauthorized
	}
	return nil
}

// AdminLogin checks a moderator password without touching any data.
func (s *Service) AdminLogin(_ context.Context, password string) error {
	if err := s.authorize(password); err != nil {
		logger.Warn("Failed admin login")
		return err
	}
	return nil
}

func (s *Service) AdminListUnapproved(ctx context.Context, credential string) ([]models.Joke, error) {
	if err := s.authorize(credential); err != nil {
		return nil, err
	}
	return s.ListUnapproved(ctx)
}

func (s *Service) AdminApprove(ctx context.Context, credential, id string) error {
	if err := s.authorize(credential); err != nil {
		return err
	}
	return s.Approve(ctx, id)
}

func (s *Service) AdminDelete(ctx context.Context, credential, id string) error {
	if err := s.authorize(credential); err != nil {
		return err
	}
	return s.Delete(ctx, id)
}

func (s *Service) AdminSetPremium(ctx context.Context, credential, visitorID string, premium bool) error {
	if err := s.authorize(credential); err != nil {
		return err
	}
	if err := s.visitors.SetPremium(ctx, visitorID, premium); err != nil {
		return notFound(err)
	}
	logger.Info("Visitor premium changed",
		logger.String("visitor", visitorID),
		logger.Bool("premium", premium),
	)
	return nil
}

var errMissingJokeID = &ValidationError{Reason: "Joke ID is required"}

// ListUnapproved, Approve and Delete do no authorization of their own. The
// bot and jokectl check their callers before reaching them.
func (s *Service) ListUnapproved(ctx context.Context) ([]models.Joke, error) {
	return s.store.ListUnapproved(ctx)
}

// Approve is a no-op for unknown ids.
func (s *Service) Approve(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errMissingJokeID
	}
	if err := s.store.Approve(ctx, id); err != nil {
		return err
	}
	logger.Info("Joke approved", logger.String("id", id))
	return nil
}

// Delete is a no-op for unknown ids.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errMissingJokeID
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("Joke deleted", logger.String("id", id))
	return nil
}

type Stats struct {
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Tags     int `json:"tags"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	approved, err := s.store.ListApproved(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.ListUnapproved(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.store.AllTags(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Approved: len(approved), Pending: len(pending), Tags: len(tags)}, nil
}

// Candidate is a joke found by the importer.
type Candidate struct {
	Content string
	Author  string
	Tags    []string
	Source  models.JokeSource
}

// Ingest stores an imported joke for moderation. It reports false without
// error when the exact content is already stored.
func (s *Service) Ingest(ctx context.Context, c Candidate) (*models.Joke, bool, error) {
	content := strings.TrimSpace(c.Content)
	if err := submission.CheckLength(content); err != nil {
		return nil, false, &ValidationError{Reason: submission.PublicReason(err), Err: err}
	}

	exists, err := s.store.ContainsContent(ctx, content)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, nil
	}

	joke, err := s.store.Append(ctx, models.Joke{
		Content: content,
		Author:  strings.TrimSpace(c.Author),
		Tags:    submission.NormalizeTags(c.Tags),
	})
	if err != nil {
		return nil, false, err
	}

	logger.Debug("Joke imported",
		logger.String("id", joke.ID),
		logger.String("source", string(c.Source)),
	)
	return joke, true, nil
}

// VisitorProfile is a visitor together with today's allowance.
type VisitorProfile struct {
	models.Visitor
	Remaining int `json:"remaining"`
}

func (s *Service) CreateVisitor(ctx context.Context) (*VisitorProfile, error) {
	v := &models.Visitor{
		ID:        uuid.NewString(),
		Favorites: []string{},
		CreatedAt: s.now().UTC(),
	}
	if err := s.visitors.Create(ctx, v); err != nil {
		return nil, err
	}
	return s.profile(ctx, v)
}

func (s *Service) Visitor(ctx context.Context, id string) (*VisitorProfile, error) {
	v, err := s.visitors.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return s.profile(ctx, v)
}

func (s *Service) profile(ctx context.Context, v *models.Visitor) (*VisitorProfile, error) {
	remaining, err := s.paywall.Remaining(ctx, v)
	if err != nil {
		return nil, err
	}
	return &VisitorProfile{Visitor: *v, Remaining: remaining}, nil
}

// AddFavorite only accepts approved jokes.
func (s *Service) AddFavorite(ctx context.Context, visitorID, jokeID string) error {
	joke, err := s.store.Get(ctx, jokeID)
	if err != nil {
		return notFound(err)
	}
	if !joke.Approved {
		return ErrNotFound
	}
	return notFound(s.visitors.AddFavorite(ctx, visitorID, jokeID))
}

func (s *Service) RemoveFavorite(ctx context.Context, visitorID, jokeID string) error {
	return notFound(s.visitors.RemoveFavorite(ctx, visitorID, jokeID))
}

// Favorites lists a visitor's favorites that still exist and are approved.
func (s *Service) Favorites(ctx context.Context, visitorID string) ([]models.Joke, error) {
	v, err := s.visitors.Get(ctx, visitorID)
	if err != nil {
		return nil, notFound(err)
	}

	jokes := make([]models.Joke, 0, len(v.Favorites))
	for _, id := range v.Favorites {
		joke, err := s.store.Get(ctx, id)
		if errors.Is(err, models.ErrJokeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if joke.Approved {
			jokes = append(jokes, *joke)
		}
	}
	return jokes, nil
}

func (s *Service) Feed(ctx context.Context) ([]byte, error) {
	jokes, err := s.store.ListApproved(ctx)
	if err != nil {
		return nil, err
	}
	return feed.RSS(s.baseURL, jokes, s.now())
}

func (s *Service) Sitemap(ctx context.Context) ([]byte, error) {
	jokes, err := s.store.ListApproved(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.store.AllTags(ctx)
	if err != nil {
		return nil, err
	}
	return feed.Sitemap(s.baseURL, jokes, tags, s.now())
}

type AdSlot struct {
	Position string `json:"position"`
	Label    string `json:"label"`
}

// Ads returns the placeholder slots to render, none when ads are off.
func (s *Service) Ads() []AdSlot {
	if !s.adsEnabled {
		return []AdSlot{}
	}
	slots := make([]AdSlot, 0, len(s.adPositions))
	for _, p := range s.adPositions {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		slots = append(slots, AdSlot{Position: p, Label: adLabel})
	}
	return slots
}
