// Package importer collects joke candidates from outside sources and hands
// them to a Sink for moderation.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"viola-joke/internal/config"
	"viola-joke/internal/models"
	"viola-joke/internal/queue"
	"viola-joke/internal/service"
	"viola-joke/internal/submission"
	"viola-joke/pkg/logger"
)

const (
	defaultRedditURL = "https://www.reddit.com"
	userAgent        = "viola-joke/1.0"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Sink receives every candidate the importer finds.
type Sink interface {
	PublishImport(ctx context.Context, msg *queue.ImportMessage) error
}

type Importer struct {
	cfg       config.ImporterConfig
	client    *http.Client
	sink      Sink
	redditURL string
}

type Option func(*Importer)

func WithHTTPClient(client *http.Client) Option {
	return func(i *Importer) {
		i.client = client
	}
}

// WithRedditURL points the importer at another Reddit host.
func WithRedditURL(url string) Option {
	return func(i *Importer) {
		i.redditURL = strings.TrimRight(url, "/")
	}
}

func New(cfg config.ImporterConfig, sink Sink, opts ...Option) *Importer {
	i := &Importer{
		cfg:       cfg,
		sink:      sink,
		redditURL: defaultRedditURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

type RedditListing struct {
	Data struct {
		Children []struct {
			Data RedditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type RedditPost struct {
	Title     string `json:"title"`
	Selftext  string `json:"selftext"`
	Author    string `json:"author"`
	Permalink string `json:"permalink"`
	Stickied  bool   `json:"stickied"`
}

// Start imports once immediately and then on every interval tick until ctx
// is cancelled. A failed run is logged and retried on the next tick.
func (i *Importer) Start(ctx context.Context) error {
	if !i.cfg.Enabled {
		return nil
	}

	logger.Info("Running initial import...")
	i.runOnce(ctx)

	ticker := time.NewTicker(i.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			i.runOnce(ctx)
		}
	}
}

func (i *Importer) runOnce(ctx context.Context) {
	n, err := i.ImportAll(ctx)
	if err != nil {
		logger.Error("Import failed", logger.Err(err))
		return
	}
	logger.Info("Import completed", logger.Int("published", n))
}

// ImportAll runs every enabled source and returns how many candidates were
// published.
func (i *Importer) ImportAll(ctx context.Context) (int, error) {
	if !i.cfg.Reddit.Enabled {
		return 0, nil
	}

	n, err := i.ImportReddit(ctx)
	if err != nil {
		return n, fmt.Errorf("reddit import failed: %w", err)
	}
	return n, nil
}

func (i *Importer) ImportReddit(ctx context.Context) (int, error) {
	published := 0

	for _, subreddit := range i.cfg.Reddit.Subreddits {
		subreddit = strings.TrimSpace(subreddit)
		if subreddit == "" {
			continue
		}

		logger.Info("Importing subreddit", logger.String("subreddit", subreddit))
		posts, err := i.fetchSubreddit(ctx, subreddit)
		if err != nil {
			return published, err
		}

		for _, post := range posts {
			msg := redditMessage(subreddit, post)
			if msg == nil {
				continue
			}
			if i.publish(ctx, msg) {
				published++
			}
		}
	}

	return published, nil
}

func (i *Importer) fetchSubreddit(ctx context.Context, subreddit string) ([]RedditPost, error) {
	url := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", i.redditURL, subreddit, i.cfg.Reddit.Limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch r/%s: %w", subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("Non-OK status from Reddit",
			logger.String("subreddit", subreddit),
			logger.Int("status", resp.StatusCode),
		)
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var listing RedditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode r/%s listing: %w", subreddit, err)
	}

	posts := make([]RedditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

// redditMessage turns a post into a candidate: the title is the setup and
// the self text, when present, the punchline. Stickied posts and anything
// outside the accepted length are skipped.
func redditMessage(subreddit string, post RedditPost) *queue.ImportMessage {
	if post.Stickied {
		return nil
	}

	content := cleanHTML(strings.TrimSpace(post.Title))
	if text := cleanHTML(strings.TrimSpace(post.Selftext)); text != "" {
		content = content + "\n\n" + text
	}
	content = strings.TrimSpace(content)

	if submission.CheckLength(content) != nil {
		return nil
	}

	msg := &queue.ImportMessage{
		Content:   content,
		Tags:      []string{"reddit", strings.ToLower(subreddit)},
		Source:    models.SourceReddit,
		SourceURL: "https://reddit.com" + post.Permalink,
		Hash:      generateHash(content),
	}
	if post.Author != "" && post.Author != "[deleted]" {
		msg.Author = "u/" + post.Author
	}
	return msg
}

type fileJoke struct {
	Content string   `json:"content"`
	Author  string   `json:"author"`
	Tags    []string `json:"tags"`
}

// ImportFile publishes every joke in a JSON array file shaped like the joke
// store's own file. Approval flags and ids in the file are ignored.
func (i *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var jokes []fileJoke
	if err := json.Unmarshal(data, &jokes); err != nil {
		return 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	published := 0
	for _, j := range jokes {
		content := strings.TrimSpace(j.Content)
		if content == "" {
			continue
		}
		msg := &queue.ImportMessage{
			Content:   content,
			Author:    j.Author,
			Tags:      j.Tags,
			Source:    models.SourceFile,
			SourceURL: "file://" + path,
			Hash:      generateHash(content),
		}
		if i.publish(ctx, msg) {
			published++
		}
	}

	logger.Info("File import completed",
		logger.String("path", path),
		logger.Int("published", published),
	)
	return published, nil
}

func (i *Importer) publish(ctx context.Context, msg *queue.ImportMessage) bool {
	if err := i.sink.PublishImport(ctx, msg); err != nil {
		logger.Error("Failed to publish joke candidate",
			logger.Err(err),
			logger.String("source", string(msg.Source)),
		)
		return false
	}
	return true
}

// Ingester stores candidates. *service.Service implements it.
type Ingester interface {
	Ingest(ctx context.Context, c service.Candidate) (*models.Joke, bool, error)
}

// DirectSink ingests candidates in-process, used when no queue is configured
// and as the handler behind the queue's import consumer.
type DirectSink struct {
	ing Ingester
}

func NewDirectSink(ing Ingester) *DirectSink {
	return &DirectSink{ing: ing}
}

// PublishImport drops candidates the validator rejects instead of failing,
// so a bad candidate is never redelivered.
func (s *DirectSink) PublishImport(ctx context.Context, msg *queue.ImportMessage) error {
	joke, created, err := s.ing.Ingest(ctx, service.Candidate{
		Content: msg.Content,
		Author:  msg.Author,
		Tags:    msg.Tags,
		Source:  msg.Source,
	})

	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		logger.Debug("Skipping invalid candidate",
			logger.String("hash", msg.Hash),
			logger.String("reason", vErr.Reason),
		)
		return nil
	case err != nil:
		return err
	case !created:
		logger.Debug("Skipping duplicate candidate", logger.String("hash", msg.Hash))
		return nil
	}

	logger.Info("Joke imported",
		logger.String("id", joke.ID),
		logger.String("source", string(msg.Source)),
	)
	return nil
}

func generateHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

func cleanHTML(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&amp;", "&")
	return text
}
