package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"viola-joke/internal/config"
	"viola-joke/internal/models"
	"viola-joke/pkg/logger"

	"github.com/nats-io/nats.go"
)

const (
	ImportSubject     = "jokes.import"
	SubmittedSubject  = "jokes.submitted"
	TelegramSubject   = "telegram.send"
	ConsumerGroup     = "viola-joke"
	fetchBatch        = 10
	fetchWait         = 500 * time.Millisecond
	defaultStreamName = "VIOLA"
)

// StreamSubjects are captured by the stream EnsureStream creates.
var StreamSubjects = []string{"jokes.>", "telegram.>"}

// durable returns the pull consumer name for a subject. Every subject needs
// its own consumer or they would steal each other's messages.
func durable(subject string) string {
	return ConsumerGroup + "-" + strings.ReplaceAll(subject, ".", "-")
}

type NATS struct {
	conn      *nats.Conn
	jetstream nats.JetStream
	cfg       config.NATSConfig
}

func New(cfg config.NATSConfig) (*NATS, error) {
	if cfg.StreamName == "" {
		cfg.StreamName = defaultStreamName
	}

	conn, err := nats.Connect(cfg.URL, nats.Name(ConsumerGroup))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream: %w", err)
	}

	n := &NATS{
		conn:      conn,
		jetstream: js,
		cfg:       cfg,
	}

	return n, nil
}

func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// EnsureStream creates the stream on first start and leaves an existing one
// untouched.
func (n *NATS) EnsureStream() error {
	_, err := n.jetstream.StreamInfo(n.cfg.StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", n.cfg.StreamName, err)
	}

	_, err = n.jetstream.AddStream(&nats.StreamConfig{
		Name:     n.cfg.StreamName,
		Subjects: StreamSubjects,
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", n.cfg.StreamName, err)
	}

	logger.Info("NATS stream created", logger.String("stream", n.cfg.StreamName))
	return nil
}

// ImportMessage is a joke candidate found by the importer.
type ImportMessage struct {
	Content   string            `json:"content"`
	Author    string            `json:"author,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Source    models.JokeSource `json:"source"`
	SourceURL string            `json:"source_url"`
	Hash      string            `json:"hash"`
}

// SubmissionMessage announces a joke waiting for moderation.
type SubmissionMessage struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Author  string   `json:"author"`
	Tags    []string `json:"tags"`
}

type TelegramMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (n *NATS) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", subject, err)
	}

	if _, err := n.jetstream.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}

func (n *NATS) PublishImport(ctx context.Context, msg *ImportMessage) error {
	if err := n.publish(ctx, ImportSubject, msg); err != nil {
		return err
	}

	logger.Debug("Joke candidate published to queue",
		logger.String("source", string(msg.Source)),
		logger.String("hash", msg.Hash),
	)

	return nil
}

// NotifySubmission queues a new submission for the moderator chat.
func (n *NATS) NotifySubmission(ctx context.Context, joke models.Joke) error {
	return n.publish(ctx, SubmittedSubject, &SubmissionMessage{
		ID:      joke.ID,
		Content: joke.Content,
		Author:  joke.DisplayAuthor(),
		Tags:    joke.Tags,
	})
}

func (n *NATS) PublishTelegramMessage(ctx context.Context, msg *TelegramMessage) error {
	if err := n.publish(ctx, TelegramSubject, msg); err != nil {
		return err
	}

	logger.Debug("Telegram message published to queue",
		logger.Int64("chat_id", msg.ChatID),
	)

	return nil
}

func (n *NATS) ConsumeImports(ctx context.Context, handler func(context.Context, *ImportMessage) error) error {
	return consume(ctx, n, ImportSubject, handler)
}

func (n *NATS) ConsumeSubmissions(ctx context.Context, handler func(context.Context, *SubmissionMessage) error) error {
	return consume(ctx, n, SubmittedSubject, handler)
}

func (n *NATS) ConsumeTelegramMessages(ctx context.Context, handler func(context.Context, *TelegramMessage) error) error {
	return consume(ctx, n, TelegramSubject, handler)
}

// consume pulls batches from subject's durable consumer until ctx is done.
// Messages that fail to decode or to handle are Nak'd for redelivery.
func consume[T any](ctx context.Context, n *NATS, subject string, handler func(context.Context, *T) error) error {
	sub, err := n.jetstream.PullSubscribe(
		subject,
		durable(subject),
		nats.BindStream(n.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch messages from %s: %w", subject, err)
		}

		for _, msg := range msgs {
			var v T
			if err := json.Unmarshal(msg.Data, &v); err != nil {
				logger.Error("Failed to unmarshal message",
					logger.String("subject", subject),
					logger.Err(err),
				)
				_ = msg.Nak()
				continue
			}

			if err := handler(ctx, &v); err != nil {
				logger.Error("Failed to process message",
					logger.String("subject", subject),
					logger.Err(err),
				)
				_ = msg.Nak()
				continue
			}

			_ = msg.Ack()
		}
	}
}
