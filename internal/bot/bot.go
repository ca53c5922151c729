package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"viola-joke/internal/config"
	"viola-joke/internal/models"
	"viola-joke/internal/queue"
	"viola-joke/internal/service"
	"viola-joke/pkg/logger"

	"gopkg.in/telebot.v4"
)

var (
	ErrRateLimited = errors.New("telegram rate limited")
	ErrEmptyToken  = errors.New("telegram bot token is required")
)

const (
	maxRetries    = 3
	previewRunes  = 300
	pendingListed = 10
)

// Moderator is the part of the service the bot drives. The bot authorizes
// callers itself by chat id.
type Moderator interface {
	Random(ctx context.Context, visitorID string) (*models.Joke, *service.Quota, error)
	Stats(ctx context.Context) (*service.Stats, error)
	ListUnapproved(ctx context.Context) ([]models.Joke, error)
	Approve(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Queue carries outbound messages and submission notices through NATS.
type Queue interface {
	PublishTelegramMessage(ctx context.Context, msg *queue.TelegramMessage) error
	ConsumeTelegramMessages(ctx context.Context, handler func(context.Context, *queue.TelegramMessage) error) error
	ConsumeSubmissions(ctx context.Context, handler func(context.Context, *queue.SubmissionMessage) error) error
}

type Bot struct {
	settings telebot.Settings
	svc      Moderator
	q        Queue
	tbot     *telebot.Bot
	cfg      config.BotConfig
	send     func(chatID int64, text string) error
}

func New(cfg config.BotConfig, svc Moderator, q Queue) (*Bot, error) {
	if cfg.Token == "" {
		return nil, ErrEmptyToken
	}

	b := &Bot{
		cfg: cfg,
		svc: svc,
		q:   q,
		settings: telebot.Settings{
			Token:  cfg.Token,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		},
	}
	b.send = b.sendDirect

	return b, nil
}

// SetModerator attaches the service when it is built after the bot, which
// happens when the bot is also the service's notifier.
func (b *Bot) SetModerator(svc Moderator) {
	b.svc = svc
}

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	tbot, err := telebot.NewBot(b.settings)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	b.tbot = tbot
	b.setupHandlers(tbot)
	b.startConsumers(ctx)

	go tbot.Start()
	logger.Info("Telegram bot started", logger.String("username", tbot.Me.Username))

	<-ctx.Done()
	tbot.Stop()
	return ctx.Err()
}

func (b *Bot) setupHandlers(bot *telebot.Bot) {
	bot.Handle(telebot.OnText, func(c telebot.Context) error {
		logger.Debug("Incoming text message",
			logger.Int64("chat_id", c.Chat().ID),
			logger.String("username", c.Sender().Username),
		)
		return b.queueOrSend(c.Chat().ID, "Use /joke to get a viola joke!")
	})

	for _, cmd := range []string{"/start", "/help", "/joke", "/stats", "/pending", "/approve", "/delete"} {
		bot.Handle(cmd, func(c telebot.Context) error {
			logger.Info("Incoming command",
				logger.String("command", cmd),
				logger.Int64("chat_id", c.Chat().ID),
				logger.String("username", c.Sender().Username),
			)
			return b.queueOrSend(c.Chat().ID, b.reply(context.Background(), c.Chat().ID, cmd, c.Args()))
		})
	}
}

func (b *Bot) startConsumers(ctx context.Context) {
	if b.q == nil {
		return
	}

	go func() {
		err := b.q.ConsumeTelegramMessages(ctx, func(ctx context.Context, msg *queue.TelegramMessage) error {
			return b.sendMessageWithRetry(ctx, msg.ChatID, msg.Text)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Telegram consumer error", logger.Err(err))
		}
	}()

	go func() {
		err := b.q.ConsumeSubmissions(ctx, b.HandleSubmission)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Submission consumer error", logger.Err(err))
		}
	}()
}

func (b *Bot) isModerator(chatID int64) bool {
	return b.cfg.AdminChatID != 0 && chatID == b.cfg.AdminChatID
}

// reply builds the answer to a command sent from chatID.
func (b *Bot) reply(ctx context.Context, chatID int64, cmd string, args []string) string {
	switch cmd {
	case "/start":
		return "*Welcome to Viola Joke!*\n\n" + b.help(chatID)
	case "/help":
		return "*Help*\n\n" + b.help(chatID)
	case "/joke":
		return b.replyJoke(ctx)
	case "/stats":
		return b.replyStats(ctx)
	}

	if !b.isModerator(chatID) {
		return "This command is only available in the moderator chat."
	}

	switch cmd {
	case "/pending":
		return b.replyPending(ctx)
	case "/approve":
		return b.replyModerate(ctx, args, b.svc.Approve, "approved")
	case "/delete":
		return b.replyModerate(ctx, args, b.svc.Delete, "deleted")
	default:
		return "Unknown command. Try /help"
	}
}

func (b *Bot) help(chatID int64) string {
	text := "Commands:\n" +
		"- /joke - Get a random viola joke\n" +
		"- /stats - Site statistics\n" +
		"- /help - Show this help message"
	if b.isModerator(chatID) {
		text += "\n\nModeration:\n" +
			"- /pending - List jokes awaiting approval\n" +
			"- /approve <id> - Publish a joke\n" +
			"- /delete <id> - Remove a joke"
	}
	return text
}

func (b *Bot) replyJoke(ctx context.Context) string {
	joke, _, err := b.svc.Random(ctx, "")
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			logger.Error("Failed to get joke", logger.Err(err))
		}
		return "Sorry, no jokes available right now. Try again later!"
	}

	return fmt.Sprintf("%s\n\n_by %s_", escapeMarkdown(joke.Content), escapeMarkdown(joke.DisplayAuthor()))
}

func (b *Bot) replyStats(ctx context.Context) string {
	stats, err := b.svc.Stats(ctx)
	if err != nil {
		logger.Error("Failed to get statistics", logger.Err(err))
		return "Failed to get statistics"
	}

	return fmt.Sprintf(
		"*Viola Joke Statistics*\n\n"+
			"Published jokes: %d\n"+
			"Awaiting moderation: %d\n"+
			"Tags: %d",
		stats.Approved, stats.Pending, stats.Tags,
	)
}

func (b *Bot) replyPending(ctx context.Context) string {
	pending, err := b.svc.ListUnapproved(ctx)
	if err != nil {
		logger.Error("Failed to list pending jokes", logger.Err(err))
		return "Failed to list pending jokes"
	}
	if len(pending) == 0 {
		return "No jokes awaiting moderation."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*%d awaiting moderation*\n", len(pending))
	for _, j := range pending[:min(len(pending), pendingListed)] {
		fmt.Fprintf(&sb, "\n`%s`\n%s\n", j.ID, escapeMarkdown(preview(j.Content)))
	}
	if len(pending) > pendingListed {
		fmt.Fprintf(&sb, "\n...and %d more", len(pending)-pendingListed)
	}
	return sb.String()
}

func (b *Bot) replyModerate(ctx context.Context, args []string, op func(context.Context, string) error, verb string) string {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return fmt.Sprintf("Usage: /%s <id>", strings.TrimSuffix(verb, "d"))
	}
	id := strings.TrimSpace(args[0])

	if err := op(ctx, id); err != nil {
		logger.Error("Moderation failed",
			logger.String("id", id),
			logger.String("action", verb),
			logger.Err(err),
		)
		return "Failed to update joke " + id
	}
	return fmt.Sprintf("Joke `%s` %s.", id, verb)
}

// NotifySubmission tells the moderator chat about a new joke.
func (b *Bot) NotifySubmission(_ context.Context, joke models.Joke) error {
	return b.notifyModerators(joke.ID, joke.DisplayAuthor(), joke.Tags, joke.Content)
}

// HandleSubmission relays a queued submission notice to the moderator chat.
func (b *Bot) HandleSubmission(_ context.Context, msg *queue.SubmissionMessage) error {
	return b.notifyModerators(msg.ID, msg.Author, msg.Tags, msg.Content)
}

func (b *Bot) notifyModerators(id, author string, tags []string, content string) error {
	if b.cfg.AdminChatID == 0 {
		return nil
	}

	text := fmt.Sprintf("*New submission* `%s`\nby %s", id, escapeMarkdown(author))
	if len(tags) > 0 {
		text += "\ntags: " + escapeMarkdown(strings.Join(tags, ", "))
	}
	text += "\n\n" + escapeMarkdown(preview(content)) +
		fmt.Sprintf("\n\n/approve %s\n/delete %s", id, id)

	return b.queueOrSend(b.cfg.AdminChatID, text)
}

func (b *Bot) queueOrSend(chatID int64, text string) error {
	if b.q != nil {
		msg := &queue.TelegramMessage{
			ChatID: chatID,
			Text:   text,
		}
		if err := b.q.PublishTelegramMessage(context.Background(), msg); err != nil {
			logger.Error("Failed to queue telegram message", logger.Err(err))
		}
		return nil
	}

	return b.send(chatID, text)
}

func (b *Bot) sendDirect(chatID int64, text string) error {
	if b.tbot == nil {
		return errors.New("telegram bot not started")
	}
	_, err := b.tbot.Send(&telebot.Chat{ID: chatID}, text, &telebot.SendOptions{
		ParseMode: telebot.ParseMode(b.cfg.ParseMode),
	})
	return err
}

func (b *Bot) sendMessageWithRetry(ctx context.Context, chatID int64, text string) error {
	retryDelay := time.Second

	for i := 0; i < maxRetries; i++ {
		err := b.send(chatID, text)
		if err == nil {
			return nil
		}
		if !isRateLimit(err) {
			return fmt.Errorf("failed to send message: %w", err)
		}

		logger.Warn("Rate limited, retrying...",
			logger.Int("retry", i+1),
			logger.Int("max_retries", maxRetries),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
	}

	return ErrRateLimited
}

func isRateLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too many requests") || strings.Contains(msg, "retry after")
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}
