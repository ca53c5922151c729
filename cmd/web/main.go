package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"viola-joke/internal/bot"
	"viola-joke/internal/config"
	"viola-joke/internal/database"
	"viola-joke/internal/httpapi"
	"viola-joke/internal/importer"
	"viola-joke/internal/moderation"
	"viola-joke/internal/queue"
	"viola-joke/internal/ratelimit"
	"viola-joke/internal/service"
	"viola-joke/internal/store"
	"viola-joke/internal/visitor"
	"viola-joke/pkg/logger"

	"github.com/go-redis/redis/v8"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrEmptyBotToken) {
			fmt.Fprintln(os.Stderr, "Error: BOT_TOKEN environment variable is required when BOT_ENABLED is set")
		} else if errors.Is(err, config.ErrEmptyDBPassword) {
			fmt.Fprintln(os.Stderr, "Error: DB_PASSWORD environment variable is required for the postgres driver")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		}
		os.Exit(1)
	}

	logger.Init(cfg.App.LogLevel, nil)
	logger.Info("Starting viola-joke",
		logger.String("app", cfg.App.Name),
		logger.String("environment", cfg.App.Environment),
		logger.String("storage", cfg.Storage.Driver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jokes, err := store.Open(ctx, cfg.Storage, cfg.Database)
	if err != nil {
		var dbErr *database.ConnectionError
		if errors.As(err, &dbErr) {
			logger.Error("Failed to connect to database",
				logger.Err(dbErr),
				logger.String("host", cfg.Database.Host),
				logger.Int("port", cfg.Database.Port),
			)
		} else {
			logger.Error("Failed to open joke store", logger.Err(err))
		}
		os.Exit(1)
	}
	defer jokes.Close()

	visitors, closeVisitors := openVisitorStore(ctx, cfg.Redis)
	defer closeVisitors()

	limiter := ratelimit.New(cfg.Submission.RateLimit, cfg.Submission.RateWindow,
		ratelimit.WithMaxKeys(cfg.Submission.MaxClients),
	)
	go func() {
		if err := limiter.Run(ctx, cfg.Submission.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Rate limiter sweep stopped", logger.Err(err))
		}
	}()

	gate := moderation.NewGate(cfg.Admin.Secret)
	if !gate.Configured() {
		logger.Warn("ADMIN_SECRET not configured, admin endpoints will reject every request")
	}

	var q *queue.NATS
	if cfg.NATS.Enabled {
		q, err = queue.New(cfg.NATS)
		if err != nil {
			logger.Error("Failed to connect to NATS", logger.Err(err))
			os.Exit(1)
		}
		defer q.Close()

		if err := q.EnsureStream(); err != nil {
			logger.Error("Failed to prepare NATS stream", logger.Err(err))
			os.Exit(1)
		}
		logger.Info("Connected to NATS", logger.String("url", cfg.NATS.URL))
	}

	opts := []service.Option{
		service.WithVisitors(visitors, cfg.Paywall.FreeDailyJokes),
		service.WithBaseURL(cfg.HTTP.BaseURL),
		service.WithAds(cfg.Ads.Enabled, cfg.Ads.Positions),
	}

	var telegramBot *bot.Bot
	if cfg.Bot.Enabled {
		var bq bot.Queue
		if q != nil {
			bq = q
		}
		// The service is built below; the bot only needs it once started.
		telegramBot, err = bot.New(cfg.Bot, nil, bq)
		if err != nil {
			logger.Error("Failed to create bot", logger.Err(err))
			os.Exit(1)
		}
	}

	switch {
	case q != nil:
		opts = append(opts, service.WithNotifier(q))
	case telegramBot != nil:
		opts = append(opts, service.WithNotifier(telegramBot))
	}

	svc := service.New(jokes, limiter, gate, opts...)

	if telegramBot != nil {
		telegramBot.SetModerator(svc)
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Telegram bot error", logger.Err(err))
			}
		}()
	}

	direct := importer.NewDirectSink(svc)
	var sink importer.Sink = direct
	if q != nil {
		sink = q
		go func() {
			logger.Info("Starting import consumer...")
			if err := q.ConsumeImports(ctx, direct.PublishImport); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Import consumer error", logger.Err(err))
			}
		}()
	}

	if cfg.Importer.Enabled {
		go func() {
			logger.Info("Starting importer...")
			imp := importer.New(cfg.Importer, sink)
			if err := imp.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Importer error", logger.Err(err))
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      httpapi.NewRouter(httpapi.NewHandlers(svc), logger.Log, cfg.HTTP.HealthEndpoint),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server starting", logger.Int("port", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", logger.Err(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", logger.Err(err))
	}

	logger.Info("Server stopped gracefully")
}

// openVisitorStore prefers Redis and falls back to process memory.
func openVisitorStore(ctx context.Context, cfg config.RedisConfig) (visitor.Store, func()) {
	if !cfg.Enabled {
		logger.Info("Redis disabled, keeping visitors in memory")
		return visitor.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", logger.String("addr", cfg.Addr), logger.Err(err))
		os.Exit(1)
	}
	logger.Info("Connected to Redis", logger.String("addr", cfg.Addr))

	return visitor.NewRedisStore(client), func() { _ = client.Close() }
}
