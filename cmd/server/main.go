package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bouwsite/internal/assistant"
	"bouwsite/internal/chatbot"
	"bouwsite/internal/config"
	"bouwsite/internal/events"
	"bouwsite/internal/httpapi"
	"bouwsite/internal/leads"
	"bouwsite/internal/metrics"
	"bouwsite/internal/notify"
	"bouwsite/internal/queue"
	"bouwsite/internal/secrets"
	"bouwsite/internal/storage"
	"bouwsite/internal/store"
	"bouwsite/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("mode", cfg.AppMode).
		Str("db_driver", cfg.DB.Driver).
		Bool("sealed_keys", cfg.Crypto.Enabled()).
		Bool("telegram", cfg.Telegram.BotToken != "").
		Msg("starting bouwsite")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	var sealer *secrets.Sealer
	if cfg.Crypto.Enabled() {
		sealer, err = secrets.NewSealer(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize key sealer")
		}
	} else {
		log.Warn().Msg("no master key configured, provider API keys are stored in plain text")
	}

	m := metrics.Global()
	bus := events.NewBus()
	stores := store.New(store.Options{
		Backend: db,
		Events:  bus,
		Logger:  log.Logger,
		Metrics: m,
	}, sealer, cfg.Media.MaxBytes)
	jobQueue := queue.NewStreamQueue(rdb, cfg.Redis.QueueStream, cfg.Redis.QueueGroup, cfg.Worker.ConsumerName, cfg.Redis.QueueBlock)

	errCh := make(chan error, 4)

	relay := events.NewRedisRelay(bus, rdb, cfg.Redis.EventsChannel, log.Logger)
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("events relay: %w", err)
		}
	}()

	var httpServer *http.Server
	if cfg.AppMode == config.ModeWeb || cfg.AppMode == config.ModeAll {
		adapter := assistant.New(assistant.Config{
			Settings:   stores.Settings,
			DemoAPIKey: cfg.Chat.DemoAPIKey,
			HTTPClient: &http.Client{Timeout: cfg.Chat.ClientTimeout},
			Logger:     log.Logger,
			Metrics:    m,
		})
		chat := chatbot.New(chatbot.Config{
			Sessions:     stores.Sessions,
			Assistant:    adapter,
			Limiter:      queue.NewRateLimiter(rdb, cfg.Chat.RatePerHour),
			CompanyPhone: cfg.Company.Phone,
			CompanyEmail: cfg.Company.Email,
			Logger:       log.Logger,
			Metrics:      m,
		})
		api := httpapi.New(httpapi.Config{
			Stores: stores,
			Chat:   chat,
			Intake: leads.NewIntake(stores.Leads, jobQueue, log.Logger),
			Audit:  db,
			Events: bus,
			Ping: func(ctx context.Context) error {
				if err := db.Ping(ctx); err != nil {
					return err
				}
				return rdb.Ping(ctx).Err()
			},
			Logger:        log.Logger,
			Timeout:       cfg.HTTP.RequestTimeout,
			AdminToken:    cfg.AdminToken,
			HealthPath:    cfg.HTTP.HealthPath,
			MetricsPath:   cfg.HTTP.MetricsPath,
			MediaMaxBytes: cfg.Media.MaxBytes,
		})

		httpServer = &http.Server{
			Addr:              cfg.HTTP.ListenAddr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if cfg.AppMode == config.ModeWorker || cfg.AppMode == config.ModeAll {
		notifier, err := newNotifier(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create notifier")
		}
		w := worker.New(worker.Config{
			Leads:         stores.Leads,
			Queue:         jobQueue,
			Dedupe:        queue.NewDeduplicator(rdb, cfg.Redis.NotifyDedupeTTL),
			Notifier:      notifier,
			MaxJobRetries: cfg.Worker.MaxRetries,
			Logger:        log.Logger,
			Metrics:       m,
		})
		go func() {
			if err := w.Start(ctx, cfg.Worker.Concurrency); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("worker failed: %w", err)
			}
		}()
		log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("worker started")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to stop http server")
		}
	}

	log.Info().Msg("stopped")
}

func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.Telegram.BotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, leads are only logged")
		return notify.NewLog(log.Logger), nil
	}
	bot, err := gotgbot.NewBot(cfg.Telegram.BotToken, nil)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %s", sanitizeTelegramErr(err, cfg.Telegram.BotToken))
	}
	log.Info().Str("bot_username", bot.User.Username).Int64("chat_id", cfg.Telegram.ChatID).Msg("telegram notifier initialized")
	return notify.NewTelegram(bot, cfg.Telegram.ChatID), nil
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// sanitizeTelegramErr removes the bot token from error text before logging.
func sanitizeTelegramErr(err error, token string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.TrimSpace(token) == "" {
		return msg
	}

	msg = strings.ReplaceAll(msg, token, "<redacted-token>")
	if idx := strings.Index(token, ":"); idx > 0 {
		botID := token[:idx]
		msg = strings.ReplaceAll(msg, "/bot"+botID+":", "/bot<redacted>:")
		msg = strings.ReplaceAll(msg, "bot"+botID+"/", "bot<redacted>/")
	}
	return msg
}
