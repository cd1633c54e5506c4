package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"guild-chatter/internal/analytics"
	"guild-chatter/internal/config"
	"guild-chatter/internal/discord"
	"guild-chatter/internal/history"
	"guild-chatter/internal/llm"
	"guild-chatter/internal/logging"
	"guild-chatter/internal/ratelimit"
	"guild-chatter/internal/scheduler"
	"guild-chatter/internal/serverconfig"
	"guild-chatter/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	limiter := ratelimit.New(cfg.RateLimitWindow, cfg.RateLimitMax)

	dispatcher := llm.NewDispatcher([]llm.ProviderSettings{
		{
			Name:         llm.ProviderOpenRouter,
			BaseURL:      cfg.OpenRouterBaseURL,
			APIKey:       cfg.OpenRouterAPIKey,
			DefaultModel: cfg.DefaultModel,
			Headers: map[string]string{
				"HTTP-Referer": cfg.OpenRouterReferrer,
				"X-Title":      cfg.OpenRouterTitle,
			},
		},
		{
			Name:         llm.ProviderGroq,
			BaseURL:      cfg.GroqBaseURL,
			APIKey:       cfg.GroqAPIKey,
			DefaultModel: cfg.GroqDefaultModel,
		},
	}, limiter, logger,
		llm.WithRetryPolicy(llm.RetryPolicy{MaxRetries: cfg.MaxRetries, Step: cfg.RetryStep}),
		llm.WithMaxTokens(cfg.MaxTokens),
	)
	if cfg.OpenRouterAPIKey == "" {
		logger.Warn("OPENROUTER_API_KEY is not set")
	}
	if cfg.GroqAPIKey == "" {
		logger.Warn("GROQ_API_KEY is not set")
	}

	defaults := serverconfig.ServerConfig{
		Model:        cfg.DefaultModel,
		SystemPrompt: cfg.SystemPrompt(),
		Temperature:  cfg.DefaultTemperature,
		MaxHistory:   cfg.DefaultMaxHistory,
		Provider:     cfg.DefaultProvider,
	}
	var repo serverconfig.Repository
	if cfg.ServerConfigPath != "" {
		r, err := serverconfig.NewFileRepository(cfg.ServerConfigPath)
		if err != nil {
			logger.Error("failed to init server config repo", zap.Error(err))
		} else {
			repo = r
		}
	}
	store, err := serverconfig.NewWithRepo(repo, defaults)
	if err != nil {
		// unreadable entries are dropped; the file is only rewritten after a /config change
		logger.Error("failed to load some server configs", zap.String("path", cfg.ServerConfigPath), zap.Error(err))
	}
	logger.Info("server configs loaded", zap.Int("guilds", len(store.Snapshot())))

	var rec storage.Recorder
	if cfg.LogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			logger.Error("failed to init interaction log", zap.Error(err))
		} else {
			rec = fr
			defer func() { _ = fr.Close() }()
		}
	}

	sched := scheduler.New(logger.Named("scheduler"))
	jobs := []scheduler.Job{
		{
			Name: "rate-limit-sweep",
			Spec: cfg.RateLimitSweep,
			Run: func(context.Context) error {
				n := limiter.Sweep()
				logger.Debug("rate limit windows swept", zap.Int("removed", n), zap.Int("remaining", limiter.Len()))
				return nil
			},
		},
		{
			Name: "config-flush",
			Spec: cfg.SnapshotFlush,
			Run: func(context.Context) error {
				flushed, err := store.Flush()
				if flushed && err == nil {
					logger.Debug("server configs flushed")
				}
				return err
			},
		},
	}
	if rec != nil {
		jobs = append(jobs, scheduler.Job{
			Name: "usage-report",
			Spec: cfg.UsageReport,
			Run: func(context.Context) error {
				events, err := rec.LoadInteractions()
				if err != nil {
					return err
				}
				stats := analytics.AnalyzeDailyLogs(events, time.Now().UTC().AddDate(0, 0, -1))
				logger.Info("daily usage report",
					zap.String("date", stats.Date),
					zap.Int("replies", stats.TotalReplies),
					zap.Int("users", stats.UniqueUsers),
					zap.Int("tokens", stats.TotalTokens))
				logger.Debug(stats.Summary())
				return nil
			},
		})
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			logger.Fatal("failed to schedule job", zap.Error(err))
		}
	}

	bot, err := discord.New(discord.Options{
		Token:            cfg.DiscordToken,
		AppID:            cfg.ClientID,
		BotName:          cfg.BotName,
		RegisterCommands: cfg.RegisterCommands,
		Store:            store,
		Completer:        dispatcher,
		History:          history.NewManager(),
		Recorder:         rec,
		Logger:           logger.Named("discord"),
		ProviderModels: map[string]string{
			llm.ProviderOpenRouter: cfg.DefaultModel,
			llm.ProviderGroq:       cfg.GroqDefaultModel,
		},
	})
	if err != nil {
		logger.Fatal("failed to create bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start()
	if err := bot.Start(ctx); err != nil {
		logger.Error("bot stopped with error", zap.Error(err))
	}

	sched.Stop()
	if _, err := store.Flush(); err != nil {
		logger.Error("failed to persist server configs on shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
