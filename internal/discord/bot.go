package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guild-chatter/internal/history"
	"guild-chatter/internal/llm"
	"guild-chatter/internal/serverconfig"
	"guild-chatter/internal/storage"
)

// Completer is satisfied by *llm.Dispatcher.
type Completer interface {
	Complete(ctx context.Context, provider string, req llm.Request) (llm.Response, error)
}

type Options struct {
	Token            string
	AppID            string
	BotName          string
	RegisterCommands bool
	// ProviderModels maps a provider to the model a guild moves to when it
	// switches provider without having picked its own model.
	ProviderModels   map[string]string
	Store            *serverconfig.Store
	Completer        Completer
	History          *history.Manager
	Recorder         storage.Recorder
	Logger           *zap.Logger
}

type Bot struct {
	session  *discordgo.Session
	api      session
	store    *serverconfig.Store
	llm      Completer
	cutoffs  *history.Manager
	recorder storage.Recorder
	log      *zap.Logger
	botName  string
	appID    string
	register bool
	models   map[string]string

	mu     sync.RWMutex
	selfID string
}

func New(opts Options) (*Bot, error) {
	if opts.Store == nil || opts.Completer == nil {
		return nil, errors.New("discord: store and completer are required")
	}
	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cutoffs := opts.History
	if cutoffs == nil {
		cutoffs = history.NewManager()
	}
	return &Bot{
		session:  s,
		api:      s,
		store:    opts.Store,
		llm:      opts.Completer,
		cutoffs:  cutoffs,
		recorder: opts.Recorder,
		log:      logger,
		botName:  opts.BotName,
		appID:    opts.AppID,
		register: opts.RegisterCommands,
		models:   opts.ProviderModels,
	}, nil
}

// Start connects to the gateway and blocks until ctx is cancelled. Each
// event is handled on its own goroutine by discordgo.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.handleReady(r)
	})
	b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.handleIncomingMessage(ctx, m.Message)
	})
	b.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.handleInteraction(i)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	<-ctx.Done()
	if err := b.session.Close(); err != nil {
		b.log.Warn("failed to close discord session", zap.Error(err))
	}
	return nil
}

func (b *Bot) handleReady(r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	b.setSelf(r.User.ID)
	b.log.Info("logged in", zap.String("user", r.User.Username), zap.String("id", r.User.ID), zap.Int("guilds", len(r.Guilds)))

	if !b.register {
		return
	}
	appID := b.appID
	if appID == "" {
		appID = r.User.ID
	}
	if err := b.registerCommands(appID); err != nil {
		b.log.Error("failed to register commands", zap.Error(err))
	}
}

func (b *Bot) registerCommands(appID string) error {
	cmds, err := b.api.ApplicationCommandBulkOverwrite(appID, "", Commands(b.botName))
	if err != nil {
		return err
	}
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	b.log.Info("application commands registered", zap.Strings("commands", names))
	return nil
}

func (b *Bot) setSelf(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selfID = id
}

func (b *Bot) self() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selfID
}
