package discord

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guild-chatter/internal/llm"
	"guild-chatter/internal/serverconfig"
)

const commandName = "config"

// Commands declares the /config command surface. Option bounds are enforced
// by Discord before an interaction reaches the bot.
func Commands(botName string) []*discordgo.ApplicationCommand {
	admin := int64(discordgo.PermissionAdministrator)
	dm := false
	minTemperature := serverconfig.MinTemperature
	minHistory := float64(serverconfig.MinHistory)

	providerChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(llm.Providers))
	for _, p := range llm.Providers {
		providerChoices = append(providerChoices, &discordgo.ApplicationCommandOptionChoice{Name: p, Value: p})
	}

	return []*discordgo.ApplicationCommand{{
		Name:                     commandName,
		Description:              fmt.Sprintf("Configure %s bot settings", botName),
		DefaultMemberPermissions: &admin,
		DMPermission:             &dm,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "channel",
				Description: fmt.Sprintf("Set the channel for %s to respond in", botName),
				Options: []*discordgo.ApplicationCommandOption{{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "The channel to use",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "model",
				Description: "Set the AI model to use",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "model",
					Description: "The model identifier (e.g. mistralai/mistral-small-24b-instruct-2501:free)",
					Required:    true,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "system_prompt",
				Description: "Set the system prompt",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prompt",
					Description: "The system prompt to use",
					Required:    true,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "temperature",
				Description: "Set the temperature (0.0 to 1.0)",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        "value",
					Description: "Temperature value",
					Required:    true,
					MinValue:    &minTemperature,
					MaxValue:    serverconfig.MaxTemperature,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "max_history",
				Description: "Set how many recent messages to remember in the conversation",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "Number of most recent messages to keep in conversation history (1-100)",
					Required:    true,
					MinValue:    &minHistory,
					MaxValue:    float64(serverconfig.MaxHistory),
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "provider",
				Description: "Set the completion provider",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Provider backend",
					Required:    true,
					Choices:     providerChoices,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "clear_history",
				Description: "Clear conversation history for the current channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "show",
				Description: "Show the current settings",
			},
		},
	}}
}

type commandResult struct {
	content   string
	ephemeral bool
	readOnly  bool
}

type commandContext struct {
	guildID   string
	channelID string
	options   map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func (c commandContext) option(name string) (*discordgo.ApplicationCommandInteractionDataOption, error) {
	opt, ok := c.options[name]
	if !ok || opt == nil {
		return nil, &serverconfig.ValidationError{Field: name, Value: nil, Rule: "is required"}
	}
	return opt, nil
}

type subcommandHandler func(b *Bot, c commandContext) (commandResult, error)

var subcommands = map[string]subcommandHandler{
	"channel":       (*Bot).setChannel,
	"model":         (*Bot).setModel,
	"system_prompt": (*Bot).setSystemPrompt,
	"temperature":   (*Bot).setTemperature,
	"max_history":   (*Bot).setMaxHistory,
	"provider":      (*Bot).setProvider,
	"clear_history": (*Bot).clearHistory,
	"show":          (*Bot).showConfig,
}

func (b *Bot) handleInteraction(i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != commandName {
		return
	}
	if i.GuildID == "" {
		b.respondInteraction(i.Interaction, commandResult{content: msgGuildOnly, ephemeral: true})
		return
	}

	log := b.log.With(zap.String("guild", i.GuildID), zap.String("channel", i.ChannelID))
	res, sub, err := b.runCommand(i.GuildID, i.ChannelID, data)
	if err != nil {
		log.Warn("config command failed", zap.String("subcommand", sub), zap.Error(err))
		content := msgCommandFailed
		var ve *serverconfig.ValidationError
		if errors.As(err, &ve) {
			content = "Invalid value: " + ve.Error()
		}
		b.respondInteraction(i.Interaction, commandResult{content: content, ephemeral: true})
		return
	}

	log.Info("config command executed", zap.String("subcommand", sub))
	b.respondInteraction(i.Interaction, res)
	if res.readOnly {
		return
	}

	if err := b.store.Persist(); err != nil {
		log.Error("failed to persist server configs", zap.Error(err))
	}
}

func (b *Bot) runCommand(guildID, channelID string, data discordgo.ApplicationCommandInteractionData) (commandResult, string, error) {
	if len(data.Options) == 0 || data.Options[0] == nil {
		return commandResult{}, "", errors.New("missing subcommand")
	}
	sub := data.Options[0]
	handler, ok := subcommands[sub.Name]
	if !ok {
		return commandResult{}, sub.Name, fmt.Errorf("unknown subcommand %q", sub.Name)
	}
	c := commandContext{
		guildID:   guildID,
		channelID: channelID,
		options:   make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(sub.Options)),
	}
	for _, opt := range sub.Options {
		if opt != nil {
			c.options[opt.Name] = opt
		}
	}
	res, err := handler(b, c)
	return res, sub.Name, err
}

func (b *Bot) respondInteraction(i *discordgo.Interaction, res commandResult) {
	data := &discordgo.InteractionResponseData{Content: res.content}
	if res.ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.Error("failed to respond to interaction", zap.Error(err))
	}
}

func (b *Bot) setChannel(c commandContext) (commandResult, error) {
	opt, err := c.option("channel")
	if err != nil {
		return commandResult{}, err
	}
	ch := opt.ChannelValue(nil)
	if ch == nil || ch.ID == "" {
		return commandResult{}, &serverconfig.ValidationError{Field: "channel", Value: opt.Value, Rule: "must be a channel"}
	}
	b.store.Update(c.guildID, func(cfg *serverconfig.ServerConfig) { cfg.ChannelID = ch.ID })
	return commandResult{content: fmt.Sprintf("%s will now respond in <#%s>", b.botName, ch.ID)}, nil
}

func (b *Bot) setModel(c commandContext) (commandResult, error) {
	opt, err := c.option("model")
	if err != nil {
		return commandResult{}, err
	}
	model := strings.TrimSpace(opt.StringValue())
	if model == "" {
		return commandResult{}, &serverconfig.ValidationError{Field: "model", Value: model, Rule: "must not be empty"}
	}
	b.store.Update(c.guildID, func(cfg *serverconfig.ServerConfig) { cfg.Model = model })
	return commandResult{content: "Model set to " + model}, nil
}

func (b *Bot) setSystemPrompt(c commandContext) (commandResult, error) {
	opt, err := c.option("prompt")
	if err != nil {
		return commandResult{}, err
	}
	prompt := opt.StringValue()
	b.store.Update(c.guildID, func(cfg *serverconfig.ServerConfig) { cfg.SystemPrompt = prompt })
	return commandResult{content: "System prompt updated successfully"}, nil
}

func (b *Bot) setTemperature(c commandContext) (commandResult, error) {
	opt, err := c.option("value")
	if err != nil {
		return commandResult{}, err
	}
	v := opt.FloatValue()
	if err := serverconfig.ValidateTemperature(v); err != nil {
		return commandResult{}, err
	}
	b.store.Update(c.guildID, func(cfg *serverconfig.ServerConfig) { cfg.Temperature = v })
	return commandResult{content: "Temperature set to " + strconv.FormatFloat(v, 'g', -1, 64)}, nil
}

func (b *Bot) setMaxHistory(c commandContext) (commandResult, error) {
	opt, err := c.option("count")
	if err != nil {
		return commandResult{}, err
	}
	n := int(opt.IntValue())
	if err := serverconfig.ValidateMaxHistory(n); err != nil {
		return commandResult{}, err
	}
	b.store.Update(c.guildID, func(cfg *serverconfig.ServerConfig) { cfg.MaxHistory = n })
	return commandResult{content: fmt.Sprintf(
		"Message history length set to %d messages. %s will remember the %d most recent messages in the conversation.",
		n, b.botName, n)}, nil
}

func (b *Bot) setProvider(c commandContext) (commandResult, error) {
	opt, err := c.option("name")
	if err != nil {
		return commandResult{}, err
	}
	p := strings.ToLower(strings.TrimSpace(opt.StringValue()))
	if err := serverconfig.ValidateProvider(p); err != nil {
		return commandResult{}, err
	}
	var modelChanged bool
	updated := b.store.Update(c.guildID, func(cfg *serverconfig.ServerConfig) {
		prev := cfg.Provider
		cfg.Provider = p
		if prev == p || cfg.Model != b.models[prev] {
			return
		}
		if m := b.models[p]; m != "" && m != cfg.Model {
			cfg.Model = m
			modelChanged = true
		}
	})
	if modelChanged {
		return commandResult{content: fmt.Sprintf("Provider set to %s (model %s)", p, updated.Model)}, nil
	}
	return commandResult{content: "Provider set to " + p}, nil
}

func (b *Bot) clearHistory(c commandContext) (commandResult, error) {
	b.cutoffs.Reset(c.channelID)
	// keep the get-or-create behaviour of the other subcommands
	b.store.Update(c.guildID, func(*serverconfig.ServerConfig) {})
	return commandResult{content: "Conversation history has been cleared for this channel"}, nil
}

func (b *Bot) showConfig(c commandContext) (commandResult, error) {
	cfg := b.store.Lookup(c.guildID)
	channel := "not set"
	if cfg.Active() {
		channel = "<#" + cfg.ChannelID + ">"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Channel: %s\n", channel)
	fmt.Fprintf(&sb, "Provider: %s\n", cfg.Provider)
	fmt.Fprintf(&sb, "Model: %s\n", cfg.Model)
	fmt.Fprintf(&sb, "Temperature: %s\n", strconv.FormatFloat(cfg.Temperature, 'g', -1, 64))
	fmt.Fprintf(&sb, "Max history: %d\n", cfg.MaxHistory)
	fmt.Fprintf(&sb, "System prompt: %s", cfg.SystemPrompt)
	return commandResult{content: sb.String(), ephemeral: true, readOnly: true}, nil
}
