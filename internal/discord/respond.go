package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"guild-chatter/internal/history"
	"guild-chatter/internal/llm"
	"guild-chatter/internal/serverconfig"
	"guild-chatter/internal/storage"
)

func (b *Bot) handleIncomingMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	selfID := b.self()
	if selfID == "" {
		return
	}

	cfg := b.store.Lookup(m.GuildID)
	if !cfg.Active() || m.ChannelID != cfg.ChannelID {
		return
	}

	trigger := toChannelMessage(m)
	if trigger.ReplyToID != "" && trigger.ReplyToAuthorID == "" {
		trigger.ReplyToAuthorID = b.referencedAuthor(m)
	}
	if !trigger.MentionsUser(selfID) && trigger.ReplyToAuthorID != selfID {
		return
	}

	reqID := uuid.NewString()
	log := b.log.With(
		zap.String("request_id", reqID),
		zap.String("guild", m.GuildID),
		zap.String("channel", m.ChannelID),
		zap.String("user", m.Author.ID),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)
	log.Info("incoming message", zap.String("content", m.Content))

	builder := history.Builder{BotID: selfID, BotName: b.botName}
	resp, err := b.generate(ctx, cfg, builder, m, trigger)
	if err != nil {
		log.Error("failed to generate reply", zap.Stringer("kind", llm.KindOf(err)), zap.Error(err))
		b.sendReply(log, m, errorReply(err))
		return
	}

	log.Info("llm response",
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens),
		zap.Int("total_tokens", resp.TotalTokens))

	text := history.CleanReply(resp.Content, b.botName)
	if text == "" {
		log.Warn("reply empty after cleanup", zap.String("raw", resp.Content))
		b.sendReply(log, m, msgInvalidResponse)
		return
	}
	if !b.sendReply(log, m, text) {
		return
	}

	if b.recorder != nil {
		ev := storage.Event{
			Timestamp:         time.Now().UTC(),
			RequestID:         reqID,
			GuildID:           m.GuildID,
			ChannelID:         m.ChannelID,
			UserID:            m.Author.ID,
			Provider:          cfg.Provider,
			Model:             resp.Model,
			UserMessage:       m.Content,
			AssistantResponse: text,
			TotalTokens:       resp.TotalTokens,
		}
		if err := b.recorder.AppendInteraction(ev); err != nil {
			log.Warn("failed to record interaction", zap.Error(err))
		}
	}
}

// generate fetches scrollback before m, builds the conversation and asks the
// configured provider.
func (b *Bot) generate(ctx context.Context, cfg serverconfig.ServerConfig, builder history.Builder, m *discordgo.Message, trigger history.ChannelMessage) (llm.Response, error) {
	if err := b.api.ChannelTyping(m.ChannelID); err != nil {
		b.log.Debug("typing indicator failed", zap.Error(err))
	}

	prior, err := b.api.ChannelMessages(m.ChannelID, cfg.MaxHistory, m.ID, "", "")
	if err != nil {
		return llm.Response{}, fmt.Errorf("fetch scrollback: %w", err)
	}
	// newest first from the API
	window := make([]history.ChannelMessage, 0, len(prior))
	nicks := make(map[string]string)
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i] == nil {
			continue
		}
		cm := toChannelMessage(prior[i])
		// REST messages carry no member, so the nickname is looked up separately
		if prior[i].Member == nil && !cm.IsBot && cm.AuthorID != "" {
			if nick := b.memberNick(m.GuildID, cm.AuthorID, nicks); nick != "" {
				cm.DisplayName = nick
			}
		}
		window = append(window, cm)
	}
	window = b.cutoffs.Visible(m.ChannelID, window)

	conv := builder.Build(cfg.SystemPrompt, window, trigger)
	return b.llm.Complete(ctx, cfg.Provider, llm.Request{
		History:      conv.Turns,
		SystemPrompt: conv.SystemPrompt,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		ChannelKey:   m.ChannelID,
	})
}

// memberNick returns the guild nickname of userID, trying the state cache
// before the API. Results, including misses, are memoised in seen.
func (b *Bot) memberNick(guildID, userID string, seen map[string]string) string {
	if nick, ok := seen[userID]; ok {
		return nick
	}
	var state *discordgo.State
	if b.session != nil {
		state = b.session.State
	}
	if state != nil {
		if mem, err := state.Member(guildID, userID); err == nil && mem != nil {
			seen[userID] = mem.Nick
			return mem.Nick
		}
	}

	mem, err := b.api.GuildMember(guildID, userID)
	if err != nil || mem == nil {
		b.log.Debug("could not resolve member", zap.String("guild", guildID), zap.String("user", userID), zap.Error(err))
		seen[userID] = ""
		return ""
	}
	if state != nil && mem.User != nil {
		if mem.GuildID == "" {
			mem.GuildID = guildID
		}
		_ = state.MemberAdd(mem)
	}
	seen[userID] = mem.Nick
	return mem.Nick
}

// referencedAuthor fetches the message m replies to and returns its author.
func (b *Bot) referencedAuthor(m *discordgo.Message) string {
	ref := m.MessageReference
	if ref == nil || ref.MessageID == "" {
		return ""
	}
	channelID := ref.ChannelID
	if channelID == "" {
		channelID = m.ChannelID
	}
	msg, err := b.api.ChannelMessage(channelID, ref.MessageID)
	if err != nil || msg == nil || msg.Author == nil {
		b.log.Debug("could not resolve referenced message", zap.String("message", ref.MessageID), zap.Error(err))
		return ""
	}
	return msg.Author.ID
}

// sendReply posts text as one or more replies to m.
func (b *Bot) sendReply(log *zap.Logger, m *discordgo.Message, text string) bool {
	for _, part := range splitMessage(text, maxMessageLength) {
		if _, err := b.api.ChannelMessageSendReply(m.ChannelID, part, m.Reference()); err != nil {
			log.Error("failed to send reply", zap.Error(err))
			return false
		}
	}
	return true
}

func toChannelMessage(m *discordgo.Message) history.ChannelMessage {
	cm := history.ChannelMessage{
		ID:          m.ID,
		Content:     m.Content,
		DisplayName: displayName(m),
		Timestamp:   m.Timestamp,
	}
	if m.Author != nil {
		cm.AuthorID = m.Author.ID
		cm.IsBot = m.Author.Bot
	}
	for _, u := range m.Mentions {
		if u != nil {
			cm.Mentions = append(cm.Mentions, u.ID)
		}
	}
	if m.MessageReference != nil {
		cm.ReplyToID = m.MessageReference.MessageID
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil {
		cm.ReplyToAuthorID = ref.Author.ID
		if cm.ReplyToID == "" {
			cm.ReplyToID = ref.ID
		}
	}
	return cm
}

// displayName prefers the guild nickname, then the global name, then the username.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author == nil {
		return "unknown"
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
