package history

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"guild-chatter/internal/llm"
)

const channelContextTag = "[Channel context]"

// ChannelMessage is a platform-neutral view of one posted message.
type ChannelMessage struct {
	ID          string
	AuthorID    string
	DisplayName string
	IsBot       bool
	Content     string
	Mentions    []string
	// ReplyToID is the referenced message; ReplyToAuthorID is set when known.
	ReplyToID       string
	ReplyToAuthorID string
	Timestamp       time.Time
}

func (m ChannelMessage) MentionsUser(userID string) bool {
	for _, id := range m.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

// Conversation is the model input assembled for one triggering message.
type Conversation struct {
	Turns        []llm.Message
	SystemPrompt string
}

// Builder turns scrollback into role-tagged turns from the bot's point of view.
type Builder struct {
	BotID   string
	BotName string
}

// Build expects prior oldest first; it never includes trigger itself.
func (b Builder) Build(basePrompt string, prior []ChannelMessage, trigger ChannelMessage) Conversation {
	byID := make(map[string]ChannelMessage, len(prior))
	for _, m := range prior {
		byID[m.ID] = m
	}

	turns := make([]llm.Message, 0, len(prior)+1)
	for _, m := range prior {
		if m.IsBot && m.AuthorID != b.BotID {
			continue
		}
		if m.AuthorID == b.BotID {
			turns = append(turns, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
			continue
		}
		content := fmt.Sprintf("%s: %s", m.DisplayName, m.Content)
		if !b.isDirect(m, byID) {
			content = channelContextTag + " " + content
		}
		turns = append(turns, llm.Message{Role: llm.RoleUser, Content: content})
	}

	mentioned := trigger.MentionsUser(b.BotID)
	text := trigger.Content
	if mentioned {
		text = b.StripMention(text)
	}
	turns = append(turns, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("%s: %s", trigger.DisplayName, text)})

	repliedToBot := trigger.ReplyToAuthorID == b.BotID && b.BotID != ""
	return Conversation{
		Turns:        turns,
		SystemPrompt: SystemPrompt(basePrompt, b.BotName, trigger.DisplayName, repliedToBot),
	}
}

// isDirect reports whether m mentions the bot or replies to it. window
// resolves reply targets whose author is not embedded in m.
func (b Builder) isDirect(m ChannelMessage, window map[string]ChannelMessage) bool {
	if b.BotID == "" {
		return false
	}
	if m.MentionsUser(b.BotID) {
		return true
	}
	if m.ReplyToID == "" {
		return false
	}
	if m.ReplyToAuthorID != "" {
		return m.ReplyToAuthorID == b.BotID
	}
	ref, ok := window[m.ReplyToID]
	return ok && ref.AuthorID == b.BotID
}

// StripMention removes <@id> and <@!id> tokens for the bot and trims the rest.
func (b Builder) StripMention(content string) string {
	if b.BotID == "" {
		return strings.TrimSpace(content)
	}
	re := regexp.MustCompile(`<@!?` + regexp.QuoteMeta(b.BotID) + `>`)
	return strings.TrimSpace(re.ReplaceAllString(content, ""))
}
