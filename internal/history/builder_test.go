package history

import (
	"strings"
	"testing"
	"time"

	"guild-chatter/internal/llm"
)

const botID = "900"

func msg(id, author, name, content string) ChannelMessage {
	return ChannelMessage{ID: id, AuthorID: author, DisplayName: name, Content: content, Timestamp: time.Unix(0, 0)}
}

func TestBuild_RolesPrefixesAndOrder(t *testing.T) {
	b := Builder{BotID: botID, BotName: "Sparky"}

	mention := msg("1", "10", "alice", "<@900> what's up")
	mention.Mentions = []string{botID}
	botReply := msg("2", botID, "Sparky", "Not much!")
	botReply.IsBot = true
	reply := msg("3", "11", "bob", "cool")
	reply.ReplyToID = "2"
	chatter := msg("4", "12", "carol", "anyone for lunch?")
	otherBot := msg("5", "77", "Dyno", "beep")
	otherBot.IsBot = true

	trigger := msg("6", "10", "alice", "<@!900>  tell me a joke ")
	trigger.Mentions = []string{botID}

	conv := b.Build("You are Sparky.", []ChannelMessage{mention, botReply, reply, chatter, otherBot}, trigger)

	want := []llm.Message{
		{Role: "user", Content: "alice: <@900> what's up"},
		{Role: "assistant", Content: "Not much!"},
		{Role: "user", Content: "bob: cool"},
		{Role: "user", Content: "[Channel context] carol: anyone for lunch?"},
		{Role: "user", Content: "alice: tell me a joke"},
	}
	if len(conv.Turns) != len(want) {
		t.Fatalf("want %d turns, got %d: %+v", len(want), len(conv.Turns), conv.Turns)
	}
	for i := range want {
		if conv.Turns[i] != want[i] {
			t.Fatalf("turn %d: want %+v, got %+v", i, want[i], conv.Turns[i])
		}
	}
	if !strings.HasPrefix(conv.SystemPrompt, "You are Sparky.\n") {
		t.Fatalf("base prompt missing: %q", conv.SystemPrompt)
	}
	if !strings.Contains(conv.SystemPrompt, "from alice who has mentioned you") {
		t.Fatalf("trigger description missing: %q", conv.SystemPrompt)
	}
}

func TestBuild_BotTurnsAreRawEvenWhenDirect(t *testing.T) {
	b := Builder{BotID: botID, BotName: "Sparky"}
	own := msg("1", botID, "Sparky", "[Channel context] odd but verbatim")
	own.IsBot = true
	own.Mentions = []string{botID}

	conv := b.Build("", []ChannelMessage{own}, msg("2", "10", "alice", "hi"))
	if conv.Turns[0].Role != llm.RoleAssistant || conv.Turns[0].Content != own.Content {
		t.Fatalf("bot turn altered: %+v", conv.Turns[0])
	}
}

func TestBuild_LengthIsRetainedPlusOne(t *testing.T) {
	b := Builder{BotID: botID}
	var prior []ChannelMessage
	for i := 0; i < 7; i++ {
		m := msg(string(rune('a'+i)), "10", "u", "x")
		if i%3 == 0 {
			m.IsBot = true
			m.AuthorID = "other-bot"
		}
		prior = append(prior, m)
	}
	conv := b.Build("", prior, msg("z", "10", "u", "now"))
	// three of seven come from another bot
	if len(conv.Turns) != 5 {
		t.Fatalf("want 5 turns, got %d", len(conv.Turns))
	}
	last := conv.Turns[len(conv.Turns)-1]
	if last.Role != llm.RoleUser || last.Content != "u: now" {
		t.Fatalf("unexpected final turn: %+v", last)
	}
}

func TestBuild_ReplyTriggerWithoutMentionKeepsContent(t *testing.T) {
	b := Builder{BotID: botID, BotName: "Sparky"}
	trigger := msg("2", "10", "alice", "  see <@900> docs  ")
	trigger.ReplyToID = "1"
	trigger.ReplyToAuthorID = botID

	conv := b.Build("base", nil, trigger)
	if got := conv.Turns[0].Content; got != "alice:   see <@900> docs  " {
		t.Fatalf("content must be untouched when not mentioned: %q", got)
	}
	if !strings.Contains(conv.SystemPrompt, "replied to your previous message") {
		t.Fatalf("reply not described: %q", conv.SystemPrompt)
	}
}

func TestBuilderIsDirect_UsesEmbeddedReferenceAuthor(t *testing.T) {
	b := Builder{BotID: botID}
	m := msg("5", "10", "alice", "thanks")
	m.ReplyToID = "outside-window"
	m.ReplyToAuthorID = botID
	if !b.isDirect(m, nil) {
		t.Fatalf("reply to bot outside window should count as direct")
	}
	m.ReplyToAuthorID = "11"
	if b.isDirect(m, nil) {
		t.Fatalf("reply to a human is not direct")
	}
}

func TestStripMention(t *testing.T) {
	b := Builder{BotID: botID}
	if got := b.StripMention("<@900> hi <@!900> there <@901>"); got != "hi  there <@901>" {
		t.Fatalf("unexpected: %q", got)
	}
}
