package discord

import (
	"errors"
	"strings"

	"guild-chatter/internal/llm"
)

const maxMessageLength = 2000

const (
	msgGenericError    = "Sorry, I encountered an error while processing your message."
	msgAuthError       = "🔑 Bot configuration error. Please contact the server administrator."
	msgInvalidResponse = "⚠️ The AI model returned an invalid response. Please try again."
	msgCommandFailed   = "There was an error executing this command!"
	msgGuildOnly       = "This command can only be used in a server."
)

// errorReply maps a failed completion to the text shown in the channel.
func errorReply(err error) string {
	var e *llm.Error
	if !errors.As(err, &e) {
		return msgGenericError
	}
	switch e.Kind {
	case llm.KindRateLimited, llm.KindUpstreamRateLimited:
		return "⌛ " + e.Error()
	case llm.KindUnauthorized:
		return msgAuthError
	case llm.KindInvalidResponse:
		return msgInvalidResponse
	default:
		return msgGenericError
	}
}

// splitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline in the second half of a chunk.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
