package history

import (
	"fmt"
	"regexp"
	"strings"
)

const promptTemplate = `%s
You are in a Discord channel where you can see messages from multiple users.
When you see messages in the conversation history:
- Messages from users will be prefixed with their name (e.g. "Username: message content")
- Messages marked with [Channel context] are conversations you observed but weren't directly involved in
- Your own previous responses are shown without any prefix
The current message is from %s who has %s.

IMPORTANT RESPONSE FORMATTING:
1. DO NOT use any name prefixes in your response (not the user's name, not your name, nothing)
2. DO NOT include [Channel context] or any other formatting
3. Simply provide your response as a direct message
4. Respond naturally as if in a direct conversation

Example of how to respond:
Wrong: "%s: Hello, how are you?"
Wrong: "%s: Hello, how are you?"
Wrong: "[Channel context] Hello, how are you?"
Right: "Hello, how are you?"`

// SystemPrompt appends the tagging and formatting instructions to base.
func SystemPrompt(base, botName, userName string, repliedToBot bool) string {
	action := "mentioned you"
	if repliedToBot {
		action = "replied to your previous message"
	}
	return fmt.Sprintf(promptTemplate, base, userName, action, botName, userName)
}

var channelContextPrefix = regexp.MustCompile(`(?i)^\[channel context\]\s*`)

// CleanReply strips the prefixes the model was told not to produce.
func CleanReply(text, botName string) string {
	out := strings.TrimSpace(text)
	out = channelContextPrefix.ReplaceAllString(out, "")
	if botName != "" {
		re := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(botName) + `:\s*`)
		out = re.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}
