package storage

import "time"

// Event is one answered prompt: the triggering message and the reply sent.
// Events are appended in the order replies are delivered.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	RequestID         string    `json:"request_id,omitempty"`
	GuildID           string    `json:"guild_id"`
	ChannelID         string    `json:"channel_id"`
	UserID            string    `json:"user_id"`
	Provider          string    `json:"provider"`
	Model             string    `json:"model"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	TotalTokens       int       `json:"total_tokens,omitempty"`
}

// Recorder abstracts persistence of interaction events.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
