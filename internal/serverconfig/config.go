package serverconfig

import (
	"fmt"
	"strings"

	"guild-chatter/internal/llm"
)

const (
	MinTemperature = 0.0
	MaxTemperature = 1.0
	MinHistory     = 1
	MaxHistory     = 100
)

// ServerConfig holds the per-guild bot settings. An empty ChannelID means the
// bot stays silent in that guild.
type ServerConfig struct {
	ChannelID    string  `json:"channelId,omitempty"`
	Model        string  `json:"model"`
	SystemPrompt string  `json:"systemPrompt"`
	Temperature  float64 `json:"temperature"`
	MaxHistory   int     `json:"maxHistory"`
	Provider     string  `json:"provider"`
}

// Active reports whether a response channel has been chosen.
func (c ServerConfig) Active() bool { return c.ChannelID != "" }

// ValidationError reports an option value outside its declared bounds.
type ValidationError struct {
	Field string
	Value any
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Rule)
}

func ValidateTemperature(v float64) error {
	if v < MinTemperature || v > MaxTemperature {
		return &ValidationError{Field: "temperature", Value: v, Rule: "must be between 0 and 1"}
	}
	return nil
}

func ValidateMaxHistory(n int) error {
	if n < MinHistory || n > MaxHistory {
		return &ValidationError{Field: "max_history", Value: n, Rule: "must be between 1 and 100"}
	}
	return nil
}

func ValidateProvider(p string) error {
	if !llm.IsKnownProvider(p) {
		return &ValidationError{Field: "provider", Value: p, Rule: "must be one of " + strings.Join(llm.Providers, ", ")}
	}
	return nil
}

// normalize puts loaded values back inside their bounds.
func normalize(c ServerConfig, defaults ServerConfig) ServerConfig {
	if ValidateTemperature(c.Temperature) != nil {
		c.Temperature = defaults.Temperature
	}
	if ValidateMaxHistory(c.MaxHistory) != nil {
		c.MaxHistory = defaults.MaxHistory
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if ValidateProvider(c.Provider) != nil {
		c.Provider = defaults.Provider
	}
	return c
}
