package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

const botNamePlaceholder = "${BOT_NAME}"

type Config struct {
	DiscordToken     string `env:"DISCORD_TOKEN,required"`
	ClientID         string `env:"CLIENT_ID"`
	BotName          string `env:"BOT_NAME" envDefault:"Assistant"`
	RegisterCommands bool   `env:"REGISTER_COMMANDS" envDefault:"true"`

	// Per-server defaults
	DefaultProvider     string  `env:"DEFAULT_PROVIDER" envDefault:"openrouter"`
	DefaultModel        string  `env:"DEFAULT_MODEL" envDefault:"mistral-7b-instruct"`
	DefaultSystemPrompt string  `env:"DEFAULT_SYSTEM_PROMPT"`
	DefaultTemperature  float64 `env:"DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxHistory   int     `env:"DEFAULT_MAX_HISTORY" envDefault:"10"`
	MaxTokens           int     `env:"MAX_TOKENS" envDefault:"1000"`

	// OpenRouter
	OpenRouterAPIKey   string `env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL  string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER" envDefault:"https://github.com"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE" envDefault:"Discord Bot"`

	// Groq
	GroqAPIKey       string `env:"GROQ_API_KEY"`
	GroqBaseURL      string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	GroqDefaultModel string `env:"GROQ_DEFAULT_MODEL" envDefault:"llama-3.3-70b-versatile"`

	// Retries and rate limiting
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryStep       time.Duration `env:"RETRY_STEP" envDefault:"10s"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"50"`
	RateLimitSweep  string        `env:"RATE_LIMIT_SWEEP" envDefault:"@every 5m"`
	SnapshotFlush   string        `env:"SNAPSHOT_FLUSH" envDefault:"@every 30m"`
	UsageReport     string        `env:"USAGE_REPORT" envDefault:"5 0 * * *"`

	// Storage
	ServerConfigPath string `env:"SERVER_CONFIG_PATH" envDefault:"data/serverConfigs.json"`
	LogFilePath      string `env:"LOG_FILE_PATH" envDefault:"logs/log.jsonl"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DiscordToken) == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN must not be empty")
	}
	if cfg.RateLimitMax <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", cfg.RateLimitMax)
	}
	return cfg, nil
}

// SystemPrompt returns the default prompt with the bot name filled in.
func (c *Config) SystemPrompt() string {
	if c.DefaultSystemPrompt == "" {
		return fmt.Sprintf("You are %s, a helpful and friendly AI assistant.", c.BotName)
	}
	return strings.ReplaceAll(c.DefaultSystemPrompt, botNamePlaceholder, c.BotName)
}
