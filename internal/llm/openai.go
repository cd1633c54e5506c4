package llm

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const DefaultMaxTokens = 1000

// ProviderSettings describes one OpenAI-compatible backend.
type ProviderSettings struct {
	Name         string
	BaseURL      string
	APIKey       string
	DefaultModel string
	Headers      map[string]string
}

type OpenAIClient struct {
	provider     string
	client       *openai.Client
	defaultModel string
	maxTokens    int
	limiter      Limiter
	retry        RetryPolicy
	timer        backoff.Timer
	log          *zap.Logger
}

type ClientOption func(*OpenAIClient)

func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *OpenAIClient) { c.retry = p }
}

func WithMaxTokens(n int) ClientOption {
	return func(c *OpenAIClient) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTimer replaces the timer used between retries.
func WithTimer(t backoff.Timer) ClientOption {
	return func(c *OpenAIClient) { c.timer = t }
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenAI(s ProviderSettings, limiter Limiter, logger *zap.Logger, opts ...ClientOption) *OpenAIClient {
	config := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		config.BaseURL = s.BaseURL
	}
	if len(s.Headers) > 0 {
		h := http.Header{}
		for k, v := range s.Headers {
			if v != "" {
				h.Set(k, v)
			}
		}
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: http.DefaultTransport, headers: h}}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &OpenAIClient{
		provider:     s.Name,
		client:       openai.NewClientWithConfig(config),
		defaultModel: s.DefaultModel,
		maxTokens:    DefaultMaxTokens,
		limiter:      limiter,
		retry:        RetryPolicy{MaxRetries: DefaultMaxRetries, Step: DefaultRetryStep},
		log:          logger.With(zap.String("provider", s.Name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	for _, m := range req.History {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	temperature := float32(req.Temperature)
	if temperature == 0 {
		// go-openai omits a zero temperature
		temperature = math.SmallestNonzeroFloat32
	}
	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	}

	maxAttempts := c.retry.MaxRetries + 1
	attempt := 0
	var out Response
	op := func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.CheckAndRecord(req.ChannelKey); err != nil {
				return backoff.Permanent(classify(c.provider, err))
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			e := classify(c.provider, err)
			c.log.Warn("completion attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Stringer("kind", e.Kind),
				zap.Error(e))
			if !e.Kind.Retriable() {
				return backoff.Permanent(e)
			}
			return e
		}

		if len(resp.Choices) == 0 {
			return backoff.Permanent(invalidResponse(c.provider, "no choices"))
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return backoff.Permanent(invalidResponse(c.provider, "empty message content"))
		}

		out = Response{
			Content:          content,
			Model:            model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		return nil
	}

	notify := func(err error, delay time.Duration) {
		c.log.Info("retrying completion",
			zap.Int("next_attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	if err := backoff.RetryNotifyWithTimer(op, c.retry.backOff(ctx), notify, c.timer); err != nil {
		if attempt == maxAttempts {
			c.log.Error("completion failed after retries", zap.Int("attempts", attempt), zap.Error(err))
		}
		return Response{}, err
	}
	return out, nil
}
