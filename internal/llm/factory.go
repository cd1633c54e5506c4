package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGroq       = "groq"

	DefaultProvider = ProviderOpenRouter
)

// Providers lists the names accepted by the dispatcher.
var Providers = []string{ProviderOpenRouter, ProviderGroq}

func IsKnownProvider(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

// Dispatcher routes requests to the client registered for a provider name.
type Dispatcher struct {
	clients map[string]Client
}

// NewDispatcher creates one OpenAI-compatible client per settings entry,
// all sharing limiter.
func NewDispatcher(settings []ProviderSettings, limiter Limiter, logger *zap.Logger, opts ...ClientOption) *Dispatcher {
	d := &Dispatcher{clients: make(map[string]Client, len(settings))}
	for _, s := range settings {
		d.Register(s.Name, NewOpenAI(s, limiter, logger, opts...))
	}
	return d
}

func (d *Dispatcher) Register(provider string, c Client) {
	if d.clients == nil {
		d.clients = make(map[string]Client)
	}
	d.clients[strings.ToLower(provider)] = c
}

// Complete forwards req to the named provider; an empty name selects DefaultProvider.
func (d *Dispatcher) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		name = DefaultProvider
	}
	c, ok := d.clients[name]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return c.Complete(ctx, req)
}
