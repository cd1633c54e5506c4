package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"guild-chatter/internal/ratelimit"
)

type Kind int

const (
	KindTransient Kind = iota
	KindRateLimited
	KindUpstreamRateLimited
	KindUnauthorized
	KindInvalidResponse
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUpstreamRateLimited:
		return "upstream_rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "transient"
	}
}

// Retriable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retriable() bool { return k == KindTransient }

var ErrUnknownProvider = errors.New("unknown provider")

// Error is a classified provider failure.
type Error struct {
	Provider   string
	Kind       Kind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return e.Err.Error()
	case KindUpstreamRateLimited:
		return fmt.Sprintf("%s rate limit reached. Please try again later.", e.Provider)
	case KindUnauthorized:
		// upstream bodies may echo the key; keep only the status
		return fmt.Sprintf("authentication error with %s (status %d). Please check your API key.", e.Provider, e.Status)
	case KindInvalidResponse:
		return fmt.Sprintf("invalid response from %s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a classified error; anything else is transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// classify converts a raw failure from the limiter or go-openai into *Error.
func classify(provider string, err error) *Error {
	var already *Error
	if errors.As(err, &already) {
		return already
	}

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		return &Error{Provider: provider, Kind: KindRateLimited, RetryAfter: exceeded.RetryAfter, Err: err}
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusTooManyRequests:
		return &Error{Provider: provider, Kind: KindUpstreamRateLimited, Status: status, Err: err}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Provider: provider, Kind: KindUnauthorized, Status: status, Err: errors.New(http.StatusText(status))}
	}

	// a 2xx body that go-openai could not decode; error statuses keep their
	// own kind even when their body is not JSON
	if status == 0 {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return &Error{Provider: provider, Kind: KindInvalidResponse, Err: err}
		}
	}

	return &Error{Provider: provider, Kind: KindTransient, Status: status, Err: err}
}

func invalidResponse(provider, reason string) *Error {
	return &Error{Provider: provider, Kind: KindInvalidResponse, Err: errors.New(reason)}
}
