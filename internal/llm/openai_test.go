package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"guild-chatter/internal/ratelimit"
)

// instantTimer fires immediately and records requested delays.
type instantTimer struct {
	delays []time.Duration
	ch     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.ch = make(chan time.Time, 1)
	t.ch <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.ch }

type countingLimiter struct {
	calls int
	err   error
}

func (l *countingLimiter) CheckAndRecord(string) error {
	l.calls++
	return l.err
}

type capturedRequest struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
}

func okBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
	})
	return string(b)
}

func newTestClient(t *testing.T, srvURL string, lim Limiter, timer *instantTimer) *OpenAIClient {
	t.Helper()
	return NewOpenAI(ProviderSettings{Name: "openrouter", BaseURL: srvURL, APIKey: "sk-secret", DefaultModel: "default-model"},
		lim, nil, WithTimer(timer))
}

func TestComplete_SendsSystemThenHistory(t *testing.T) {
	var got capturedRequest
	var auth, title string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		title = r.Header.Get("X-Title")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody("  Hello there!  ")))
	}))
	defer srv.Close()

	lim := &countingLimiter{}
	c := NewOpenAI(ProviderSettings{
		Name: "openrouter", BaseURL: srv.URL, APIKey: "sk-secret",
		Headers: map[string]string{"HTTP-Referer": "https://github.com", "X-Title": "Discord Bot"},
	}, lim, nil)

	resp, err := c.Complete(context.Background(), Request{
		History:      []Message{{Role: RoleUser, Content: "alice: hi"}, {Role: RoleAssistant, Content: "hey"}},
		SystemPrompt: "be nice",
		Model:        "mistral",
		Temperature:  0.5,
		ChannelKey:   "c1",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "Hello there!" {
		t.Fatalf("content not trimmed: %q", resp.Content)
	}
	if resp.TotalTokens != 10 || resp.Model != "mistral" {
		t.Fatalf("unexpected response meta: %+v", resp)
	}
	if auth != "Bearer sk-secret" || title != "Discord Bot" {
		t.Fatalf("headers not sent: auth=%q title=%q", auth, title)
	}
	if got.Model != "mistral" || got.MaxTokens != 1000 || got.Temperature != 0.5 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[0].Role != "system" || got.Messages[0].Content != "be nice" ||
		got.Messages[1].Content != "alice: hi" || got.Messages[2].Role != "assistant" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if lim.calls != 1 {
		t.Fatalf("limiter checked %d times", lim.calls)
	}
}

func TestComplete_UsesDefaultModelAndKeepsZeroTemperature(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(okBody("ok")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, &instantTimer{})
	if _, err := c.Complete(context.Background(), Request{SystemPrompt: "s", ChannelKey: "c"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if raw["model"] != "default-model" {
		t.Fatalf("default model not used: %v", raw["model"])
	}
	if _, ok := raw["temperature"]; !ok {
		t.Fatalf("zero temperature dropped from request")
	}
}

func TestComplete_UnauthorizedIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API key sk-secret","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	timer := &instantTimer{}
	c := newTestClient(t, srv.URL, &countingLimiter{}, timer)
	_, err := c.Complete(context.Background(), Request{ChannelKey: "c"})
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("want unauthorized, got %v", err)
	}
	if strings.Contains(err.Error(), "sk-secret") {
		t.Fatalf("error leaks key: %q", err.Error())
	}
	if atomic.LoadInt32(&calls) != 1 || len(timer.delays) != 0 {
		t.Fatalf("unexpected retries: calls=%d delays=%v", calls, timer.delays)
	}
}

func TestComplete_UpstreamRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, &instantTimer{})
	_, err := c.Complete(context.Background(), Request{ChannelKey: "c"})
	if KindOf(err) != KindUpstreamRateLimited {
		t.Fatalf("want upstream rate limit, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("429 must not be retried, calls=%d", calls)
	}
}

func TestComplete_RetriesTransientWithLinearBackoff(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		_, _ = w.Write([]byte(okBody("finally")))
	}))
	defer srv.Close()

	timer := &instantTimer{}
	lim := &countingLimiter{}
	c := newTestClient(t, srv.URL, lim, timer)
	resp, err := c.Complete(context.Background(), Request{ChannelKey: "c"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "finally" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	want := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}
	if len(timer.delays) != len(want) {
		t.Fatalf("want delays %v, got %v", want, timer.delays)
	}
	for i := range want {
		if timer.delays[i] != want[i] {
			t.Fatalf("want delays %v, got %v", want, timer.delays)
		}
	}
	if lim.calls != 4 {
		t.Fatalf("limiter must be checked before each attempt, got %d", lim.calls)
	}
}

func TestComplete_SurfacesLastErrorAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"bad gateway"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, &instantTimer{})
	_, err := c.Complete(context.Background(), Request{ChannelKey: "c"})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindTransient || e.Status != http.StatusBadGateway {
		t.Fatalf("want transient 502, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 4 {
		t.Fatalf("want 4 attempts, got %d", calls)
	}
}

func TestComplete_LocalLimitTripsDuringRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	lim := ratelimit.New(time.Minute, 2)
	c := newTestClient(t, srv.URL, lim, &instantTimer{})
	_, err := c.Complete(context.Background(), Request{ChannelKey: "c"})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindRateLimited {
		t.Fatalf("want local rate limit, got %v", err)
	}
	if e.RetryAfter <= 0 || !strings.HasPrefix(e.Error(), "Rate limit exceeded") {
		t.Fatalf("unexpected rate limit error: %+v", e)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("want 2 upstream calls, got %d", calls)
	}
}

func TestComplete_EmptyContentIsInvalid(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(okBody("   ")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, &instantTimer{})
	_, err := c.Complete(context.Background(), Request{ChannelKey: "c"})
	if KindOf(err) != KindInvalidResponse {
		t.Fatalf("want invalid response, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("invalid response must not be retried")
	}
}

func TestComplete_UndecodableBodyIsInvalid(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	timer := &instantTimer{}
	c := newTestClient(t, srv.URL, nil, timer)
	_, err := c.Complete(context.Background(), Request{ChannelKey: "c"})
	if KindOf(err) != KindInvalidResponse {
		t.Fatalf("want invalid response, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 || len(timer.delays) != 0 {
		t.Fatalf("undecodable body must not be retried: calls=%d delays=%v", calls, timer.delays)
	}
}
