package completion_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weliao/weliao/internal/completion"
	"github.com/weliao/weliao/internal/config"
)

func newTestClient(t *testing.T, baseURL string) completion.Client {
	t.Helper()

	cfg := config.CompletionConfig{
		Backend: "deepseek",
		DeepSeek: config.DeepSeekConfig{
			BaseURL:     baseURL,
			APIKey:      "test-key",
			Model:       "deepseek-chat",
			MaxTokens:   800,
			Temperature: 0.8,
			Timeout:     5 * time.Second,
		},
	}
	client, err := completion.NewClient(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func completionResponse(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + mustJSON(content) + `}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestDeepSeekComplete_Success(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("request path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse("<是否需要回复>true</是否需要回复>\n<回复内容>你好</回复内容>")))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	result, err := client.Complete(context.Background(), "system prompt", "")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if result != "<是否需要回复>true</是否需要回复>\n<回复内容>你好</回复内容>" {
		t.Errorf("Complete() = %q, unexpected content", result)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization header = %q, want Bearer test-key", gotAuth)
	}
	if gotBody["model"] != "deepseek-chat" {
		t.Errorf("request model = %v, want deepseek-chat", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(800) {
		t.Errorf("request max_tokens = %v, want 800", gotBody["max_tokens"])
	}
	messages, _ := gotBody["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("request carried %d messages, want 1 system turn only", len(messages))
	}
}

func TestDeepSeekComplete_UserTurnIncluded(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(completionResponse("整理后的角色设定")))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.Complete(context.Background(), "instruction", "raw description"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	messages, _ := gotBody["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("request carried %d messages, want system + user", len(messages))
	}
	user, _ := messages[1].(map[string]any)
	if user["role"] != "user" || user["content"] != "raw description" {
		t.Errorf("user turn = %v, want role=user content=raw description", user)
	}
}

func TestDeepSeekComplete_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Complete(context.Background(), "system prompt", "")

	var upstreamErr *completion.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("Complete() error = %v, want *UpstreamError", err)
	}
	if upstreamErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want %d", upstreamErr.StatusCode, http.StatusTooManyRequests)
	}
	if upstreamErr.Body != `{"error":"rate limited"}` {
		t.Errorf("Body = %q, want raw upstream body", upstreamErr.Body)
	}
}

func TestDeepSeekComplete_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	result, err := client.Complete(context.Background(), "system prompt", "")
	if err != nil {
		t.Fatalf("Complete() error = %v, want nil for empty choices", err)
	}
	if result != "" {
		t.Errorf("Complete() = %q, want empty string", result)
	}
}

func TestDeepSeekComplete_EmptySystemPrompt(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "http://127.0.0.1:0")
	if _, err := client.Complete(context.Background(), "", ""); err == nil {
		t.Error("Complete() with empty system prompt should fail before any request")
	}
}

func TestNewClient_UnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := config.CompletionConfig{Backend: "carrier-pigeon"}
	if _, err := completion.NewClient(context.Background(), cfg, slog.New(slog.DiscardHandler)); err == nil {
		t.Error("NewClient() with unknown backend should fail")
	}
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	t.Parallel()

	cfg := config.CompletionConfig{
		Backend:  "deepseek",
		DeepSeek: config.DeepSeekConfig{BaseURL: "https://api.deepseek.com", Model: "deepseek-chat"},
	}
	if _, err := completion.NewClient(context.Background(), cfg, slog.New(slog.DiscardHandler)); err == nil {
		t.Error("NewClient() without API key should fail")
	}
}
