package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ongoingai/testbook/internal/prompt"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o-2024-08-06",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "[{\"id\":\"TC-001\"}]"}, "finish_reason": "%s"}],
  "usage": {"prompt_tokens": 120, "completion_tokens": 45, "total_tokens": 165}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *OpenAIClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOpenAIClient(OpenAIOptions{
		APIKey:    "sk-test",
		BaseURL:   server.URL + "/v1/",
		Timeout:   timeout,
		Transport: server.Client().Transport,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error: %v", err)
	}
	return client
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIClient(OpenAIOptions{APIKey: "  "}); err == nil {
		t.Fatal("NewOpenAIClient() error=nil, want missing key error")
	}
}

func TestOpenAIClientGenerateSendsImagesBeforeText(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	var authHeader, path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(strings.Replace(completionBody, "%s", "stop", 1)))
	}, time.Second)

	p := prompt.Build(prompt.Input{
		UserStory: "As a user I can reset my password.",
		Images:    []prompt.Image{{Name: "screen.png", Format: "png", Data: []byte{0x89, 'P', 'N', 'G'}}},
	})
	resp, err := client.Generate(context.Background(), Request{
		Model:           "gpt-4o",
		Prompt:          p,
		MaxOutputTokens: 16000,
		Temperature:     0.3,
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if authHeader != "Bearer sk-test" {
		t.Fatalf("authorization=%q, want bearer key", authHeader)
	}
	if path != "/v1/chat/completions" {
		t.Fatalf("path=%q, want /v1/chat/completions", path)
	}
	if captured["model"] != "gpt-4o" {
		t.Fatalf("model=%v, want gpt-4o", captured["model"])
	}
	if captured["max_tokens"] != float64(16000) {
		t.Fatalf("max_tokens=%v, want 16000", captured["max_tokens"])
	}

	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages=%d, want 2", len(messages))
	}
	system, _ := messages[0].(map[string]any)
	if system["role"] != "system" || system["content"] != prompt.System {
		t.Fatalf("system message=%v, want fixed system prompt", system)
	}
	user, _ := messages[1].(map[string]any)
	parts, _ := user["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("user parts=%d, want image then text", len(parts))
	}
	first, _ := parts[0].(map[string]any)
	last, _ := parts[1].(map[string]any)
	if first["type"] != "image_url" || last["type"] != "text" {
		t.Fatalf("part types=%v,%v, want image_url,text", first["type"], last["type"])
	}
	imageURL, _ := first["image_url"].(map[string]any)
	if url, _ := imageURL["url"].(string); !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("image url=%q, want png data url", url)
	}
	if last["text"] != p.User {
		t.Fatal("text part does not match built user text")
	}

	if resp.Text != `[{"id":"TC-001"}]` {
		t.Fatalf("text=%q", resp.Text)
	}
	if resp.InputTokens != 120 || resp.OutputTokens != 45 {
		t.Fatalf("usage=%d/%d, want 120/45", resp.InputTokens, resp.OutputTokens)
	}
	if resp.Truncated {
		t.Fatal("truncated=true, want false for finish_reason=stop")
	}
	if resp.Model != "gpt-4o-2024-08-06" {
		t.Fatalf("model=%q", resp.Model)
	}
}

func TestOpenAIClientGenerateTextOnlyUsesPlainContent(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(strings.Replace(completionBody, "%s", "stop", 1)))
	}, time.Second)

	p := prompt.Build(prompt.Input{UserStory: "story"})
	if _, err := client.Generate(context.Background(), Request{Model: "gpt-4o-mini", Prompt: p}); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	messages, _ := captured["messages"].([]any)
	user, _ := messages[1].(map[string]any)
	if user["content"] != p.User {
		t.Fatalf("user content=%v, want plain string", user["content"])
	}
	if captured["max_tokens"] != float64(DefaultMaxOutputTokens) {
		t.Fatalf("max_tokens=%v, want default %d", captured["max_tokens"], DefaultMaxOutputTokens)
	}
}

func TestOpenAIClientGenerateReportsTruncation(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(strings.Replace(completionBody, "%s", "length", 1)))
	}, time.Second)

	resp, err := client.Generate(context.Background(), Request{Model: "gpt-4o", Prompt: prompt.Build(prompt.Input{UserStory: "s"})})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !resp.Truncated || resp.FinishReason != "length" {
		t.Fatalf("truncated=%v finish=%q, want true/length", resp.Truncated, resp.FinishReason)
	}
}

func TestOpenAIClientGenerateClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   Kind
		wantTarget error
	}{
		{
			name:       "invalid key",
			status:     http.StatusUnauthorized,
			body:       `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantKind:   KindAuthentication,
			wantTarget: ErrAuthentication,
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
			wantKind:   KindRateLimit,
			wantTarget: ErrRateLimit,
		},
		{
			name:       "gateway timeout",
			status:     http.StatusGatewayTimeout,
			body:       `upstream timed out`,
			wantKind:   KindTimeout,
			wantTarget: ErrTimeout,
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			body:       `{"error":{"message":"boom","type":"server_error"}}`,
			wantKind:   KindNetwork,
			wantTarget: ErrNetwork,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, time.Second)

			_, err := client.Generate(context.Background(), Request{Model: "gpt-4o", Prompt: prompt.Build(prompt.Input{UserStory: "s"})})
			var providerErr *Error
			if !errors.As(err, &providerErr) {
				t.Fatalf("error=%v, want *Error", err)
			}
			if providerErr.Kind != tt.wantKind {
				t.Fatalf("kind=%q, want %q", providerErr.Kind, tt.wantKind)
			}
			if providerErr.StatusCode != tt.status {
				t.Fatalf("status=%d, want %d", providerErr.StatusCode, tt.status)
			}
			if !errors.Is(err, tt.wantTarget) {
				t.Fatalf("errors.Is(%v, %v)=false", err, tt.wantTarget)
			}
		})
	}
}

func TestOpenAIClientGenerateTimesOut(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := client.Generate(context.Background(), Request{Model: "gpt-4o", Prompt: prompt.Build(prompt.Input{UserStory: "s"})})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error=%v, want timeout", err)
	}
}

func TestOpenAIClientGenerateNoChoices(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"gpt-4o","choices":[],"usage":{"prompt_tokens":1}}`))
	}, time.Second)

	_, err := client.Generate(context.Background(), Request{Model: "gpt-4o", Prompt: prompt.Build(prompt.Input{UserStory: "s"})})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("error=%v, want network failure", err)
	}
}
