package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ongoingai/testbook/internal/prompt"
)

const (
	DefaultTimeout         = 120 * time.Second
	DefaultMaxOutputTokens = 16000
	DefaultTemperature     = float32(0.3)
)

// OpenAIOptions configures an OpenAIClient. APIKey must already be resolved.
type OpenAIOptions struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// OpenAIClient issues chat completions against an OpenAI-compatible API.
type OpenAIClient struct {
	client  *openai.Client
	timeout time.Duration
}

// NewTransport returns the default provider transport. Each call opens its
// own connection.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DisableKeepAlives:   true,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// NewOpenAIClient builds a client. A nil Transport selects NewTransport.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = NewTransport()
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout, Transport: transport}

	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), timeout: timeout}, nil
}

func (*OpenAIClient) Name() string {
	return "openai"
}

// Generate sends one chat completion and waits for the complete answer.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    chatMessages(req.Prompt),
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, Classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindNetwork, Err: errors.New("provider returned no choices")}
	}

	choice := resp.Choices[0]
	return &Response{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Truncated:    choice.FinishReason == openai.FinishReasonLength,
		FinishReason: string(choice.FinishReason),
	}, nil
}

func chatMessages(p prompt.Prompt) []openai.ChatCompletionMessage {
	system := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System}
	if len(p.Images) == 0 {
		return []openai.ChatCompletionMessage{
			system,
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		}
	}

	parts := make([]openai.ChatMessagePart, 0, len(p.Images)+1)
	for _, img := range p.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img.DataURL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.User})

	return []openai.ChatCompletionMessage{
		system,
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	}
}
