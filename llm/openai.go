package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// sdkProvider uses the go-openai client. Hosted OpenAI-compatible APIs
// share it with a different base URL.
type sdkProvider struct {
	cfg    Config
	client *openai.Client
}

func newSDKProvider(cfg Config, defaultURL, defaultModel string) *sdkProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	oc.HTTPClient = &http.Client{Timeout: cfg.timeout()}
	return &sdkProvider{cfg: cfg, client: openai.NewClientWithConfig(oc)}
}

// NewOpenAI creates a provider for the OpenAI API.
func NewOpenAI(cfg Config) Provider {
	return newSDKProvider(cfg, "https://api.openai.com", "gpt-4o-mini")
}

// NewGroq creates a provider for Groq.
func NewGroq(cfg Config) Provider {
	return newSDKProvider(cfg, "https://api.groq.com/openai", "llama-3.3-70b-versatile")
}

// NewOpenRouter creates a provider for OpenRouter.
func NewOpenRouter(cfg Config) Provider {
	return newSDKProvider(cfg, "https://openrouter.ai/api", "")
}

// NewXAI creates a provider for xAI.
func NewXAI(cfg Config) Provider {
	return newSDKProvider(cfg, "https://api.x.ai", "")
}

func (p *sdkProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return p.create(ctx, req.Model, msgs, req.Temperature, req.MaxTokens)
}

func (p *sdkProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		parts := make([]openai.ChatMessagePart, 0, len(m.Content))
		for _, c := range m.Content {
			if c.ImageURL != nil {
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: c.ImageURL.URL},
				})
				continue
			}
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: c.Text})
		}
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts}
	}
	return p.create(ctx, req.Model, msgs, req.Temperature, req.MaxTokens)
}

func (p *sdkProvider) create(ctx context.Context, model string, msgs []openai.ChatCompletionMessage, temperature float64, maxTokens int) (*ChatResponse, error) {
	if model == "" {
		model = p.cfg.Model
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", p.cfg.Provider)
	}
	return &ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// wrapError turns SDK status errors into *APIError.
func (p *sdkProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: p.cfg.Provider, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: p.cfg.Provider, StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("%s chat completion: %w", p.cfg.Provider, err)
}
