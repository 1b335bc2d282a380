package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// compatClient speaks the OpenAI chat completions wire format over plain
// HTTP. Local servers and Gemini's compatibility endpoint use it.
type compatClient struct {
	cfg        Config
	client     *http.Client
	pathPrefix string // "/v1" unless the base URL already carries the version
}

func newCompatClient(cfg Config, prefix string) compatClient {
	return compatClient{
		cfg:        cfg,
		pathPrefix: prefix,
		client:     &http.Client{Timeout: cfg.timeout()},
	}
}

// NewOpenAICompat creates a provider for any OpenAI-compatible server. The
// base URL is used as given.
func NewOpenAICompat(cfg Config) Provider {
	return &compatProvider{cfg: cfg, base: newCompatClient(cfg, "/v1")}
}

// NewOllama creates a provider for a local Ollama server.
func NewOllama(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &compatProvider{cfg: cfg, base: newCompatClient(cfg, "/v1")}
}

// NewLMStudio creates a provider for a local LM Studio server.
func NewLMStudio(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:1234"
	}
	return &compatProvider{cfg: cfg, base: newCompatClient(cfg, "/v1")}
}

// NewGemini creates a provider for Google Gemini through its
// OpenAI-compatible endpoint, which has no /v1 segment.
func NewGemini(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	return &compatProvider{cfg: cfg, base: newCompatClient(cfg, "")}
}

type compatProvider struct {
	cfg  Config
	base compatClient
}

func (p *compatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.complete(ctx, req.Model, req.Messages, req.Temperature, req.MaxTokens)
}

func (p *compatProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	return p.base.complete(ctx, req.Model, req.Messages, req.Temperature, req.MaxTokens)
}

type completionRequest struct {
	Model       string  `json:"model"`
	Messages    any     `json:"messages"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *compatClient) complete(ctx context.Context, model string, messages any, temperature float64, maxTokens int) (*ChatResponse, error) {
	if model == "" {
		model = c.cfg.Model
	}
	data, err := json.Marshal(completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}

	url := c.cfg.BaseURL + c.pathPrefix + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: c.cfg.Provider, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out completionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	return &ChatResponse{
		Content:          out.Choices[0].Message.Content,
		Model:            out.Model,
		FinishReason:     out.Choices[0].FinishReason,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	}, nil
}
