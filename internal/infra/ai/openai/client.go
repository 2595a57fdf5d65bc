package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/ai/prompt"
)

const (
	maxTokens   = 1000
	temperature = 0.3

	DefaultModel      = "gpt-4o-mini"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// Config holds credentials for every provider the client can route to.
// A provider with an empty key is treated as not configured.
type Config struct {
	Model             string
	OpenAIKey         string
	OpenAIBaseURL     string
	OpenRouterKey     string
	OpenRouterBaseURL string
}

// route is one row of the provider table.
type route struct {
	name   string
	match  func(model string) bool
	model  func(model string) string
	client *openai.Client
}

// Client implements audits.Summarizer over OpenAI-compatible chat completions.
type Client struct {
	Model  string
	routes []route
}

func NewClient(cfg Config) *Client {
	c := &Client{Model: cfg.Model}
	if c.Model == "" {
		c.Model = DefaultModel
	}

	// urutan penting: baris pertama yang cocok dipakai
	if cfg.OpenRouterKey != "" {
		base := cfg.OpenRouterBaseURL
		if base == "" {
			base = OpenRouterBaseURL
		}
		c.routes = append(c.routes, route{
			name:   "openrouter",
			match:  isVendorPrefixed,
			model:  func(m string) string { return m },
			client: newAPIClient(cfg.OpenRouterKey, base),
		})
	}
	if cfg.OpenAIKey != "" {
		c.routes = append(c.routes, route{
			name:   "openai",
			match:  func(string) bool { return true },
			model:  func(m string) string { return strings.TrimPrefix(m, "openai/") },
			client: newAPIClient(cfg.OpenAIKey, cfg.OpenAIBaseURL),
		})
	}
	return c
}

func newAPIClient(key, baseURL string) *openai.Client {
	conf := openai.DefaultConfig(key)
	if baseURL != "" {
		conf.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(conf)
}

// Provider reports which provider would serve model, or "" if none is configured.
func (c *Client) Provider(model string) string {
	if r, ok := c.resolve(model); ok {
		return r.name
	}
	return ""
}

func (c *Client) resolve(model string) (route, bool) {
	for _, r := range c.routes {
		if r.match(model) {
			return r, true
		}
	}
	return route{}, false
}

func (c *Client) Summarize(ctx context.Context, in domain.SummaryInput) (string, error) {
	r, ok := c.resolve(c.Model)
	if !ok {
		return "", domain.ErrSummarizerUnavailable
	}
	model := r.model(c.Model)

	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(in)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens and the default temperature
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
		req.Temperature = temperature
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", r.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: empty response", r.name)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%s chat completion: empty content", r.name)
	}
	return content, nil
}

func isVendorPrefixed(model string) bool {
	return strings.Contains(model, "/")
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
