// Package openai implements the llm.Client interface on top of OpenAI's chat
// completions API.
package openai

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/alfielabs/alfie-voice/pkg/provider/llm"
)

var _ llm.Client = (*Client)(nil)

const defaultModel = openaisdk.ChatModelGPT4oMini

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the chat model used for completions.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the API base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// Client is an OpenAI-backed llm.Client.
type Client struct {
	api     openaisdk.Client
	model   string
	baseURL string
}

// New creates a Client with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{model: defaultModel}
	for _, o := range opts {
		o(c)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if c.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.baseURL))
	}
	c.api = openaisdk.NewClient(reqOpts...)
	return c
}

// Complete runs a single system+user chat completion and returns its text.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(req.System),
			openaisdk.UserMessage(req.User),
		},
		Temperature: openaisdk.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(req.MaxTokens))
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
