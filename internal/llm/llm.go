package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrEmptyResponse is returned when the backend answers without any text.
var ErrEmptyResponse = errors.New("no text content in API response")

// Request is a single stateless generation call.
type Request struct {
	Instructions string
	Input        string
	Temperature  float64
	MaxTokens    int
	Model        string // empty means the backend's default model
}

// Response holds the generated text and, when the backend reports them,
// exact token counts.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TokensUsed returns the reported token count, or an estimate from the
// prompt and response lengths when the backend did not report usage.
func (r *Response) TokensUsed(req Request) int {
	if r.InputTokens+r.OutputTokens > 0 {
		return r.InputTokens + r.OutputTokens
	}
	return EstimateTokens(req.Instructions + req.Input + r.Text)
}

// Backend generates text from instructions and input.
type Backend interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// EstimateTokens approximates token usage as one token per four bytes.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Client wraps the Anthropic Messages API.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and default model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildParams maps a Request onto Anthropic message parameters.
func (c *Client) buildParams(req Request) anthropic.MessageNewParams {
	model := c.model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.Instructions},
		}
	}
	return params
}

// Generate sends the request to Anthropic and returns the first text block.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	msg, err := c.api.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:         text,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// Compile-time check that Client implements Backend.
var _ Backend = (*Client)(nil)
