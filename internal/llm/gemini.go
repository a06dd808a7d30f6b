package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no Gemini model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// APIError carries the HTTP status of a failed Gemini call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// GeminiClient implements Backend on top of the genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini backend with the given API key and default model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClient{client: client, model: model}, nil
}

// buildConfig maps a Request onto genai generation settings.
func buildConfig(req Request) *genai.GenerateContentConfig {
	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Instructions != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.Instructions}},
		}
	}
	return cfg
}

// Generate implements Backend.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Input}},
	}}

	result, err := c.client.Models.GenerateContent(ctx, model, contents, buildConfig(req))
	if err != nil {
		return nil, wrapAPIError(err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, ErrEmptyResponse
	}

	resp := &Response{Text: text}
	if result.UsageMetadata != nil {
		resp.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}

// wrapAPIError converts genai.APIError into our APIError type.
func wrapAPIError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.Code,
			Message:    fmt.Sprintf("gemini API error (HTTP %d): %s", apiErr.Code, apiErr.Message),
		}
	}
	return fmt.Errorf("gemini API call: %w", err)
}

// Compile-time check that GeminiClient implements Backend.
var _ Backend = (*GeminiClient)(nil)
