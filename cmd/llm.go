package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/joescharf/rqc/internal/llm"
	"github.com/joescharf/rqc/internal/orchestrator"
	"github.com/joescharf/rqc/internal/review"
	"github.com/joescharf/rqc/internal/store"
)

// errNoAPIKey is returned when the selected provider has no key configured.
var errNoAPIKey = errors.New("no API key configured")

// newBackend creates the generation backend selected by backend.provider,
// reading keys from config or the provider's conventional env var.
func newBackend(ctx context.Context) (llm.Backend, error) {
	provider := strings.ToLower(viper.GetString("backend.provider"))
	switch provider {
	case "", "anthropic":
		apiKey := viper.GetString("anthropic.api_key")
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic: %w (set anthropic.api_key or ANTHROPIC_API_KEY)", errNoAPIKey)
		}
		return llm.NewClient(apiKey, viper.GetString("anthropic.model")), nil
	case "gemini":
		apiKey := viper.GetString("gemini.api_key")
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini: %w (set gemini.api_key or GEMINI_API_KEY)", errNoAPIKey)
		}
		return llm.NewGeminiClient(ctx, apiKey, viper.GetString("gemini.model"))
	default:
		return nil, fmt.Errorf("unknown backend provider: %s (use anthropic or gemini)", provider)
	}
}

// newOrchestrator wires the backend, reviewer panel, and store into a
// ready-to-run orchestrator. The store serves as both config source and
// telemetry sink.
func newOrchestrator(ctx context.Context, s store.Store) (*orchestrator.Orchestrator, error) {
	backend, err := newBackend(ctx)
	if err != nil {
		return nil, err
	}
	panel := review.NewPanel(backend, review.DefaultConfig(), logger)
	return orchestrator.New(backend, panel, s, s, orchestrator.DefaultOptions(), logger), nil
}
