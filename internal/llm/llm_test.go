package llm

import (
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))

	short := EstimateTokens("Hello")
	long := EstimateTokens("This is a much longer text that should result in more estimated tokens")
	assert.Less(t, short, long)
}

func TestResponseTokensUsed(t *testing.T) {
	req := Request{Instructions: "abcd", Input: "efgh"}

	t.Run("reported usage wins", func(t *testing.T) {
		resp := &Response{Text: "PASS", InputTokens: 40, OutputTokens: 2}
		assert.Equal(t, 42, resp.TokensUsed(req))
	})

	t.Run("estimated when unreported", func(t *testing.T) {
		resp := &Response{Text: "PASS"}
		assert.Equal(t, 3, resp.TokensUsed(req))
	})
}

func TestBuildParams(t *testing.T) {
	c := NewClient("test-key", "claude-haiku-4-5-20251001")

	t.Run("defaults", func(t *testing.T) {
		params := c.buildParams(Request{Instructions: "be brief", Input: "hello", Temperature: 0.1})

		assert.Equal(t, anthropic.Model("claude-haiku-4-5-20251001"), params.Model)
		assert.Equal(t, int64(256), params.MaxTokens)
		assert.InDelta(t, 0.1, params.Temperature.Value, 0.0001)
		require.Len(t, params.System, 1)
		assert.Equal(t, "be brief", params.System[0].Text)
		require.Len(t, params.Messages, 1)
	})

	t.Run("model override and token cap", func(t *testing.T) {
		params := c.buildParams(Request{Input: "hello", MaxTokens: 80, Model: "claude-sonnet-4-5"})

		assert.Equal(t, anthropic.Model("claude-sonnet-4-5"), params.Model)
		assert.Equal(t, int64(80), params.MaxTokens)
		assert.Empty(t, params.System)
	})
}

func TestBuildConfig(t *testing.T) {
	cfg := buildConfig(Request{Instructions: "judge", Temperature: 0.1, MaxTokens: 120})

	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.1, *cfg.Temperature, 0.0001)
	assert.Equal(t, int32(120), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.SystemInstruction)
	assert.True(t, strings.Contains(cfg.SystemInstruction.Parts[0].Text, "judge"))

	bare := buildConfig(Request{Temperature: 0.5})
	assert.Nil(t, bare.SystemInstruction)
	assert.Zero(t, bare.MaxOutputTokens)
}

func TestWrapAPIError(t *testing.T) {
	err := wrapAPIError(assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "gemini API call")
}
