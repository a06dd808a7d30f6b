package orchestrator

import (
	"fmt"
	"strings"

	"github.com/joescharf/rqc/internal/llm"
	"github.com/joescharf/rqc/internal/models"
)

// StaticFallback is returned when even the safe fallback generation fails.
const StaticFallback = "Noted. Today I'm choosing to keep it classy."

const maxGenerationTokens = 150

const basicRules = `You are Roastr, a bot that answers social media comments with funny, clever roasts that carry a touch of sarcasm.

Mandatory rules:
1. Always comply with platform content policies: no hate speech, graphic violence, discrimination or direct harassment.
2. Keep the roast clever rather than excessively offensive.
3. Be funny and original, but avoid explicit sexual content.
4. Avoid terms that could trigger automatic filters or algorithmic penalties.
5. The goal is for the reader to smile or laugh without the reply being reported.
6. Detect the language of the comment and answer in that same language.
7. Reply only with the roast text, no explanations.`

const advancedRules = `You are Roastr, an advanced roast generator for premium users.

Be more creative and sophisticated: your reply will be checked by a quality-control panel before publishing.`

const fallbackRules = `You are Roastr, a bot that answers comments with witty and completely safe replies.

Strict rules:
- Be witty but entirely harmless
- Use very light, friendly humor
- Avoid anything that could be problematic
- One or two short sentences at most
- Focus on being fun without being aggressive`

// toneGuidance describes the register for each tone.
var toneGuidance = map[models.Tone]string{
	models.ToneGentle:   "- Style: playful, elegant irony; wordplay and double meanings\n- Tease, never wound",
	models.ToneBalanced: "- Style: sharp sarcasm without strong explicit insults\n- Intelligent, creative humor",
	models.ToneHarsh:    "- Style: direct, cutting humor that gets straight to the point\n- Keep the wit, drop the cushioning",
}

// toneTemperature maps a tone to the generation temperature for basic moderation.
func toneTemperature(t models.Tone) float64 {
	switch t {
	case models.ToneGentle:
		return 0.7
	case models.ToneHarsh:
		return 0.9
	default:
		return 0.8
	}
}

func commentInput(text string) string {
	return fmt.Sprintf("Comment: %q\n\nReply only with the roast, no explanations.", text)
}

func writeUserConfig(b *strings.Builder, cfg *models.ReviewConfig, note string) {
	b.WriteString("User configuration:\n")
	fmt.Fprintf(b, "- Tone: %s (intensity %d/5)\n", cfg.Tone, cfg.Tone.Intensity())
	fmt.Fprintf(b, "- Plan: %s (%s)\n", cfg.Plan, note)
}

// basicModerationRequest builds the single-pass request with compliance and
// tone guidance embedded directly in the instructions.
func basicModerationRequest(cfg *models.ReviewConfig, text, model string) llm.Request {
	var b strings.Builder
	b.WriteString(basicRules)
	b.WriteString("\n\n")
	writeUserConfig(&b, cfg, "basic moderation built in")
	b.WriteString("\n")
	guidance, ok := toneGuidance[cfg.Tone]
	if !ok {
		guidance = toneGuidance[models.ToneBalanced]
	}
	b.WriteString(guidance)

	return llm.Request{
		Instructions: b.String(),
		Input:        commentInput(text),
		Temperature:  toneTemperature(cfg.Tone),
		MaxTokens:    maxGenerationTokens,
		Model:        model,
	}
}

// advancedRequest builds the pre-review generation request. feedback carries
// the previous rejection reason on regenerations.
func advancedRequest(cfg *models.ReviewConfig, text, feedback, model string, customPromptEnabled bool) llm.Request {
	var b strings.Builder
	b.WriteString(advancedRules)
	b.WriteString("\n\n")
	writeUserConfig(&b, cfg, "quality-control review")
	if customPromptEnabled && strings.TrimSpace(cfg.CustomStylePrompt) != "" {
		fmt.Fprintf(&b, "- Custom style: %s\n", strings.TrimSpace(cfg.CustomStylePrompt))
	}

	b.WriteString("\nInstructions:\n")
	b.WriteString("- Write a clever, memorable roast\n")
	b.WriteString("- Detect the language of the comment and answer in that same language\n")
	b.WriteString("- Reply only with the roast, no explanations\n")
	if feedback != "" {
		fmt.Fprintf(&b, "\nA previous reply was rejected by the reviewers: %s\nWrite a new reply that avoids those problems.\n", feedback)
	}

	return llm.Request{
		Instructions: b.String(),
		Input:        commentInput(text),
		Temperature:  0.9,
		MaxTokens:    maxGenerationTokens,
		Model:        model,
	}
}

// fallbackRequest builds the maximally conservative request.
func fallbackRequest(text, model string) llm.Request {
	return llm.Request{
		Instructions: fallbackRules,
		Input:        commentInput(text),
		Temperature:  0.5,
		MaxTokens:    80,
		Model:        model,
	}
}
