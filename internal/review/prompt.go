package review

import (
	"fmt"
	"strings"

	"github.com/joescharf/rqc/internal/models"
)

const responseFormat = `Respond in exactly this format:
- First line: PASS or FAIL
- If FAIL, a second line with a one-sentence reason
Do not add anything else.`

// systemPrompt returns the fixed role instructions for a reviewer.
func systemPrompt(r Reviewer) string {
	switch r {
	case Moderator:
		return "You are a content moderator for a social media reply bot. You decide whether a reply is safe to publish on public platforms. You are strict and consistent."
	case Comedian:
		return "You are a professional comedy writer reviewing short comebacks. You decide whether a reply is genuinely funny. You are demanding but fair."
	default:
		return "You are a style editor for a reply bot. You decide whether a reply matches the voice the user configured. You are precise and consistent."
	}
}

// buildReviewerPrompt builds the user prompt for one reviewer.
func buildReviewerPrompt(r Reviewer, original, candidate string, cfg *models.ReviewConfig, customPromptEnabled bool) string {
	if cfg == nil {
		cfg = models.DefaultReviewConfig("")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL COMMENT:\n%s\n\n", original)
	fmt.Fprintf(&b, "CANDIDATE REPLY:\n%s\n\n", candidate)
	fmt.Fprintf(&b, "USER TONE: %s\n", toneOrDefault(cfg.Tone))
	fmt.Fprintf(&b, "USER INTENSITY LEVEL: %d/5\n\n", cfg.Tone.Intensity())

	switch r {
	case Moderator:
		writeModeratorCriteria(&b)
	case Comedian:
		writeComedianCriteria(&b, cfg.Tone.Intensity())
	case Style:
		writeStyleCriteria(&b, cfg, customPromptEnabled)
	}

	b.WriteString("\n")
	b.WriteString(responseFormat)
	return b.String()
}

func writeModeratorCriteria(b *strings.Builder) {
	b.WriteString("MODERATION CRITERIA:\n")
	b.WriteString("- No hate speech, harassment, threats or incitement\n")
	b.WriteString("- No discrimination based on protected characteristics\n")
	b.WriteString("- No explicit sexual content or graphic violence\n")
	b.WriteString("- No terms likely to trigger automated platform filters\n")
	b.WriteString("- Aggressiveness must not exceed the user's intensity level\n")
}

func writeComedianCriteria(b *strings.Builder, intensity int) {
	b.WriteString("COMEDY CRITERIA:\n")
	b.WriteString("- Has a clear hook or punchline\n")
	b.WriteString("- Original rather than generic\n")
	b.WriteString("- Responds to the comment instead of ignoring it\n")
	b.WriteString("- Short and punchy\n")
	if intensity <= 2 {
		fmt.Fprintf(b, "For intensity %d/5, relax expectations: light, friendly humor is enough to pass.\n", intensity)
	}
}

// writeStyleCriteria uses the user's custom style prompt only when the
// feature is enabled and the user actually configured one.
func writeStyleCriteria(b *strings.Builder, cfg *models.ReviewConfig, customPromptEnabled bool) {
	custom := strings.TrimSpace(cfg.CustomStylePrompt)
	if customPromptEnabled && custom != "" {
		b.WriteString("CUSTOM STYLE CONFIGURED:\n")
		b.WriteString(custom)
		b.WriteString("\n")
		b.WriteString("Judge only whether the reply follows this style.\n")
		return
	}

	b.WriteString("STANDARD STYLE CRITERIA:\n")
	switch cfg.Tone {
	case models.ToneGentle:
		b.WriteString("- Playful, warm irony; teasing without bite\n")
	case models.ToneHarsh:
		b.WriteString("- Sharp, direct sarcasm; cutting but clever\n")
	default:
		b.WriteString("- Witty sarcasm with balance; confident but not cruel\n")
	}
	b.WriteString("- Written in the same language as the comment\n")
	b.WriteString("- Reads as a single natural reply, no explanations or hashtags\n")
}

func toneOrDefault(t models.Tone) models.Tone {
	if t == "" {
		return models.ToneBalanced
	}
	return t
}
