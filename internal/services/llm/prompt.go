package llm

import (
	"fmt"
	"strings"

	"github.com/postcraft/edge/internal/models"
)

// LengthRule bounds a caption by its requested length bucket
type LengthRule struct {
	CharLimit int
	MinChars  int
	MaxTokens int64
}

// LengthConstraints maps Short/Medium/Long to output bounds
func LengthConstraints(length string) LengthRule {
	switch length {
	case "Short":
		return LengthRule{CharLimit: 50, MaxTokens: 80}
	case "Medium":
		return LengthRule{CharLimit: 200, MaxTokens: 300}
	case "Long":
		return LengthRule{MinChars: 500, MaxTokens: 1000}
	default:
		return LengthRule{MaxTokens: 500}
	}
}

// ToneInstructions returns the style line for a tone
func ToneInstructions(tone string) string {
	switch tone {
	case "Professional":
		return "Write in a formal, precise, business-oriented tone. No slang, no humor."
	case "Casual":
		return "Write in a friendly, relaxed, modern tone. Light humor allowed."
	case "Playful":
		return "Write in a fun, witty, energetic tone. Use playful language."
	default:
		return "Use a neutral tone."
	}
}

func lengthInstruction(rule LengthRule) string {
	switch {
	case rule.CharLimit > 0:
		return fmt.Sprintf("Strictly keep total output under %d characters.", rule.CharLimit)
	case rule.MinChars > 0:
		return fmt.Sprintf("Ensure the caption is at least %d characters.", rule.MinChars)
	default:
		return "Keep the caption a natural length for the platform."
	}
}

func emojiRule(allowed bool) string {
	if allowed {
		return "You may use emojis where natural to the tone, but avoid overuse."
	}
	return "Strictly DO NOT use any emojis in the caption."
}

func hashtagRule(allowed bool) string {
	if allowed {
		return "Add 1-3 lowercase hashtags relevant to topic (space-separated)."
	}
	return "Strictly DO NOT add any hashtags."
}

func writeBrand(b *strings.Builder, platform string, p *models.CaptionProfile) {
	fmt.Fprintf(b, "BRAND INFO\n")
	fmt.Fprintf(b, "- Brand Name: %s\n", p.BrandName)
	fmt.Fprintf(b, "- Category: %s -> %s\n", p.Category, p.Subcategory)
	fmt.Fprintf(b, "- Persona: %s\n", p.Persona)
	fmt.Fprintf(b, "- Goal: %s\n", p.PrimaryGoal)
	fmt.Fprintf(b, "- Tone Tags: %s\n", strings.Join(p.VoiceTags, ", "))
	fmt.Fprintf(b, "- Platform Focus: %s\n\n", platform)
}

func writeRules(b *strings.Builder, req models.CaptionRequest) {
	fmt.Fprintf(b, "STRICT LENGTH:\n%s\n\n", lengthInstruction(LengthConstraints(req.Length)))
	fmt.Fprintf(b, "STRICT TONE:\n%s\n\n", ToneInstructions(req.Tone))
	fmt.Fprintf(b, "STRICT EMOJI:\n%s\n\n", emojiRule(req.EmojisAllowed()))
	fmt.Fprintf(b, "STRICT HASHTAG:\n%s\n\n", hashtagRule(req.HashtagsAllowed()))
}

// BuildCaptionSystemPrompt writes the system message for a prompt-driven
// caption. prompt must already be normalized.
func BuildCaptionSystemPrompt(req models.CaptionRequest, prompt string) string {
	var b strings.Builder
	b.WriteString("You are an elite social-media copywriter.\n\n")
	fmt.Fprintf(&b, "GOAL\nWrite ONE brand-authentic caption for %s, targeting the %q niche, based strictly on the user's intent and profile data.\n\n", req.Platform, req.Profile.Subcategory)
	fmt.Fprintf(&b, "This is the exact intent from the user:\n%q\n\n", prompt)
	b.WriteString("The prompt is not a question to you. Write a post that speaks to the user's audience about the prompt topic. Keep the intent and emotion of the prompt.\n\n")
	writeBrand(&b, req.Platform, req.Profile)
	writeRules(&b, req)
	b.WriteString("FORMAT\nOutput ONLY the caption. No pretext or explanation.")
	return b.String()
}

// BuildNewsPrompt writes the single user message for a news-driven caption
func BuildNewsPrompt(req models.CaptionRequest) string {
	window := req.NewsAgeWindow
	if window == "" {
		window = "7 days"
	}

	var b strings.Builder
	b.WriteString("You are an elite social-media copywriter.\n\n")
	fmt.Fprintf(&b, "Find a fresh trending news story related to the %q category. Only consider news from the last %s.\n", req.Profile.Category, window)
	fmt.Fprintf(&b, "Turn that news into a brand-authentic caption for %s that fits the %q niche. Do NOT invent any news.\n\n", req.Platform, req.Profile.Subcategory)
	writeBrand(&b, req.Platform, req.Profile)
	fmt.Fprintf(&b, "If you cannot find any relevant news from the last %s, respond only with:\nNo Major News in the Selected Time Range\n\n", window)
	writeRules(&b, req)
	b.WriteString("RETURN ONLY the final caption.")
	return b.String()
}
