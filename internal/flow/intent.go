package flow

import (
	"context"
	"log/slog"
	"regexp"
)

// IntentGate decides whether a message should start the lucky draw flow.
type IntentGate interface {
	IsLuckyDrawIntent(ctx context.Context, text string) bool
}

// YesNoClassifier answers a yes/no question about text. genai.Client implements it.
type YesNoClassifier interface {
	ClassifyYesNo(ctx context.Context, systemPrompt, text string) (bool, error)
}

var (
	exactIntentKeywords = regexp.MustCompile(`(?i)lucky\s*draw|prize\s*draw|enter\s*draw|join\s*draw|raffle`)
	softIntentSignals   = regexp.MustCompile(`(?i)\bdraw\b|\benter\b|\bprize\b|\bwin\b|\bcontest\b|\bgiveaway\b|\bsweepstake`)
)

// IntentClassificationPrompt is the system prompt for the LLM fallback.
const IntentClassificationPrompt = "You are a strict intent classifier. The user's message will be provided. " +
	"Determine if the user wants to enter or participate in a lucky draw / prize draw / raffle / giveaway.\n\n" +
	"Reply with ONLY one word: YES or NO. Do not explain."

// KeywordIntentGate accepts messages naming the draw outright and asks the
// classifier about messages that only hint at it. Without a classifier, hints
// are declined.
type KeywordIntentGate struct {
	llm YesNoClassifier
}

var _ IntentGate = (*KeywordIntentGate)(nil)

// NewKeywordIntentGate creates an intent gate. llm may be nil.
func NewKeywordIntentGate(llm YesNoClassifier) *KeywordIntentGate {
	return &KeywordIntentGate{llm: llm}
}

func (g *KeywordIntentGate) IsLuckyDrawIntent(ctx context.Context, text string) bool {
	if exactIntentKeywords.MatchString(text) {
		return true
	}
	if !softIntentSignals.MatchString(text) || g.llm == nil {
		return false
	}
	ok, err := g.llm.ClassifyYesNo(ctx, IntentClassificationPrompt, text)
	if err != nil {
		// Classifier failures are treated as "not a lucky draw message".
		slog.Warn("KeywordIntentGate: classifier failed", "error", err)
		return false
	}
	return ok
}
