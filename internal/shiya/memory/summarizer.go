package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shiya-bot/shiya/internal/shiya/llm"
)

const (
	// minTurnsForSummary is the minimum short-term history depth before an
	// extraction call is worth making.
	minTurnsForSummary = 8

	// extractionPrompt instructs the model to distill durable facts about
	// the current speaker only. Referenced-user content must never leak
	// into the speaker's fact set.
	extractionPrompt = "You are a helper that extracts 1-3 stable small facts " +
		"about the current conversation partner themselves (such as preferred name, " +
		"likes, language, timezone). Strictly ignore any third-person or mentioned-user " +
		"information. Output one fact per line with no extra commentary. " +
		"Output nothing if there is nothing worth extracting."

	extractionMaxTokens   = 120
	extractionTemperature = 0.1
)

// Summarizer periodically compresses a user's short-term history into
// durable facts via a delegated extraction call. Summarization is strictly
// best-effort: every failure is logged and treated as "no facts extracted".
type Summarizer struct {
	// Memory is read for the transcript and written via RememberFact.
	Memory *Store

	// Provider performs the delegated extraction call.
	Provider llm.Provider

	// MinTurns overrides the minimum conversation depth. Defaults to 8.
	MinTurns int

	// Logger receives failure warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// MaybeSummarize runs the fact-extraction pass for uid when the gating
// conditions allow it. It is a no-op when referenced users appeared in the
// current turn (their content would contaminate the speaker's facts) or
// when the short-term history is still shallow.
func (s *Summarizer) MaybeSummarize(ctx context.Context, uid string, hasReferencedUsers bool) {
	if hasReferencedUsers {
		return
	}

	minTurns := s.MinTurns
	if minTurns <= 0 {
		minTurns = minTurnsForSummary
	}

	short := s.Memory.GetShort(ctx, uid)
	if len(short) < minTurns {
		return
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reply, err := s.Provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: extractionPrompt},
			{Role: "user", Content: formatTranscript(short)},
		},
		MaxTokens:   extractionMaxTokens,
		Temperature: extractionTemperature,
	})
	if err != nil {
		logger.Warn("summarizer: extraction call failed", "uid", uid, "err", err)
		return
	}

	for _, fact := range parseFactLines(reply) {
		s.Memory.RememberFact(ctx, uid, fact)
	}
}

// formatTranscript flattens the short-term history into a readable
// "role: content" transcript for the extraction call.
func formatTranscript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", t.Role, t.Content)
	}
	return b.String()
}

// parseFactLines splits an extraction response into non-empty trimmed
// lines, stripping leading list markers the model tends to emit.
func parseFactLines(text string) []string {
	var facts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		line = strings.TrimSpace(line)
		if line != "" {
			facts = append(facts, line)
		}
	}
	return facts
}
