package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/shiya-bot/shiya/internal/shiya/llm"
)

// ContextBuilder assembles the full prompt for one reply: the deployment
// persona, what is known about the interlocutor, read-only blocks for any
// referenced users, the short-term history, and the current input.
//
// Referenced-user data is context injection only — this builder reads other
// users' facts and persona through the Store and never writes anything.
type ContextBuilder struct {
	// Memory is the document owner all reads go through.
	Memory *Store

	// BasePrompt is the active persona template for this deployment: the
	// character description plus its base facts, assembled once from the
	// character configuration.
	BasePrompt string
}

// factSeparator joins fact and persona lists inside a single prompt line.
const factSeparator = "; "

// Build assembles the ordered message sequence for a completion call:
// one system message carrying the persona and all contextual knowledge,
// then every short-term turn in original order, then the current input as
// the final user message.
func (b *ContextBuilder) Build(ctx context.Context, uid, inputText, displayName string, refs []ReferencedUser) []llm.Message {
	var sb strings.Builder
	sb.WriteString(b.BasePrompt)
	fmt.Fprintf(&sb, "\nYou are currently talking with %q.", displayName)

	if facts := b.Memory.GetFacts(ctx, uid); len(facts) > 0 {
		sb.WriteString("\nKnown small facts about them: ")
		sb.WriteString(strings.Join(facts, factSeparator))
	}
	if persona := b.Memory.GetPersona(ctx, uid); len(persona) > 0 {
		sb.WriteString("\nAdditional persona notes: ")
		sb.WriteString(strings.Join(persona, factSeparator))
	}

	if block := b.referenceBlocks(ctx, refs); block != "" {
		sb.WriteString("\nThe following is reference information about users mentioned in this turn. Consult it only when answering questions about them:\n")
		sb.WriteString(block)
	}

	short := b.Memory.GetShort(ctx, uid)

	msgs := make([]llm.Message, 0, len(short)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: sb.String()})
	for _, turn := range short {
		msgs = append(msgs, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: inputText})
	return msgs
}

// referenceBlocks formats one read-only block per referenced user that has
// any stored facts or persona. Users with empty memory are skipped
// entirely. Returns "" when nothing is worth injecting.
func (b *ContextBuilder) referenceBlocks(ctx context.Context, refs []ReferencedUser) string {
	var blocks []string
	for _, ref := range refs {
		facts := b.Memory.GetFacts(ctx, ref.ID)
		persona := b.Memory.GetPersona(ctx, ref.ID)
		if len(facts) == 0 && len(persona) == 0 {
			continue
		}

		lines := []string{fmt.Sprintf("[Referenced user] %s (%s)", ref.DisplayName, ref.ID)}
		if len(facts) > 0 {
			lines = append(lines, "Known facts: "+strings.Join(facts, factSeparator))
		}
		if len(persona) > 0 {
			lines = append(lines, "Persona notes: "+strings.Join(persona, factSeparator))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}
