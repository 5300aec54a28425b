// Package dispatch decides, for each inbound gateway event, whether Shiya
// engages at all and how: command routing, conversational reply, a fixed
// prompt-for-input nudge, or silence. The policy itself is state-free and
// gateway-agnostic — it consumes a plain Event and returns a Decision; the
// app layer executes it.
package dispatch

import (
	"math/rand"
	"strings"
)

// Event is the inbound message shape the policy consumes. The gateway
// layer converts its native events into this form.
type Event struct {
	// ID is the gateway event ID, used for reply-to-message sends.
	ID string
	// RoomID is the conversation channel the event arrived in.
	RoomID string
	// AuthorID is the stable user identifier of the sender.
	AuthorID string
	// AuthorName is the sender's display name (falls back to AuthorID).
	AuthorName string
	// AuthorIsSelf is true when the bot itself sent the message.
	AuthorIsSelf bool
	// Content is the plain message text.
	Content string
	// Mentions lists users referenced in the message, in order.
	Mentions []Mention
}

// Mention is one structured user reference inside a message.
type Mention struct {
	ID          string
	DisplayName string
}

// Action is the routing outcome for one inbound event.
type Action int

const (
	// ActionDiscard means the event is dropped with no side effects.
	ActionDiscard Action = iota
	// ActionCommand means the event is a prefixed command; CommandText
	// carries the full text for the command router.
	ActionCommand
	// ActionPrompt means the bot was addressed with no content; the fixed
	// prompt-for-input message is sent and nothing else happens.
	ActionPrompt
	// ActionReply means the event enters the reply pipeline with Text and
	// ReferencedUsers populated.
	ActionReply
)

// Decision is the policy's verdict for one event.
type Decision struct {
	Action Action

	// CommandText is the raw message text, set for ActionCommand.
	CommandText string

	// Text is the message content with bot mentions stripped, set for
	// ActionReply.
	Text string

	// ReferencedUsers are the mentioned users excluding the bot and the
	// author, deduplicated by ID in first-mention order. Set for
	// ActionReply.
	ReferencedUsers []Mention
}

// DefaultReplyChance is the default probability that an inbound event is
// engaged with at all.
const DefaultReplyChance = 0.7

// Policy holds the per-deployment dispatch configuration. Construct once
// at startup and share; Decide is safe for concurrent use as long as Rand
// is (the default is).
type Policy struct {
	// BotUserID is the bot's own user identifier.
	BotUserID string

	// MentionTokens are literal prefixes recognized as addressing the bot
	// in plain text, in addition to structured mentions. Typically the bot
	// user ID and its display name prefixed with "@".
	MentionTokens []string

	// Prefix marks command messages, e.g. "!shiya".
	Prefix string

	// ReplyChance is the engagement-gate probability in [0,1]. Events
	// failing the draw are discarded before any other check, commands and
	// explicit mentions included.
	ReplyChance float64

	// Rand draws the engagement sample. Defaults to rand.Float64. Tests
	// inject a deterministic source.
	Rand func() float64
}

// Decide classifies one inbound event.
func (p *Policy) Decide(ev Event) Decision {
	if ev.AuthorIsSelf {
		return Decision{Action: ActionDiscard}
	}

	draw := p.Rand
	if draw == nil {
		draw = rand.Float64
	}
	chance := p.ReplyChance
	if chance == 0 {
		chance = DefaultReplyChance
	}
	if draw() > chance {
		return Decision{Action: ActionDiscard}
	}

	if p.Prefix != "" && strings.HasPrefix(ev.Content, p.Prefix) {
		return Decision{Action: ActionCommand, CommandText: ev.Content}
	}

	if !p.mentioned(ev) {
		return Decision{Action: ActionDiscard}
	}

	text := p.stripBotMentions(ev.Content)
	if text == "" {
		return Decision{Action: ActionPrompt}
	}

	return Decision{
		Action:          ActionReply,
		Text:            text,
		ReferencedUsers: p.referencedUsers(ev),
	}
}

// mentioned reports whether the bot was explicitly addressed, either via a
// structured mention or a recognized mention token at the start of the text.
func (p *Policy) mentioned(ev Event) bool {
	for _, m := range ev.Mentions {
		if m.ID == p.BotUserID {
			return true
		}
	}
	for _, tok := range p.mentionTokens() {
		if strings.HasPrefix(ev.Content, tok) {
			return true
		}
	}
	return false
}

// stripBotMentions removes every mention token referring to the bot and
// trims the leftovers clients leave behind ("Shiya: hello" → "hello").
func (p *Policy) stripBotMentions(content string) string {
	for _, tok := range p.mentionTokens() {
		content = strings.ReplaceAll(content, tok, "")
	}
	content = strings.TrimSpace(content)
	content = strings.TrimLeft(content, ":,")
	return strings.TrimSpace(content)
}

// referencedUsers returns the ordered mentions excluding the bot and the
// author, deduplicated by ID.
func (p *Policy) referencedUsers(ev Event) []Mention {
	seen := make(map[string]struct{}, len(ev.Mentions))
	var refs []Mention
	for _, m := range ev.Mentions {
		if m.ID == p.BotUserID || m.ID == ev.AuthorID {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		refs = append(refs, m)
	}
	return refs
}

func (p *Policy) mentionTokens() []string {
	if len(p.MentionTokens) > 0 {
		return p.MentionTokens
	}
	return []string{p.BotUserID}
}
