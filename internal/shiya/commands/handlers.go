package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/shiya-bot/shiya/internal/shiya/character"
	"github.com/shiya-bot/shiya/internal/shiya/dispatch"
	"github.com/shiya-bot/shiya/internal/shiya/memory"
)

// DisplayNameResolver looks up a user's display name on the gateway.
// Implementations return an error when the profile cannot be fetched; the
// handlers then fall back to the raw user ID.
type DisplayNameResolver interface {
	GetDisplayName(userID string) (string, error)
}

// Handlers holds the command handlers and their dependencies.
type Handlers struct {
	memory     *memory.Store
	characters *character.Config
	resolver   DisplayNameResolver
	prefix     string
}

// HandlersConfig configures a Handlers instance.
type HandlersConfig struct {
	Memory     *memory.Store
	Characters *character.Config
	// Resolver is optional; without it whois shows raw user IDs.
	Resolver DisplayNameResolver
	// Prefix is echoed in help and usage strings.
	Prefix string
}

// NewHandlers creates a Handlers instance.
func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		memory:     cfg.Memory,
		characters: cfg.Characters,
		resolver:   cfg.Resolver,
		prefix:     cfg.Prefix,
	}
}

// HandleHelp lists the available commands.
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	p := h.prefix
	return fmt.Sprintf(`**Shiya**

• %[1]s help — show this message
• %[1]s whoami — show your display name and ID
• %[1]s mem — show what I remember about you
• %[1]s remember <text> — add one small fact about yourself
• %[1]s forget — clear your memory (history and facts)
• %[1]s whois [user-id] — show another user's memory (read-only)
• %[1]s persona show — show your persona notes
• %[1]s persona set <line; line; …> — replace your persona notes
• %[1]s persona add <line> — add one persona note
• %[1]s persona reset — remove all persona notes
• %[1]s characters reload — reload the character configuration
`, p), nil
}

// HandleWhoami shows the author's display name and ID.
func (h *Handlers) HandleWhoami(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	return fmt.Sprintf("Your name: %s\nYour ID: %s", ev.AuthorName, ev.AuthorID), nil
}

// HandleMem shows the author's own stored facts and memory counters.
func (h *Handlers) HandleMem(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	facts := h.memory.GetFacts(ctx, ev.AuthorID)
	shortCount := len(h.memory.GetShort(ctx, ev.AuthorID))
	exchanges := h.memory.Count(ctx, ev.AuthorID)

	var sb strings.Builder
	sb.WriteString("Your small facts:\n")
	if len(facts) == 0 {
		sb.WriteString("(none yet)\n")
	} else {
		for _, f := range facts {
			fmt.Fprintf(&sb, "• %s\n", f)
		}
	}
	fmt.Fprintf(&sb, "\nShort-term turns: %d\nCompleted exchanges: %d", shortCount, exchanges)
	return sb.String(), nil
}

// HandleRemember stores one fact about the author.
func (h *Handlers) HandleRemember(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	arg := strings.TrimSpace(cmd.Arg)
	if arg == "" {
		return fmt.Sprintf("Anything you need me to remember? My memory is quite good. Usage: %s remember <text>", h.prefix), nil
	}
	h.memory.RememberFact(ctx, ev.AuthorID, arg)
	return "Got it. I won't forget.", nil
}

// HandleForget clears the author's memory document.
func (h *Handlers) HandleForget(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	h.memory.Clear(ctx, ev.AuthorID)
	return "Your memory has been cleared (history and small facts).", nil
}

// HandleWhois shows another user's stored facts and persona, read-only.
// Without an argument it explicitly targets the author themselves; an
// argument that does not parse as a user ID is rejected with guidance
// rather than silently falling back.
func (h *Handlers) HandleWhois(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	targetID := ev.AuthorID
	if arg := strings.TrimSpace(cmd.Arg); arg != "" {
		id, ok := parseUserID(arg)
		if !ok {
			return fmt.Sprintf("I can't tell who %q is. Give me a user ID like @name:server, or no argument to look yourself up.", arg), nil
		}
		targetID = id
	}

	facts := h.memory.GetFacts(ctx, targetID)
	persona := h.memory.GetPersona(ctx, targetID)

	display := targetID
	if h.resolver != nil {
		if name, err := h.resolver.GetDisplayName(targetID); err == nil && name != "" {
			display = name
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Lookup: %s (%s)\n", display, targetID)
	if len(facts) > 0 {
		sb.WriteString("Facts:\n")
		for _, f := range facts {
			fmt.Fprintf(&sb, "• %s\n", f)
		}
	}
	if len(persona) > 0 {
		sb.WriteString("Persona notes:\n")
		for _, p := range persona {
			fmt.Fprintf(&sb, "• %s\n", p)
		}
	}
	if len(facts) == 0 && len(persona) == 0 {
		sb.WriteString("No memory entries for this user yet.")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandlePersonaShow lists the author's persona notes.
func (h *Handlers) HandlePersonaShow(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	persona := h.memory.GetPersona(ctx, ev.AuthorID)
	if len(persona) == 0 {
		return "You have no persona notes set.", nil
	}
	var sb strings.Builder
	sb.WriteString("Your persona notes:\n")
	for _, p := range persona {
		fmt.Fprintf(&sb, "• %s\n", p)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandlePersonaSet replaces the author's persona notes wholesale. Lines
// are separated by ";".
func (h *Handlers) HandlePersonaSet(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	arg := strings.TrimSpace(cmd.Arg)
	if arg == "" {
		return fmt.Sprintf("Usage: %s persona set <line; line; …>", h.prefix), nil
	}
	var lines []string
	for _, part := range strings.Split(arg, ";") {
		if p := strings.TrimSpace(part); p != "" {
			lines = append(lines, p)
		}
	}
	h.memory.SetPersona(ctx, ev.AuthorID, lines)
	return fmt.Sprintf("Persona notes replaced (%d lines).", len(lines)), nil
}

// HandlePersonaAdd appends one persona note for the author.
func (h *Handlers) HandlePersonaAdd(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	arg := strings.TrimSpace(cmd.Arg)
	if arg == "" {
		return fmt.Sprintf("Usage: %s persona add <line>", h.prefix), nil
	}
	h.memory.AppendPersona(ctx, ev.AuthorID, arg)
	return "Persona note added.", nil
}

// HandlePersonaReset removes all of the author's persona notes.
func (h *Handlers) HandlePersonaReset(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	h.memory.ResetPersona(ctx, ev.AuthorID)
	return "Persona notes removed.", nil
}

// HandleCharactersReload reloads the character configuration file.
func (h *Handlers) HandleCharactersReload(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error) {
	if err := h.characters.Reload(); err != nil {
		return "", fmt.Errorf("reload characters: %w", err)
	}
	return fmt.Sprintf("Character configuration reloaded (%d profiles).", h.characters.Len()), nil
}

// parseUserID extracts a gateway user ID from a command argument. Accepted
// forms are the raw ID ("@name:server") and the matrix.to permalink some
// clients paste ("https://matrix.to/#/@name:server").
func parseUserID(arg string) (string, bool) {
	const permalink = "https://matrix.to/#/"
	if strings.HasPrefix(arg, permalink) {
		arg = strings.TrimPrefix(arg, permalink)
		if i := strings.IndexAny(arg, "?/"); i >= 0 {
			arg = arg[:i]
		}
	}
	if strings.HasPrefix(arg, "@") && strings.Contains(arg, ":") && !strings.ContainsAny(arg, " \t") {
		return arg, true
	}
	return "", false
}
