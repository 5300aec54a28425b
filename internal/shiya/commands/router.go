// Package commands provides command parsing and routing for Shiya's fixed
// slash-command table.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shiya-bot/shiya/internal/shiya/dispatch"
)

// Command represents a parsed command. Arg is the raw remainder after the
// matched handler key, so arguments keep their original spacing and casing
// ("remember drinks oolong tea in the morning").
type Command struct {
	Name    string // first token, lowercased, prefix stripped
	Sub     string // second token, lowercased; empty when absent
	Arg     string // raw remainder after the matched key, trimmed
	RawText string // full text after the prefix
}

// ErrNotACommand is returned by Parse when the message does not start with
// the command prefix. Callers use errors.Is to distinguish this expected
// case from real errors.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// ErrUnknownCommand is returned by Route when no handler matches. The app
// layer turns it into a user-facing guidance reply.
var ErrUnknownCommand = errors.New("unknown command")

// Handler handles one command for one inbound event.
type Handler func(ctx context.Context, cmd *Command, ev *dispatch.Event) (string, error)

// Router routes prefixed commands to handlers. Two-word commands register
// under "name.sub" keys ("persona.set"); single-word commands under their
// name.
type Router struct {
	handlers map[string]Handler
	prefix   string
}

// NewRouter creates a command router for the given prefix.
func NewRouter(prefix string) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
	}
}

// Register registers a handler under a key ("help" or "persona.set").
func (r *Router) Register(key string, handler Handler) {
	r.handlers[key] = handler
}

// Prefix returns the configured command prefix.
func (r *Router) Prefix() string {
	return r.prefix
}

// Parse splits a message into a Command. The first token after the prefix
// is the case-insensitive command name; the rest is kept raw.
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.prefix) {
		return nil, ErrNotACommand
	}

	text = strings.TrimSpace(strings.TrimPrefix(text, r.prefix))
	if text == "" {
		return nil, fmt.Errorf("empty command")
	}

	name, rest := splitToken(text)
	sub, _ := splitToken(rest)

	return &Command{
		Name:    strings.ToLower(name),
		Sub:     strings.ToLower(sub),
		Arg:     rest,
		RawText: text,
	}, nil
}

// Route parses and dispatches a command. Matching prefers the two-word
// "name.sub" key; the single-word key is the fallback, receiving the full
// remainder (including what looked like a subcommand) as its argument.
func (r *Router) Route(ctx context.Context, text string, ev *dispatch.Event) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}

	if cmd.Sub != "" {
		if handler, ok := r.handlers[cmd.Name+"."+cmd.Sub]; ok {
			_, cmd.Arg = splitToken(cmd.Arg)
			return handler(ctx, cmd, ev)
		}
	}

	handler, ok := r.handlers[cmd.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	return handler(ctx, cmd, ev)
}

// splitToken returns the first whitespace-delimited token of s and the
// trimmed remainder.
func splitToken(s string) (tok, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
