// Package app wires the Shiya bot together: database, Matrix gateway,
// memory, character configuration, command router and the reply pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shiya-bot/shiya/internal/shiya/character"
	"github.com/shiya-bot/shiya/internal/shiya/commands"
	"github.com/shiya-bot/shiya/internal/shiya/dispatch"
	"github.com/shiya-bot/shiya/internal/shiya/llm"
	"github.com/shiya-bot/shiya/internal/shiya/matrix"
	"github.com/shiya-bot/shiya/internal/shiya/memory"
	"github.com/shiya-bot/shiya/internal/shiya/reply"
	"github.com/shiya-bot/shiya/internal/shiya/store"
)

// promptReply answers a bare mention with no message text.
const promptReply = "Looking for me? What can I do for you?"

// typingTimeout bounds how long the typing indicator stays on if the
// completion call stalls.
const typingTimeout = 30 * time.Second

// Config holds application configuration.
type Config struct {
	DatabasePath string
	Matrix       matrix.Config
	OpenAI       llm.Config

	// Prefix marks command messages, e.g. "!shiya".
	Prefix string
	// ReplyChance is the engagement-gate probability. Zero means the
	// default.
	ReplyChance float64
	// ShortMax caps the short-term turns kept per user. Zero means the
	// default.
	ShortMax int
	// MaxTokens and Temperature apply to conversational completions.
	MaxTokens   int
	Temperature float64

	// CharactersPath is the character configuration YAML file.
	CharactersPath string
	// CharacterName selects the active character profile.
	CharacterName string
}

// App is the Shiya bot application.
type App struct {
	config     *Config
	store      *store.Store
	matrix     *matrix.Client
	memory     *memory.Store
	characters *character.Config
	policy     *dispatch.Policy
	router     *commands.Router
	replySvc   *reply.Service
}

// New creates the Shiya application.
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Inject the DB so the client can persist the sync token across
	// restarts.
	matrixCfg := config.Matrix
	matrixCfg.DB = st.DB()
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	mem := memory.NewStore(memory.NewSQLiteDocStore(st.DB()), memory.StoreConfig{
		ShortMax: config.ShortMax,
		Logger:   slog.Default(),
	})

	characters, err := character.Load(config.CharactersPath, config.CharacterName, slog.Default())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load character configuration: %w", err)
	}

	provider := llm.New(config.OpenAI)

	summarizer := &memory.Summarizer{
		Memory:   mem,
		Provider: provider,
		Logger:   slog.Default(),
	}

	replySvc := reply.NewService(reply.ServiceConfig{
		Builder: &memory.ContextBuilder{
			Memory:     mem,
			BasePrompt: characters.BasePrompt(config.CharacterName),
		},
		Memory:      mem,
		Summarizer:  summarizer,
		Provider:    provider,
		MaxTokens:   config.MaxTokens,
		Temperature: config.Temperature,
		Logger:      slog.Default(),
	})

	policy := &dispatch.Policy{
		BotUserID:     config.Matrix.UserID,
		MentionTokens: []string{config.Matrix.UserID},
		Prefix:        config.Prefix,
		ReplyChance:   config.ReplyChance,
	}

	router := commands.NewRouter(config.Prefix)
	handlers := commands.NewHandlers(commands.HandlersConfig{
		Memory:     mem,
		Characters: characters,
		Resolver:   matrixClient,
		Prefix:     config.Prefix,
	})
	router.Register("help", handlers.HandleHelp)
	router.Register("whoami", handlers.HandleWhoami)
	router.Register("mem", handlers.HandleMem)
	router.Register("remember", handlers.HandleRemember)
	router.Register("forget", handlers.HandleForget)
	router.Register("whois", handlers.HandleWhois)
	router.Register("persona.show", handlers.HandlePersonaShow)
	router.Register("persona.set", handlers.HandlePersonaSet)
	router.Register("persona.add", handlers.HandlePersonaAdd)
	router.Register("persona.reset", handlers.HandlePersonaReset)
	router.Register("characters.reload", handlers.HandleCharactersReload)

	return &App{
		config:     config,
		store:      st,
		matrix:     matrixClient,
		memory:     mem,
		characters: characters,
		policy:     policy,
		router:     router,
		replySvc:   replySvc,
	}, nil
}

// Run starts the application and blocks until an interrupt signal.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Plain-text mentions commonly use the display name, so recognize it
	// alongside the raw user ID. Best-effort: on lookup failure only the
	// user ID is matched.
	if name, err := a.matrix.GetDisplayName(a.config.Matrix.UserID); err == nil && name != "" {
		a.policy.MentionTokens = append(a.policy.MentionTokens, "@"+name, name)
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	slog.Info("Shiya is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the application.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage processes one inbound room message.
func (a *App) handleMessage(ctx context.Context, ev *dispatch.Event) {
	decision := a.policy.Decide(*ev)

	switch decision.Action {
	case dispatch.ActionDiscard:
		return

	case dispatch.ActionCommand:
		out, err := a.router.Route(ctx, decision.CommandText, ev)
		if err != nil {
			if errors.Is(err, commands.ErrUnknownCommand) {
				out = fmt.Sprintf("Hmm... I don't know that one. Try %s help.", a.config.Prefix)
			} else {
				slog.Error("command failed", "author", ev.AuthorID, "err", err)
				out = fmt.Sprintf("That didn't work: %v", err)
			}
		}
		a.reply(ev, out)

	case dispatch.ActionPrompt:
		a.reply(ev, promptReply)

	case dispatch.ActionReply:
		if err := a.matrix.SetTyping(ev.RoomID, true, typingTimeout); err != nil {
			slog.Debug("set typing", "room", ev.RoomID, "err", err)
		}
		defer func() {
			if err := a.matrix.SetTyping(ev.RoomID, false, 0); err != nil {
				slog.Debug("clear typing", "room", ev.RoomID, "err", err)
			}
		}()

		refs := make([]memory.ReferencedUser, 0, len(decision.ReferencedUsers))
		for _, m := range decision.ReferencedUsers {
			refs = append(refs, memory.ReferencedUser{ID: m.ID, DisplayName: m.DisplayName})
		}

		out := a.replySvc.Reply(ctx, ev.AuthorID, ev.AuthorName, decision.Text, refs)
		a.reply(ev, out)
	}
}

// reply sends a threaded reply to the triggering event.
func (a *App) reply(ev *dispatch.Event, text string) {
	if err := a.matrix.ReplyToMessage(ev.RoomID, ev.ID, text); err != nil {
		slog.Error("failed to send reply", "room", ev.RoomID, "err", err)
	}
}
