// Package reply produces the bot's conversational answers. It glues the
// prompt assembly, the completion provider and the per-user memory into a
// single entry point the gateway calls for every engaged message.
package reply

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiya-bot/shiya/internal/shiya/llm"
	"github.com/shiya-bot/shiya/internal/shiya/memory"
)

const (
	// FallbackReply is returned when the completion provider fails. The
	// exchange is not recorded in that case.
	FallbackReply = "Sorry, something came up on my end. Let's talk later."
	// fillerReply stands in when the provider returns empty content.
	fillerReply = "♪"

	defaultMaxTokens   = 200
	defaultTemperature = 0.8
)

// Service turns an engaged user message into a reply and updates the
// author's memory afterwards.
type Service struct {
	builder     *memory.ContextBuilder
	mem         *memory.Store
	summarizer  *memory.Summarizer
	provider    llm.Provider
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// ServiceConfig configures a reply Service.
type ServiceConfig struct {
	Builder    *memory.ContextBuilder
	Memory     *memory.Store
	Summarizer *memory.Summarizer
	Provider   llm.Provider
	// MaxTokens caps the completion length. Zero means the default.
	MaxTokens int
	// Temperature for completions. Zero means the default.
	Temperature float64
	Logger      *slog.Logger
}

// NewService creates a reply Service.
func NewService(cfg ServiceConfig) *Service {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		builder:     cfg.Builder,
		mem:         cfg.Memory,
		summarizer:  cfg.Summarizer,
		provider:    cfg.Provider,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Reply answers one user message. On provider failure the fixed fallback
// string is returned and the exchange is not recorded; a failed exchange
// must not enter the author's memory. On success the exchange is appended
// to the author's short-term memory and, when deep enough, summarized
// into small facts.
func (s *Service) Reply(ctx context.Context, userID, displayName, text string, refs []memory.ReferencedUser) string {
	exchangeID := uuid.NewString()
	start := time.Now()

	messages := s.builder.Build(ctx, userID, text, displayName, refs)

	out, err := s.provider.Complete(ctx, llm.Request{
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		s.logger.Error("completion failed",
			"exchange_id", exchangeID,
			"user_id", userID,
			"elapsed", time.Since(start),
			"error", err)
		return FallbackReply
	}
	if out == "" {
		out = fillerReply
	}

	s.mem.AddExchange(ctx, userID, text, out)
	s.summarizer.MaybeSummarize(ctx, userID, len(refs) > 0)

	s.logger.Debug("reply produced",
		"exchange_id", exchangeID,
		"user_id", userID,
		"context_messages", len(messages),
		"elapsed", time.Since(start))
	return out
}
