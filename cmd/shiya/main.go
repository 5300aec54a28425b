package main

import (
	"fmt"
	"os"
	"time"

	"github.com/shiya-bot/shiya/common/environment"
	"github.com/shiya-bot/shiya/common/version"
	"github.com/shiya-bot/shiya/internal/shiya/app"
	"github.com/shiya-bot/shiya/internal/shiya/dispatch"
	"github.com/shiya-bot/shiya/internal/shiya/llm"
	"github.com/shiya-bot/shiya/internal/shiya/matrix"
	"github.com/shiya-bot/shiya/internal/shiya/memory"
)

func main() {
	fmt.Printf("Shiya Chat Bot\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	shiya, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Shiya: %v\n", err)
		os.Exit(1)
	}
	defer shiya.Stop()

	if err := shiya.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Shiya: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables. Missing
// credentials abort startup; everything else has a sensible default.
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}
	apiKey, err := environment.RequiredString("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./shiya.db"),
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
			Rooms:       environment.StringSliceOr("MATRIX_ROOMS", nil),
		},
		OpenAI: llm.Config{
			APIKey:  apiKey,
			BaseURL: environment.StringOr("OPENAI_BASE_URL", ""),
			Model:   environment.StringOr("OPENAI_MODEL", ""),
			Timeout: environment.DurationOr("OPENAI_TIMEOUT", 20*time.Second),
		},
		Prefix:         environment.StringOr("BOT_PREFIX", "!shiya"),
		ReplyChance:    environment.Float64Or("REPLY_CHANCE", dispatch.DefaultReplyChance),
		ShortMax:       environment.IntOr("SHORT_MAX", memory.DefaultShortMax),
		MaxTokens:      environment.IntOr("OPENAI_MAX_TOKENS", 200),
		Temperature:    environment.Float64Or("OPENAI_TEMPERATURE", 0.8),
		CharactersPath: environment.StringOr("CHARACTERS_PATH", "./characters.yaml"),
		CharacterName:  environment.StringOr("CHARACTER_NAME", "Shiya"),
	}, nil
}
