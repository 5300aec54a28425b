// Package character loads Shiya's static character profiles from a YAML
// configuration file. A profile pairs a persona description with a list of
// base facts; the active profile seeds the system prompt assembled by the
// context builder.
//
// The file is validated against an embedded JSON schema before it is
// accepted, both at startup and on reload, so a half-edited file never
// replaces a working configuration.
package character

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed characters.schema.json
var schemaJSON string

// characterSchema is compiled once at package init; the schema is embedded
// and must be valid.
var characterSchema = jsonschema.MustCompileString("characters.schema.json", schemaJSON)

// Profile is one named character: a persona description plus base facts.
type Profile struct {
	Description string   `yaml:"description"`
	Facts       []string `yaml:"facts"`
}

// file is the on-disk document shape.
type file struct {
	Characters map[string]Profile `yaml:"characters"`
}

// Config holds the loaded character profiles. Safe for concurrent reads
// while a reload is in progress.
type Config struct {
	path        string
	defaultName string
	logger      *slog.Logger

	mu         sync.RWMutex
	characters map[string]Profile
}

// fallbackProfile is used when neither the requested profile nor the
// configured default exists.
var fallbackProfile = Profile{
	Description: "You are Shiya, an even-tempered and composed person.",
}

// Load reads and validates the character configuration at path. A missing
// file is not an error — the bot runs on the built-in fallback profile and
// the operator can fix the path and reload. A present but invalid file is
// an error.
func Load(path, defaultName string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Config{
		path:        path,
		defaultName: defaultName,
		logger:      logger,
		characters:  make(map[string]Profile),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("character config not found, using built-in fallback profile", "path", path)
		return c, nil
	}

	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the configuration file, replacing the loaded profiles
// only when the new document parses and validates. On failure the previous
// profiles stay active.
func (c *Config) Reload() error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("character config: read %s: %w", c.path, err)
	}

	// Validate the raw document against the schema before decoding into
	// the typed form. The YAML value is round-tripped through JSON because
	// the schema validator expects JSON-decoded values.
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("character config: parse yaml: %w", err)
	}
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("character config: convert to json: %w", err)
	}
	if err := json.Unmarshal(jsonDoc, &doc); err != nil {
		return fmt.Errorf("character config: reparse json: %w", err)
	}
	if err := characterSchema.Validate(doc); err != nil {
		return fmt.Errorf("character config: schema validation: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("character config: decode: %w", err)
	}

	c.mu.Lock()
	c.characters = f.Characters
	c.mu.Unlock()

	c.logger.Info("character configuration loaded", "path", c.path, "profiles", len(f.Characters))
	return nil
}

// Profile returns the named profile, falling back to the configured
// default profile and finally to the built-in fallback.
func (c *Config) Profile(name string) Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.characters[name]; ok {
		return p
	}
	if p, ok := c.characters[c.defaultName]; ok {
		return p
	}
	return fallbackProfile
}

// Len returns the number of loaded profiles.
func (c *Config) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.characters)
}

// BasePrompt assembles the persona template for the named character: the
// description followed by its base facts on one labeled line.
func (c *Config) BasePrompt(name string) string {
	p := c.Profile(name)
	prompt := p.Description
	if len(p.Facts) > 0 {
		prompt += "\nCharacter base facts: " + strings.Join(p.Facts, "; ")
	}
	return prompt
}
