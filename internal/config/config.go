package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeCloud Mode = "cloud"
)

const (
	StorageMemory    = "memory"
	StorageSQLite    = "sqlite"
	StorageFirestore = "firestore"
)

type Config struct {
	Mode Mode `env:"BRANDLAB_MODE" envDefault:"local"`

	Port     string `env:"BRANDLAB_PORT" envDefault:"8080"`
	LogLevel string `env:"BRANDLAB_LOG_LEVEL" envDefault:"info"`

	StorageBackend string `env:"BRANDLAB_STORAGE_BACKEND" envDefault:"memory"` // memory, sqlite or firestore
	SQLitePath     string `env:"BRANDLAB_SQLITE_PATH" envDefault:"brandlab.db"`
	SeedDemoData   bool   `env:"BRANDLAB_SEED_DEMO" envDefault:"true"`

	GCPProjectID string `env:"BRANDLAB_GCP_PROJECT"`
	GCPLocation  string `env:"BRANDLAB_GCP_LOCATION" envDefault:"us-central1"`

	// LLMBackend is pinned on every new session. Empty picks mock in local mode.
	LLMBackend      string `env:"BRANDLAB_LLM_BACKEND"`
	ModelName       string `env:"BRANDLAB_MODEL_NAME"`
	GeminiAPIKey    string `env:"BRANDLAB_GEMINI_API_KEY"`
	OpenAIAPIKey    string `env:"BRANDLAB_OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"BRANDLAB_ANTHROPIC_API_KEY"`

	LLMTimeout    time.Duration `env:"BRANDLAB_LLM_TIMEOUT" envDefault:"30s"`
	ReportTimeout time.Duration `env:"BRANDLAB_REPORT_TIMEOUT" envDefault:"2m"`

	OTELEndpoint string `env:"BRANDLAB_OTEL_ENDPOINT"`
}

// defaultModels is used when ModelName is empty.
var defaultModels = map[string]string{
	"gemini":    "gemini-2.5-flash",
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-sonnet-4-5",
	"mock":      "mock-1",
}

// Load reads all env vars and builds the config.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads env vars without validating them, so callers can layer
// overrides before calling Normalize.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Normalize fills derived defaults and validates the combination of settings.
// It is called again after CLI overrides are applied.
func (c *Config) Normalize() error {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	if c.Mode != ModeCloud {
		c.Mode = ModeLocal
	}

	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	switch c.StorageBackend {
	case StorageMemory, StorageSQLite, StorageFirestore:
	case "":
		c.StorageBackend = StorageMemory
	default:
		return fmt.Errorf("unsupported storage backend %q", c.StorageBackend)
	}

	c.LLMBackend = strings.ToLower(strings.TrimSpace(c.LLMBackend))
	if c.LLMBackend == "" {
		if c.Mode == ModeLocal {
			c.LLMBackend = "mock"
		} else {
			c.LLMBackend = "gemini"
		}
	}
	def, ok := defaultModels[c.LLMBackend]
	if !ok {
		return fmt.Errorf("unsupported llm backend %q", c.LLMBackend)
	}
	if c.ModelName == "" {
		c.ModelName = def
	}

	if c.StorageBackend == StorageFirestore && c.GCPProjectID == "" {
		return fmt.Errorf("BRANDLAB_GCP_PROJECT is required for the firestore storage backend")
	}
	switch c.LLMBackend {
	case "gemini":
		if c.GeminiAPIKey == "" && c.GCPProjectID == "" {
			return fmt.Errorf("gemini backend needs BRANDLAB_GEMINI_API_KEY or BRANDLAB_GCP_PROJECT")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("BRANDLAB_OPENAI_API_KEY is required for the openai backend")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("BRANDLAB_ANTHROPIC_API_KEY is required for the anthropic backend")
		}
	}

	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 30 * time.Second
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = 2 * time.Minute
	}
	return nil
}
