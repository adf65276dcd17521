package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Gemini API
	GeminiAPIKey     string
	GeminiTextModel  string // text/vision model (default: gemini-2.5-flash)
	GeminiImageModel string // image generation model (default: gemini-2.5-flash-image-preview)

	// Database
	DatabasePath string

	// HTTP server
	HTTPAddr string

	// RequestTimeout bounds one full backend call sequence (generation plus
	// scoring can take a while).
	RequestTimeout time.Duration

	// OutputDir is where the play command writes generated images.
	OutputDir string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiTextModel:  getEnv("GEMINI_TEXT_MODEL", ""),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", ""),
		DatabasePath:     getEnv("DATABASE_PATH", "data/promptgym.db"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		OutputDir:        getEnv("OUTPUT_DIR", "out"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	var err error
	cfg.RequestTimeout, err = time.ParseDuration(getEnv("REQUEST_TIMEOUT", "3m"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	return nil
}

// ValidateForGemini checks configuration needed to call the Gemini API.
func (c *Config) ValidateForGemini() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}

// ValidateForServe checks all configuration needed for serve mode.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.ValidateForGemini(); err != nil {
		return err
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	return nil
}

// ValidateForPlay checks configuration needed for an interactive session.
func (c *Config) ValidateForPlay() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.ValidateForGemini(); err != nil {
		return err
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
