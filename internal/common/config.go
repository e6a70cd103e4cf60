package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Store    StoreConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
}

// StoreConfig holds record-store (PostgREST) configuration.
type StoreConfig struct {
	BaseURL string
	APIKey  string
	Table   string
	Timeout time.Duration
}

// OCRConfig holds recognition-engine configuration.
type OCRConfig struct {
	Tesseract  string
	Pdftoppm   string
	Magick     string
	Language   string
	DPI        int
	MaxPages   int
	Preprocess bool
}

// LLMConfig holds provider selection and credentials.
type LLMConfig struct {
	Provider     string
	Model        string
	OpenAIKey    string
	AnthropicKey string
	Timeout      time.Duration
}

// PipelineConfig holds orchestration behavior flags.
type PipelineConfig struct {
	// Mode is "manual" (per-stage triggers) or "auto" (upload chains OCR+LLM).
	Mode     string
	CacheDir string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			BaseURL: getEnv("SUPABASE_URL", ""),
			APIKey:  getEnv("SUPABASE_API_KEY", ""),
			Table:   getEnv("SUPABASE_TABLE", "invoices"),
			Timeout: getEnvAsDuration("STORE_TIMEOUT", 30*time.Second),
		},
		OCR: OCRConfig{
			Tesseract:  getEnv("TESSERACT_CMD", "tesseract"),
			Pdftoppm:   getEnv("PDFTOPPM_CMD", "pdftoppm"),
			Magick:     getEnv("MAGICK_CMD", "magick"),
			Language:   getEnv("OCR_LANG", "por"),
			DPI:        getEnvAsInt("OCR_DPI", 300),
			MaxPages:   getEnvAsInt("OCR_MAX_PAGES", 0),
			Preprocess: getEnvAsBool("OCR_PREPROCESS", true),
		},
		LLM: LLMConfig{
			Provider:     getEnv("LLM_PROVIDER", "openai"),
			Model:        getEnv("LLM_MODEL", ""),
			OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
			AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),
			Timeout:      getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			Mode:     getEnv("PIPELINE_MODE", "manual"),
			CacheDir: getEnv("CACHE_DIR", "./cache"),
		},
	}
}

// Validate checks that the configuration can support store operations.
func (c *Config) Validate() error {
	if c.Store.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "SUPABASE_URL is required", ErrConfiguration)
	}
	if c.Store.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "SUPABASE_API_KEY is required", ErrConfiguration)
	}
	if c.Pipeline.Mode != "manual" && c.Pipeline.Mode != "auto" {
		return NewAppError("CONFIG_ERROR", "PIPELINE_MODE must be manual or auto", ErrConfiguration)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
