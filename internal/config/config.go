package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Oracle providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config is the process configuration. It is built once at startup and
// passed read-only to every component.
type Config struct {
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	Provider     string

	MaxPagesPerBatch int
	OverlapPages     int

	OCREnabled  bool
	OCRLanguage string

	DBPath      string
	DatabaseURL string

	ZoteroAPIKey    string
	ZoteroLibraryID string
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(k string, def bool) bool {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-5-mini"),
		Provider:     strings.ToLower(getEnv("EXAM_ORACLE_PROVIDER", "")),

		MaxPagesPerBatch: getEnvInt("EXAM_MAX_PAGES_PER_BATCH", 5),
		OverlapPages:     getEnvInt("EXAM_OVERLAP_PAGES", 1),

		OCREnabled:  getEnvBool("EXAM_OCR_ENABLED", true),
		OCRLanguage: getEnv("EXAM_OCR_LANGUAGE", "eng"),

		DBPath:      getEnv("EXAM_MCP_DB_PATH", ""),
		DatabaseURL: getEnv("EXAM_MCP_DATABASE_URL", ""),

		ZoteroAPIKey:    getEnv("ZOTERO_API_KEY", ""),
		ZoteroLibraryID: getEnv("ZOTERO_LIBRARY_ID", ""),
	}

	if cfg.Provider == "" {
		cfg.Provider = ProviderGemini
		if cfg.GeminiAPIKey == "" && cfg.OpenAIAPIKey != "" {
			cfg.Provider = ProviderOpenAI
		}
	}
	if cfg.Provider != ProviderGemini && cfg.Provider != ProviderOpenAI {
		return nil, fmt.Errorf("invalid oracle provider: %s (expected '%s' or '%s')", cfg.Provider, ProviderGemini, ProviderOpenAI)
	}

	if cfg.MaxPagesPerBatch < 1 {
		return nil, fmt.Errorf("EXAM_MAX_PAGES_PER_BATCH must be at least 1, got %d", cfg.MaxPagesPerBatch)
	}
	if cfg.OverlapPages < 0 || cfg.OverlapPages >= cfg.MaxPagesPerBatch {
		return nil, fmt.Errorf("EXAM_OVERLAP_PAGES must be in [0, %d), got %d", cfg.MaxPagesPerBatch, cfg.OverlapPages)
	}

	return cfg, nil
}

// APIKey returns the credential for the selected provider
func (c *Config) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// ResolveDBPath returns the SQLite path, defaulting to ~/.exam-mcp/exam.db
func (c *Config) ResolveDBPath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	dbDir := filepath.Join(homeDir, ".exam-mcp")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return filepath.Join(dbDir, "exam.db"), nil
}
