// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	DBPath         string
	AllowedOrigins []string
	FrontendURL    string
	LogLevel       slog.Level
	LLM            LLMConfig
	Chat           ChatConfig
	ToolsCacheTTL  time.Duration
	MatchPageSize  int
}

// LLMConfig configures the reasoning service client and agent.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	MaxConcurrency int
	MaxToolRounds  int
	// MemoryTokenBudget bounds each session's remembered turns. 0 keeps all.
	MemoryTokenBudget int
}

// ChatConfig configures the websocket intake sessions.
type ChatConfig struct {
	IdleTimeout  time.Duration
	StreamTokens bool
	RateLimit    int
	RateWindow   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	level, err := ParseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "./data/intake.db"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		LogLevel:       level,
		LLM: LLMConfig{
			BaseURL:           getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:           getEnvDuration("LLM_TIMEOUT", 2*time.Minute),
			MaxRetries:        getEnvInt("LLM_MAX_RETRIES", 3),
			MaxConcurrency:    getEnvInt("LLM_MAX_CONCURRENCY", 16),
			MaxToolRounds:     getEnvInt("LLM_MAX_TOOL_ROUNDS", 8),
			MemoryTokenBudget: getEnvInt("MEMORY_TOKEN_BUDGET", 8000),
		},
		Chat: ChatConfig{
			IdleTimeout:  getEnvDuration("SESSION_IDLE_TIMEOUT", 5*time.Minute),
			StreamTokens: getEnvBool("CHAT_STREAM_TOKENS", false),
			RateLimit:    getEnvInt("CHAT_RATE_LIMIT", 30),
			RateWindow:   getEnvDuration("CHAT_RATE_WINDOW", time.Minute),
		},
		ToolsCacheTTL: getEnvDuration("TOOLS_CACHE_TTL", 10*time.Minute),
		MatchPageSize: getEnvInt("MATCH_PAGE_SIZE", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL cannot be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("OPENAI_MODEL cannot be empty")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must be >= 0")
	}
	if c.LLM.MaxConcurrency <= 0 {
		return fmt.Errorf("LLM_MAX_CONCURRENCY must be > 0")
	}
	if c.LLM.MaxToolRounds <= 0 {
		return fmt.Errorf("LLM_MAX_TOOL_ROUNDS must be > 0")
	}
	if c.LLM.MemoryTokenBudget < 0 {
		return fmt.Errorf("MEMORY_TOKEN_BUDGET must be >= 0")
	}
	if c.Chat.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be > 0")
	}
	if c.Chat.RateLimit <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT must be > 0")
	}
	if c.Chat.RateWindow <= 0 {
		return fmt.Errorf("CHAT_RATE_WINDOW must be > 0")
	}
	if c.ToolsCacheTTL < 0 {
		return fmt.Errorf("TOOLS_CACHE_TTL must be >= 0")
	}
	if c.MatchPageSize <= 0 {
		return fmt.Errorf("MATCH_PAGE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// ParseLogLevel maps debug, info, warn or error onto a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
