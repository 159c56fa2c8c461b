package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/workshop-crew/services/routing"
	"github.com/upb/workshop-crew/utils"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: nil disables run persistence
	Auth          AuthConfig
	LLM           LLMConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // covers a full attempt cascade
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	InitSchema       bool
}

// AuthConfig holds bearer token configuration. An empty JWTSecret disables auth.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// Enabled reports whether run endpoints require a bearer token
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// LLMConfig holds the openrouter configuration the attempt plan is built from
type LLMConfig struct {
	BaseURL          string            `validate:"required,url"`
	Model            string            `validate:"required"`
	FallbackBaseURLs []string          `validate:"dive,url"`
	FallbackModels   []string          `validate:"dive,required"`
	Headers          map[string]string `validate:"dive,keys,required,endkeys"`

	OpenRouterAPIKey string
	OpenAIAPIKey     string
	SiteURL          string `validate:"omitempty,url"`
	AppName          string

	Timeout     time.Duration `validate:"gt=0"`
	Temperature float64       `validate:"gte=0,lte=2"`
	MaxTokens   int           `validate:"gte=0"`
}

// Snapshot returns the read-only view the attempt planner works from
func (l LLMConfig) Snapshot() routing.Snapshot {
	snap := routing.Snapshot{
		BaseURL:          l.BaseURL,
		Model:            l.Model,
		FallbackBaseURLs: append([]string(nil), l.FallbackBaseURLs...),
		FallbackModels:   append([]string(nil), l.FallbackModels...),
	}
	if len(l.Headers) > 0 {
		snap.Headers = make(map[string]string, len(l.Headers))
		for k, v := range l.Headers {
			snap.Headers[k] = v
		}
	}
	return snap
}

// APIKeys maps provider names to their configured key
func (l LLMConfig) APIKeys() map[string]string {
	openai := l.OpenAIAPIKey
	if openai == "" {
		openai = l.OpenRouterAPIKey
	}
	return map[string]string{
		routing.ProviderOpenRouter: l.OpenRouterAPIKey,
		routing.ProviderOpenAI:     openai,
	}
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", ""),
		},
		LLM: LLMConfig{
			BaseURL:          getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Model:            getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
			FallbackBaseURLs: getEnvAsList("OPENROUTER_FALLBACK_BASE_URLS", nil),
			FallbackModels:   getEnvAsList("OPENROUTER_FALLBACK_MODELS", nil),
			Headers:          getEnvAsMap("OPENROUTER_HEADERS"),
			OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			SiteURL:          getEnv("OPENROUTER_SITE_URL", ""),
			AppName:          getEnv("OPENROUTER_APP_NAME", "workshop-crew"),
			Timeout:          getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
			Temperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 2048),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c.LLM); err != nil {
		return fmt.Errorf("llm configuration: %w", err)
	}

	// Database validation when persistence is enabled
	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.IsProduction() {
		if c.LLM.OpenRouterAPIKey == "" && c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("an LLM API key is required in production")
		}
		if !c.Auth.Enabled() {
			return fmt.Errorf("auth JWT secret is required in production")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// PersistenceEnabled reports whether a database is configured
func (c *Config) PersistenceEnabled() bool {
	return c.Database != nil
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither is set.
func loadDatabaseConfig() *DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:      getEnvAsBool("DB_INIT_SCHEMA", true),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return &pool
	}

	host := getEnv("DB_HOST", "")
	if host == "" {
		return nil
	}
	pool.Host = host
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "crew")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "workshop_crew")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return &pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvAsMap parses K=V pairs separated by commas. Pairs without '=' are skipped.
func getEnvAsMap(key string) map[string]string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(valueStr, ",") {
		k, v, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
