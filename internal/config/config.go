// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.todd/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: Provider, model selection, temperature, max tokens
//   - Backend: Task backend endpoint, service token, health checking, backoff
//   - Auth: Per-user token minting (see auth section)
//   - Agent: Conversation loop bounds and status cadence
//   - Storage: PostgreSQL connection for session history (see storage.go)
//   - Observability: Datadog APM tracing (see observability.go)
//
// Security: Sensitive data (passwords, tokens) are never logged; config directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidBackendEndpoint indicates the backend endpoint URL is invalid.
	ErrInvalidBackendEndpoint = errors.New("invalid backend endpoint")

	// ErrMissingServiceToken indicates the backend service token is not set.
	ErrMissingServiceToken = errors.New("missing service token")

	// ErrInvalidBackoff indicates the reconnect backoff settings are invalid.
	ErrInvalidBackoff = errors.New("invalid backoff")

	// ErrInvalidMaxIterations indicates the agent iteration cap is out of range.
	ErrInvalidMaxIterations = errors.New("invalid max iterations")

	// ErrInvalidTokenSecret indicates the user token signing secret is missing or too short.
	ErrInvalidTokenSecret = errors.New("invalid token secret")

	// ErrInvalidUser indicates the local user identity is incomplete.
	ErrInvalidUser = errors.New("invalid user")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// BackendConfig holds the task backend connection settings.
type BackendConfig struct {
	// Endpoint is the MCP streamable HTTP endpoint of the task backend.
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// ServiceToken authenticates the long-lived base connection.
	ServiceToken string `mapstructure:"service_token" json:"service_token"` // SENSITIVE: masked in MarshalJSON
	// ConnectTimeout bounds the initial dial plus tool discovery.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
	// CallTimeout bounds individual tool invocations.
	CallTimeout time.Duration `mapstructure:"call_timeout" json:"call_timeout"`
	// HealthInterval is the periodic probe cadence.
	HealthInterval time.Duration `mapstructure:"health_interval" json:"health_interval"`
	// BackoffInitial and BackoffMax shape reconnect delays; BackoffMaxAttempts
	// bounds the retry budget before the backend is marked failed.
	BackoffInitial     time.Duration `mapstructure:"backoff_initial" json:"backoff_initial"`
	BackoffMax         time.Duration `mapstructure:"backoff_max" json:"backoff_max"`
	BackoffMaxAttempts int           `mapstructure:"backoff_max_attempts" json:"backoff_max_attempts"`
}

// AuthConfig holds per-user token minting settings.
type AuthConfig struct {
	// TokenSecret signs user tokens (HS256). Minimum 32 bytes.
	TokenSecret string `mapstructure:"token_secret" json:"token_secret"` // SENSITIVE: masked in MarshalJSON
	// TokenTTL is the minted token lifetime.
	TokenTTL time.Duration `mapstructure:"token_ttl" json:"token_ttl"`
	// Username and Database identify the local user in single-user mode.
	Username string `mapstructure:"username" json:"username"`
	// Database is the user's task namespace on the backend.
	Database string `mapstructure:"database" json:"database"`
}

// AgentConfig holds conversation loop settings.
type AgentConfig struct {
	// MaxIterations bounds the model/tool cycle per conversation.
	MaxIterations int `mapstructure:"max_iterations" json:"max_iterations"`
	// StatusInterval is the cadence of the periodic activity indicator.
	StatusInterval time.Duration `mapstructure:"status_interval" json:"status_interval"`
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // Model identifier (e.g., "gemini-2.5-flash", "llama3.3", "gpt-4o")
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Task backend configuration
	Backend BackendConfig `mapstructure:"backend" json:"backend"`

	// Per-user token configuration
	Auth AuthConfig `mapstructure:"auth" json:"auth"`

	// Conversation loop configuration
	Agent AgentConfig `mapstructure:"agent" json:"agent"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability configuration (see observability.go for type definition)
	Datadog DatadogConfig `mapstructure:"datadog" json:"datadog"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.todd/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".todd")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Backend defaults
	viper.SetDefault("backend.endpoint", "http://localhost:8321/mcp")
	viper.SetDefault("backend.connect_timeout", "30s")
	viper.SetDefault("backend.call_timeout", "30s")
	viper.SetDefault("backend.health_interval", "30s")
	viper.SetDefault("backend.backoff_initial", "1s")
	viper.SetDefault("backend.backoff_max", "30s")
	viper.SetDefault("backend.backoff_max_attempts", 5)

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("auth.database", "")

	// Agent defaults
	viper.SetDefault("agent.max_iterations", 50)
	viper.SetDefault("agent.status_interval", "5s")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "todd")
	viper.SetDefault("postgres_password", "todd_dev_password")
	viper.SetDefault("postgres_db_name", "todd")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Datadog defaults
	viper.SetDefault("datadog.agent_host", "localhost:4318")
	viper.SetDefault("datadog.environment", "dev")
	viper.SetDefault("datadog.service_name", "todd")
}

// bindEnvVariables binds environment variable overrides explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// AI provider and model overrides
	mustBind("provider", "TODD_PROVIDER")
	mustBind("model_name", "TODD_MODEL_NAME")
	mustBind("ollama_host", "TODD_OLLAMA_HOST")

	// Backend secrets and endpoint
	mustBind("backend.endpoint", "TODD_BACKEND_ENDPOINT")
	mustBind("backend.service_token", "TODD_SERVICE_TOKEN")

	// User identity and token signing
	mustBind("auth.token_secret", "TODD_TOKEN_SECRET")
	mustBind("auth.username", "TODD_USER")
	mustBind("auth.database", "TODD_DATABASE")

	// Datadog API key (optional, for observability)
	mustBind("datadog.api_key", "DD_API_KEY")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper
	// NOTE: OPENAI_API_KEY is read directly by Genkit OpenAI plugin, not via Viper
	// Validation checks their presence based on the selected provider in cfg.Validate()
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// Previous attempts:
// - "****" failed: passwords with "*" leaked
// - "[REDACTED]" failed: passwords with "A", "D", "E", etc. leaked
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
// For longer secrets, shows partial chars with unique separator.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	// Example attack: input "00***" → output "00******" contains "00***"
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	// Example: "my_long_secret_key_123" → "my<████████>23"
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - Backend.ServiceToken
//   - Auth.TokenSecret
//   - Datadog.APIKey (via DatadogConfig.MarshalJSON)
//
// When adding new sensitive fields, update this method or the nested struct's MarshalJSON.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.Backend.ServiceToken = maskSecret(a.Backend.ServiceToken)
	a.Auth.TokenSecret = maskSecret(a.Auth.TokenSecret)
	// Note: Datadog.APIKey is handled by its own MarshalJSON
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
