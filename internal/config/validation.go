package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
)

// minTokenSecretLen mirrors the auth package's minimum HMAC key size.
const minTokenSecretLen = 32

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 0. Check for nil config
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and API key validation
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q, must be one of: %v", ErrInvalidProvider, c.Provider,
			[]string{ProviderGemini, ProviderOllama, ProviderOpenAI})
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// MaxTokens range: 1 to 2097152 (Gemini 2.5 max context window)
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// 3. Backend validation
	if err := c.Backend.validate(); err != nil {
		return err
	}

	// 4. Agent loop validation
	if c.Agent.MaxIterations < 1 || c.Agent.MaxIterations > 1000 {
		return fmt.Errorf("%w: must be between 1 and 1000, got %d",
			ErrInvalidMaxIterations, c.Agent.MaxIterations)
	}

	// 5. Auth validation
	if err := c.Auth.validate(); err != nil {
		return err
	}

	// 6. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// Warn if using default dev password (but don't block - user might be in dev)
	if c.PostgresPassword == "todd_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	// Validate password strength (minimum 8 characters)
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

func (b *BackendConfig) validate() error {
	if b.Endpoint == "" {
		return fmt.Errorf("%w: endpoint cannot be empty", ErrInvalidBackendEndpoint)
	}
	u, err := url.Parse(b.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackendEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidBackendEndpoint, u.Scheme)
	}
	if b.ServiceToken == "" {
		return fmt.Errorf("%w: set TODD_SERVICE_TOKEN or backend.service_token", ErrMissingServiceToken)
	}
	if b.BackoffInitial <= 0 {
		return fmt.Errorf("%w: backoff_initial must be positive, got %v", ErrInvalidBackoff, b.BackoffInitial)
	}
	if b.BackoffMax < b.BackoffInitial {
		return fmt.Errorf("%w: backoff_max (%v) must be >= backoff_initial (%v)",
			ErrInvalidBackoff, b.BackoffMax, b.BackoffInitial)
	}
	if b.BackoffMaxAttempts < 1 {
		return fmt.Errorf("%w: backoff_max_attempts must be at least 1, got %d",
			ErrInvalidBackoff, b.BackoffMaxAttempts)
	}
	return nil
}

func (a *AuthConfig) validate() error {
	if len(a.TokenSecret) < minTokenSecretLen {
		return fmt.Errorf("%w: token_secret must be at least %d bytes (set TODD_TOKEN_SECRET)",
			ErrInvalidTokenSecret, minTokenSecretLen)
	}
	if a.Username == "" {
		return fmt.Errorf("%w: username cannot be empty (set TODD_USER)", ErrInvalidUser)
	}
	if a.Database == "" {
		return fmt.Errorf("%w: database cannot be empty (set TODD_DATABASE)", ErrInvalidUser)
	}
	return nil
}
