package config

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "short secret fully masked", input: "abc", want: maskedValue},
		{name: "eight chars fully masked", input: "12345678", want: maskedValue},
		{name: "long secret partially shown", input: "my_long_secret_key_123", want: "my<" + maskedValue + ">23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := maskSecret(tt.input); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMaskSecret_NeverLeaksShortSecrets(t *testing.T) {
	t.Parallel()

	secrets := []string{"a", "pass", "00***", "hunter2!"}
	for _, s := range secrets {
		masked := maskSecret(s)
		if strings.Contains(masked, s) {
			t.Errorf("maskSecret(%q) = %q leaks the secret", s, masked)
		}
	}
}

func TestConfig_MarshalJSON_MasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Provider:         ProviderGemini,
		ModelName:        "gemini-2.5-flash",
		PostgresPassword: "super_secret_db_password",
		Backend: BackendConfig{
			Endpoint:     "https://tasks.example.com/mcp",
			ServiceToken: "service-token-value-12345",
		},
		Auth: AuthConfig{
			TokenSecret: "signing-secret-value-1234567890ab",
		},
		Datadog: DatadogConfig{
			APIKey: "datadog-api-key-value",
		},
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(data)

	for _, secret := range []string{
		"super_secret_db_password",
		"service-token-value-12345",
		"signing-secret-value-1234567890ab",
		"datadog-api-key-value",
	} {
		if strings.Contains(out, secret) {
			t.Errorf("marshaled config leaks secret %q:\n%s", secret, out)
		}
	}

	// Non-sensitive fields survive.
	if !strings.Contains(out, "tasks.example.com") {
		t.Error("marshaled config should keep the backend endpoint")
	}
}

func TestConfig_String_MasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := Config{PostgresPassword: "super_secret_db_password"}
	if strings.Contains(cfg.String(), "super_secret_db_password") {
		t.Error("String() leaks the PostgreSQL password")
	}
}

func TestFullModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider string
		model    string
		want     string
	}{
		{name: "gemini default", provider: ProviderGemini, model: "gemini-2.5-flash", want: "googleai/gemini-2.5-flash"},
		{name: "ollama", provider: ProviderOllama, model: "llama3.3", want: "ollama/llama3.3"},
		{name: "openai", provider: ProviderOpenAI, model: "gpt-4o", want: "openai/gpt-4o"},
		{name: "already qualified", provider: ProviderGemini, model: "ollama/mistral", want: "ollama/mistral"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{Provider: tt.provider, ModelName: tt.model}
			if got := cfg.FullModelName(); got != tt.want {
				t.Errorf("FullModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

// validTestConfig returns a config that passes Validate when
// GEMINI_API_KEY is set.
func validTestConfig() *Config {
	return &Config{
		Provider:    ProviderGemini,
		ModelName:   "gemini-2.5-flash",
		Temperature: 0.7,
		MaxTokens:   2048,
		Backend: BackendConfig{
			Endpoint:           "http://localhost:8321/mcp",
			ServiceToken:       "service-token",
			ConnectTimeout:     30 * time.Second,
			CallTimeout:        30 * time.Second,
			HealthInterval:     30 * time.Second,
			BackoffInitial:     time.Second,
			BackoffMax:         30 * time.Second,
			BackoffMaxAttempts: 5,
		},
		Auth: AuthConfig{
			TokenSecret: strings.Repeat("s", 32),
			TokenTTL:    24 * time.Hour,
			Username:    "ada",
			Database:    "ada-tasks",
		},
		Agent: AgentConfig{
			MaxIterations:  50,
			StatusInterval: 5 * time.Second,
		},
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "todd",
		PostgresPassword: "development_password",
		PostgresDBName:   "todd",
		PostgresSSLMode:  "disable",
	}
}
