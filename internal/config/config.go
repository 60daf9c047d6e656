// Package config handles Kir configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIKeyEnv is the environment variable consulted for provider
// credentials when the config file does not set them inline.
const DefaultAPIKeyEnv = "GROQ_API_KEY"

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/kir/config.yaml, /etc/kir/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kir", "config.yaml"))
	}

	paths = append(paths, "/etc/kir/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Kir configuration.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	Provider  ProviderConfig `yaml:"provider"`
	Models    ModelsConfig   `yaml:"models"`
	Gateway   GatewayConfig  `yaml:"gateway"`
	Client    ClientConfig   `yaml:"client"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProviderConfig defines the hosted model provider. Any OpenAI-compatible
// endpoint works; the defaults target Groq.
type ProviderConfig struct {
	Name            string `yaml:"name"`
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	APIKeyEnv       string `yaml:"api_key_env"`      // consulted when api_key is empty
	MaxRetries      int    `yaml:"max_retries"`      // SDK-level retries on 429/5xx
	ReasoningEffort string `yaml:"reasoning_effort"` // low, medium, high; empty = provider default
}

// Configured reports whether provider credentials are available.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != ""
}

// ModelsConfig defines the selectable models.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig defines a single selectable model.
type ModelConfig struct {
	ID       string `yaml:"id"`
	Label    string `yaml:"label"`
	Provider string `yaml:"provider"` // defaults to provider.name
}

// GatewayConfig tunes the chat endpoint.
type GatewayConfig struct {
	// MaxDuration bounds a single provider stream.
	MaxDuration time.Duration `yaml:"max_duration"`
	// RequestsPerMinute caps chat requests across all clients. Zero
	// disables the limit.
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	SystemPrompt      string `yaml:"system_prompt"`
}

// ClientConfig is used by the chat and ask commands to reach a gateway.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
}

// DefaultSystemPrompt is prepended to every conversation unless overridden.
const DefaultSystemPrompt = "Address the user's queries directly. Be concise and smart."

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration. Credentials come from
// [DefaultAPIKeyEnv].
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values. It is idempotent.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 3000
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "groq"
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Provider.APIKeyEnv == "" {
		c.Provider.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = os.Getenv(c.Provider.APIKeyEnv)
	}
	if len(c.Models.Available) == 0 {
		c.Models.Available = []ModelConfig{
			{ID: "openai/gpt-oss-120b", Label: "openai/gpt-oss-120b"},
			{ID: "openai/gpt-oss-20b", Label: "openai/gpt-oss-20b"},
		}
	}
	for i := range c.Models.Available {
		m := &c.Models.Available[i]
		if m.Label == "" {
			m.Label = m.ID
		}
		if m.Provider == "" {
			m.Provider = c.Provider.Name
		}
	}
	if c.Models.Default == "" {
		c.Models.Default = c.Models.Available[0].ID
	}
	if c.Gateway.MaxDuration == 0 {
		c.Gateway.MaxDuration = 30 * time.Second
	}
	if c.Gateway.SystemPrompt == "" {
		c.Gateway.SystemPrompt = DefaultSystemPrompt
	}
	if c.Client.ServerURL == "" {
		host := c.Listen.Address
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		c.Client.ServerURL = fmt.Sprintf("http://%s:%d", host, c.Listen.Port)
	}
}

// Validate checks the configuration for values that would fail at
// runtime. Missing credentials are not an error here: the gateway
// reports them per request so the UI can surface them.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	if c.Gateway.MaxDuration < 0 {
		return fmt.Errorf("gateway.max_duration must be positive, got %s", c.Gateway.MaxDuration)
	}
	if c.Gateway.RequestsPerMinute < 0 {
		return fmt.Errorf("gateway.requests_per_minute must not be negative")
	}
	switch c.Provider.ReasoningEffort {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("unknown provider.reasoning_effort %q (valid: low, medium, high)", c.Provider.ReasoningEffort)
	}

	seen := make(map[string]bool, len(c.Models.Available))
	for _, m := range c.Models.Available {
		if m.ID == "" {
			return fmt.Errorf("models.available: entry with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("models.available: duplicate id %q", m.ID)
		}
		seen[m.ID] = true
	}
	if !seen[c.Models.Default] {
		return fmt.Errorf("models.default %q is not in models.available", c.Models.Default)
	}
	return nil
}
