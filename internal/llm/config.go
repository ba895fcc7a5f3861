package llm

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrNotConfigured is returned by NewProvider when no provider is selected
// and none could be discovered. AI review is then disabled.
var ErrNotConfigured = errors.New("no LLM provider configured")

// Provider names accepted in Config.Provider.
const (
	ProviderAuto       = "auto"
	ProviderNone       = "none"
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Config holds all LLM provider configuration. The mapstructure tags match
// the llm section of the application config file.
type Config struct {
	// Provider is one of the Provider* names. "auto" picks the first
	// provider whose well-known API key variable is set.
	Provider string `mapstructure:"provider"`

	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Retry      RetryConfig      `mapstructure:"retry"`

	// Timeout bounds a single Generate call including retries.
	Timeout time.Duration `mapstructure:"timeout"`
}

type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenRouterConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DefaultConfig returns the defaults used when the config file is silent.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderAuto,
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "google/gemini-2.5-flash"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 45 * time.Second,
	}
}

// discoveryOrder lists the vendor API key variables probed by "auto".
var discoveryOrder = []struct {
	env      string
	provider string
}{
	{"ANTHROPIC_API_KEY", ProviderAnthropic},
	{"OPENAI_API_KEY", ProviderOpenAI},
	{"GEMINI_API_KEY", ProviderGemini},
	{"OPENROUTER_API_KEY", ProviderOpenRouter},
}

// Discover resolves "auto": a provider whose key is already configured
// wins, then the vendor variables are probed in order. ok is false when
// nothing was found.
func (c Config) Discover() (Config, bool) {
	if c.Provider != ProviderAuto {
		return c, c.Provider != "" && c.Provider != ProviderNone
	}
	for _, d := range discoveryOrder {
		if c.apiKey(d.provider) != "" {
			c.Provider = d.provider
			return c, true
		}
	}
	for _, d := range discoveryOrder {
		if k := os.Getenv(d.env); k != "" {
			c.Provider = d.provider
			c.setAPIKey(d.provider, k)
			return c, true
		}
	}
	return c, false
}

func (c Config) apiKey(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return c.Anthropic.APIKey
	case ProviderOpenAI:
		return c.OpenAI.APIKey
	case ProviderGemini:
		return c.Gemini.APIKey
	case ProviderOpenRouter:
		return c.OpenRouter.APIKey
	}
	return ""
}

func (c *Config) setAPIKey(provider, key string) {
	switch provider {
	case ProviderAnthropic:
		c.Anthropic.APIKey = key
	case ProviderOpenAI:
		c.OpenAI.APIKey = key
	case ProviderGemini:
		c.Gemini.APIKey = key
	case ProviderOpenRouter:
		c.OpenRouter.APIKey = key
	}
}

// Validate checks that the selected provider has its API key set.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderOpenRouter:
		if c.apiKey(c.Provider) == "" {
			return fmt.Errorf("llm.%s.api_key (GRADEWISE_LLM_%s_API_KEY) is required for the %s provider",
				c.Provider, strings.ToUpper(c.Provider), c.Provider)
		}
	case ProviderMock, ProviderAuto, ProviderNone, "":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.Retry.MaxAttempts < 0 || (c.Retry.MaxAttempts > 1 && c.Retry.Multiplier < 1) {
		return fmt.Errorf("llm.retry: invalid backoff (attempts %d, multiplier %v)", c.Retry.MaxAttempts, c.Retry.Multiplier)
	}
	return nil
}
