package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/store"
)

// Deps are the optional collaborators of the provider middleware.
type Deps struct {
	Events  store.EventRepo
	Observe CallObserver
	Log     *zap.Logger
	Tracing bool
}

// NewProvider builds the configured provider wrapped in middleware:
// caller → timeout → tracing → retry → recording → base.
// It returns ErrNotConfigured when "auto" finds no API key or the provider
// is "none".
func NewProvider(ctx context.Context, cfg Config, deps Deps) (Provider, error) {
	cfg, ok := cfg.Discover()
	if !ok {
		return nil, ErrNotConfigured
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case ProviderMock:
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	p := WithRecording(base, cfg.Provider, deps.Events, deps.Observe, deps.Log)
	p = WithRetry(p, cfg.Retry, deps.Log)
	if deps.Tracing {
		p = WithTracing(p)
	}
	return WithTimeout(p, cfg.Timeout), nil
}
