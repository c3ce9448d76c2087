package llm

import (
	"fmt"

	"github.com/dante4567/rag-provider-sub004/internal/config"
)

// Provider kinds accepted by the factory.
const (
	KindOpenAI = "openai"
	KindOllama = "ollama"
	KindStatic = "static"
)

// NewProvider builds one provider adapter from its config entry.
func NewProvider(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case KindOpenAI:
		return NewOpenAIProvider(cfg), nil
	case KindOllama:
		return NewOllamaProvider(cfg), nil
	case KindStatic:
		return NewStaticProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q for provider %s", cfg.Kind, cfg.ID)
	}
}

// NewChain builds the ordered provider chain from config.
func NewChain(cfg *config.Config) ([]Provider, error) {
	ordered := cfg.OrderedProviders()
	providers := make([]Provider, 0, len(ordered))
	for _, pc := range ordered {
		p, err := NewProvider(pc)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	return providers, nil
}
