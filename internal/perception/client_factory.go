package perception

import (
	"fmt"
	"os"

	"cortex/internal/config"
)

// Normalize maps provider aliases to canonical providers. It returns false
// for names no alias covers; callers decide whether that is fatal (the
// scheduler) or falls back to the default provider (the CLI).
func Normalize(name string) (Provider, bool) {
	switch name {
	case "openai":
		return ProviderOpenAI, true
	case "claude", "anthropic":
		return ProviderAnthropic, true
	case "google", "gemini":
		return ProviderGemini, true
	case "ollama":
		return ProviderOllama, true
	case "default", "":
		return ProviderDefault, true
	default:
		return ProviderDefault, false
	}
}

// NewClient builds an LLMClient for a canonical provider. API keys come from
// the config with environment fallbacks, matching how the rest of the engine
// resolves credentials.
func NewClient(provider Provider, cfg config.LLMConfig) (LLMClient, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(resolveKey(cfg.APIKey, "OPENAI_API_KEY"), cfg.Model), nil
	case ProviderAnthropic:
		return NewAnthropicClient(resolveKey(cfg.APIKey, "ANTHROPIC_API_KEY"), cfg.Model), nil
	case ProviderGemini:
		return NewGeminiClient(resolveKey(cfg.APIKey, "GEMINI_API_KEY"), cfg.Model)
	case ProviderOllama:
		return NewOllamaClient(cfg.Endpoint, cfg.Model), nil
	case ProviderDefault:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

func resolveKey(configured, envVar string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(envVar)
}
