package llm

import (
	"fmt"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewBackend 按 provider 选择后端
func NewBackend(provider, baseURL, apiKey string, timeout time.Duration) (Backend, error) {
	switch provider {
	case "", ProviderOpenAI:
		return NewOpenAIBackend(baseURL, apiKey, timeout), nil
	case ProviderAnthropic:
		return NewAnthropicBackend(baseURL, apiKey, timeout), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", provider)
	}
}
