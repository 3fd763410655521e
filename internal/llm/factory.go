package llm

import (
	"fmt"
	"strings"
)

// NewClient creates a provider client based on the configuration.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err := newOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "anthropic":
		client, err := newAnthropicClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
