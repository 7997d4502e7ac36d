package config

import (
	"fmt"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/rs/zerolog"
)

// NewClient returns the builder the provider registry uses to construct a
// transport for a resolved key. Every client is wrapped with request logging.
func NewClient(logger zerolog.Logger) func(llm.ClientKey) (llm.Client, error) {
	return func(key llm.ClientKey) (llm.Client, error) {
		var (
			client llm.Client
			err    error
		)
		switch key.Provider {
		case llm.ProviderOpenAI:
			client, err = newOpenAIClient(key)
		case llm.ProviderAnthropic:
			client, err = newAnthropicClient(key, logger)
		case llm.ProviderOllama:
			client, err = newOllamaClient(key)
		default:
			return nil, fmt.Errorf("unknown provider: %s", key.Provider)
		}
		if err != nil {
			return nil, err
		}
		return llm.WrapWithMiddleware(client, llm.NewLoggingMiddleware(logger, key.Provider)), nil
	}
}
