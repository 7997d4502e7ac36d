package config

import (
	"os"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	llmanthropic "github.com/aj47/nvidia-control-center-sub003/llm/anthropic"
	"github.com/rs/zerolog"
)

// applyAnthropicEnv overlays ANTHROPIC_* environment variables onto cfg.
func applyAnthropicEnv(cfg *AnthropicConfig) {
	if envAPIKey := os.Getenv("ANTHROPIC_API_KEY"); envAPIKey != "" {
		cfg.APIKey = envAPIKey
	}
	if envBaseURL := os.Getenv("ANTHROPIC_BASE_URL"); envBaseURL != "" {
		cfg.BaseURL = envBaseURL
	}
}

func newAnthropicClient(key llm.ClientKey, logger zerolog.Logger) (llm.Client, error) {
	return llmanthropic.NewAnthropicClient(key.APIKey, key.BaseURL, key.Model, logger)
}
