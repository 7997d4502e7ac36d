package config

import (
	"os"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	llmopenai "github.com/aj47/nvidia-control-center-sub003/llm/openai"
)

// applyOpenAIEnv overlays OPENAI_* environment variables onto cfg.
func applyOpenAIEnv(cfg *OpenAIConfig) {
	if envAPIKey := os.Getenv("OPENAI_API_KEY"); envAPIKey != "" {
		cfg.APIKey = envAPIKey
	}
	if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
		cfg.BaseURL = envBaseURL
	}
	if envModel := os.Getenv("OPENAI_MODEL"); envModel != "" {
		cfg.Model = envModel
	}
	if envOrg := os.Getenv("OPENAI_ORG_ID"); envOrg != "" {
		cfg.Organization = envOrg
	}
}

func newOpenAIClient(key llm.ClientKey) (llm.Client, error) {
	return llmopenai.NewOpenAIClient(key.APIKey, key.BaseURL, key.Model, key.Organization)
}
