package config

import (
	"os"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	llmollama "github.com/aj47/nvidia-control-center-sub003/llm/ollama"
)

// applyOllamaEnv overlays OLLAMA_HOST and OLLAMA_MODEL onto cfg.
func applyOllamaEnv(cfg *OllamaConfig) {
	if envHost := os.Getenv("OLLAMA_HOST"); envHost != "" {
		cfg.Host = envHost
	}
	if envModel := os.Getenv("OLLAMA_MODEL"); envModel != "" {
		cfg.Model = envModel
	}
}

func newOllamaClient(key llm.ClientKey) (llm.Client, error) {
	return llmollama.NewOllamaClient(key.Host, key.Model)
}
