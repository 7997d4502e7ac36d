package llm

import (
	"context"
	"errors"
	"testing"
)

type stubClient struct{ id string }

func (s *stubClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	return &Response{}, nil
}

func (s *stubClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	return nil, errors.New("not implemented")
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_ORG_ID", "OLLAMA_HOST", "OLLAMA_MODEL"} {
		t.Setenv(k, "")
	}
}

func TestProviderRegistry_IsProviderConfigured(t *testing.T) {
	clearProviderEnv(t)

	registry := NewProviderRegistry(&ProviderConfig{}, nil)
	if registry.IsProviderConfigured(ProviderAnthropic) {
		t.Error("anthropic should not be configured without API key")
	}
	if registry.IsProviderConfigured(ProviderOpenAI) {
		t.Error("openai should not be configured without API key")
	}
	if registry.IsProviderConfigured(ProviderOllama) {
		t.Error("ollama should not be configured without a model")
	}

	registry2 := NewProviderRegistry(&ProviderConfig{
		AnthropicAPIKey: "test-key",
		OpenAIAPIKey:    "test-key",
		OpenAIModel:     "gpt-4o-mini",
		OllamaModel:     "qwen3:8b",
	}, nil)
	for _, p := range []string{ProviderAnthropic, ProviderOpenAI, ProviderOllama} {
		if !registry2.IsProviderConfigured(p) {
			t.Errorf("%s should be configured", p)
		}
	}
}

func TestProviderRegistry_ResolveDefaults(t *testing.T) {
	clearProviderEnv(t)

	registry := NewProviderRegistry(&ProviderConfig{
		DefaultProvider: ProviderOpenAI,
		OpenAIAPIKey:    "sk-config",
		OpenAIBaseURL:   "https://gateway.example.com/v1",
		OpenAIModel:     "gpt-4o-mini",
	}, nil)

	key, err := registry.Resolve(Override{})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if key.Provider != ProviderOpenAI {
		t.Errorf("Expected provider openai, got %q", key.Provider)
	}
	if key.APIKey != "sk-config" || key.BaseURL != "https://gateway.example.com/v1" || key.Model != "gpt-4o-mini" {
		t.Errorf("Unexpected key %+v", key)
	}
}

func TestProviderRegistry_ResolveOverride(t *testing.T) {
	clearProviderEnv(t)

	registry := NewProviderRegistry(&ProviderConfig{
		OpenAIAPIKey: "sk-config",
		OpenAIModel:  "gpt-4o-mini",
	}, nil)

	key, err := registry.Resolve(Override{Model: "gpt-4.1", APIKey: "sk-call", BaseURL: "http://localhost:8080/v1"})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if key.Model != "gpt-4.1" || key.APIKey != "sk-call" || key.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("Expected call overrides to win, got %+v", key)
	}
}

func TestProviderRegistry_ResolveOllamaHost(t *testing.T) {
	clearProviderEnv(t)

	registry := NewProviderRegistry(&ProviderConfig{OllamaModel: "qwen3:8b"}, nil)
	key, err := registry.Resolve(Override{Provider: "Ollama"})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if key.Host != "http://localhost:11434" {
		t.Errorf("Expected default ollama host, got %q", key.Host)
	}
	if key.Model != "qwen3:8b" {
		t.Errorf("Expected configured model, got %q", key.Model)
	}
}

func TestProviderRegistry_UnknownProvider(t *testing.T) {
	registry := NewProviderRegistry(nil, nil)
	if _, err := registry.Resolve(Override{Provider: "bedrock"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestProviderRegistry_ClientCaching(t *testing.T) {
	clearProviderEnv(t)

	builds := 0
	registry := NewProviderRegistry(&ProviderConfig{OpenAIAPIKey: "k", OpenAIModel: "m"}, func(key ClientKey) (Client, error) {
		builds++
		return &stubClient{id: key.Model}, nil
	})

	c1, _, err := registry.Client(Override{})
	if err != nil {
		t.Fatalf("Client() error: %v", err)
	}
	c2, _, err := registry.Client(Override{})
	if err != nil {
		t.Fatalf("Client() error: %v", err)
	}
	if c1 != c2 {
		t.Error("Expected the same client instance for the same key")
	}
	if builds != 1 {
		t.Errorf("Expected 1 build, got %d", builds)
	}

	c3, _, err := registry.Client(Override{Model: "other"})
	if err != nil {
		t.Fatalf("Client() error: %v", err)
	}
	if c3 == c1 {
		t.Error("Expected a distinct client for a distinct key")
	}
	if builds != 2 {
		t.Errorf("Expected 2 builds, got %d", builds)
	}
}
