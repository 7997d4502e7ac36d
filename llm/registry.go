package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI-compatible endpoints and Anthropic proxies
	Organization string // For OpenAI
}

// ProviderConfig holds the configuration needed for provider resolution.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	DefaultProvider  string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
	OllamaHost       string
	OllamaModel      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIOrg        string
}

// Override carries per-call endpoint settings. Empty fields fall back to the
// provider configuration.
type Override struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// ProviderRegistry resolves a ClientKey for a call and caches the clients
// built for each key. Client construction is injected by the caller to
// avoid import cycles with the provider packages.
type ProviderRegistry struct {
	mu      sync.RWMutex
	config  *ProviderConfig
	build   func(ClientKey) (Client, error)
	clients map[ClientKey]Client
}

// NewProviderRegistry creates a new ProviderRegistry.
func NewProviderRegistry(providerConfig *ProviderConfig, build func(ClientKey) (Client, error)) *ProviderRegistry {
	if providerConfig == nil {
		providerConfig = &ProviderConfig{}
	}
	return &ProviderRegistry{
		config:  providerConfig,
		build:   build,
		clients: make(map[ClientKey]Client),
	}
}

// IsProviderConfigured checks if a provider has the required configuration (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, err := r.resolveUnlocked(Override{Provider: provider})
	return err == nil
}

// Resolve returns the ClientKey a call with the given override would use.
func (r *ProviderRegistry) Resolve(o Override) (ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveUnlocked(o)
}

// Client returns a cached client for the resolved key, building it on first use.
func (r *ProviderRegistry) Client(o Override) (Client, ClientKey, error) {
	key, err := r.Resolve(o)
	if err != nil {
		return nil, ClientKey{}, err
	}

	r.mu.RLock()
	client, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return client, key, nil
	}

	if r.build == nil {
		return nil, key, fmt.Errorf("no client builder configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, key, nil
	}
	client, err = r.build(key)
	if err != nil {
		return nil, key, fmt.Errorf("failed to create %s client: %w", key.Provider, err)
	}
	r.clients[key] = client
	return client, key, nil
}

// resolveUnlocked must be called with r.mu held.
func (r *ProviderRegistry) resolveUnlocked(o Override) (ClientKey, error) {
	provider := strings.ToLower(strings.TrimSpace(o.Provider))
	if provider == "" {
		provider = r.config.DefaultProvider
	}
	if provider == "" {
		provider = ProviderOpenAI
	}

	key := ClientKey{
		Provider: provider,
		Model:    o.Model,
		APIKey:   o.APIKey,
		BaseURL:  o.BaseURL,
	}

	switch provider {
	case ProviderAnthropic:
		if key.APIKey == "" {
			key.APIKey = firstNonEmpty(r.config.AnthropicAPIKey, os.Getenv("ANTHROPIC_API_KEY"))
		}
		if key.APIKey == "" {
			return ClientKey{}, fmt.Errorf("anthropic API key not configured")
		}
		if key.BaseURL == "" {
			key.BaseURL = r.config.AnthropicBaseURL
		}
		if key.Model == "" {
			key.Model = firstNonEmpty(r.config.AnthropicModel, "claude-haiku-4-5")
		}

	case ProviderOllama:
		key.Host = firstNonEmpty(o.BaseURL, r.config.OllamaHost, os.Getenv("OLLAMA_HOST"), "http://localhost:11434")
		key.BaseURL = ""
		key.APIKey = ""
		if key.Model == "" {
			key.Model = firstNonEmpty(r.config.OllamaModel, os.Getenv("OLLAMA_MODEL"))
		}
		if key.Model == "" {
			return ClientKey{}, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		if key.APIKey == "" {
			key.APIKey = firstNonEmpty(r.config.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY"))
		}
		if key.APIKey == "" {
			return ClientKey{}, fmt.Errorf("openai API key not configured")
		}
		if key.BaseURL == "" {
			key.BaseURL = firstNonEmpty(r.config.OpenAIBaseURL, os.Getenv("OPENAI_BASE_URL"))
		}
		key.Organization = firstNonEmpty(r.config.OpenAIOrg, os.Getenv("OPENAI_ORG_ID"))
		if key.Model == "" {
			key.Model = firstNonEmpty(r.config.OpenAIModel, os.Getenv("OPENAI_MODEL"))
		}
		if key.Model == "" {
			return ClientKey{}, fmt.Errorf("openai model not specified and no default configured")
		}

	default:
		return ClientKey{}, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
