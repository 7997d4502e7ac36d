package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aj47/nvidia-control-center-sub003/invoke"
	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/aj47/nvidia-control-center-sub003/mcp"
	"github.com/aj47/nvidia-control-center-sub003/toolname"
)

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`  // Anthropic API key
	BaseURL string `yaml:"base_url,omitempty"` // Proxy base URL (default: official API)
	Model   string `yaml:"model,omitempty"`    // Default model name
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // Ollama host (default: "http://localhost:11434")
	Model string `yaml:"model,omitempty"` // Default model name
}

// OpenAIConfig represents configuration for OpenAI LLM provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// RetryConfig holds retry limits. A negative max_retries disables retries;
// zero means "use the default".
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries,omitempty"`
	BaseDelayMs int `yaml:"base_delay_ms,omitempty"`
	MaxDelayMs  int `yaml:"max_delay_ms,omitempty"`
}

// ToolNamesConfig controls tool name restoration.
type ToolNamesConfig struct {
	GatewayPrefixes []string `yaml:"gateway_prefixes,omitempty"`
	// DisablePrefixStrip turns gateway prefix stripping off entirely.
	DisablePrefixStrip bool `yaml:"disable_prefix_strip,omitempty"`
}

// ParserConfig controls text-based tool call detection.
type ParserConfig struct {
	InlineMarkers []string `yaml:"inline_markers,omitempty"`
}

// MCPServerConfig represents configuration for an MCP server.
type MCPServerConfig struct {
	Command string   `yaml:"command,omitempty"` // For STDIO transport
	URL     string   `yaml:"url,omitempty"`     // For HTTP transport
	Args    []string `yaml:"args,omitempty"`    // Additional args for STDIO command
	Env     []string `yaml:"env,omitempty"`     // Environment variables for STDIO
}

// ClaudeMCPConfig enables importing MCP servers from a Claude config file.
type ClaudeMCPConfig struct {
	Enabled    bool     `yaml:"enabled,omitempty"`     // Enable/disable Claude MCP loading
	Projects   []string `yaml:"projects,omitempty"`    // List of project paths to load from (empty = all projects)
	ConfigPath string   `yaml:"config_path,omitempty"` // Override default ~/.claude.json path
}

// Config is the invocation layer's configuration file.
type Config struct {
	// Provider used when a call does not name one: "openai", "anthropic" or "ollama".
	Provider string `yaml:"provider,omitempty"`

	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`

	Retry     RetryConfig     `yaml:"retry,omitempty"`
	ToolNames ToolNamesConfig `yaml:"tool_names,omitempty"`
	Parser    ParserConfig    `yaml:"parser,omitempty"`

	MCPServers map[string]*MCPServerConfig `yaml:"mcp_servers,omitempty"`
	ClaudeMCP  ClaudeMCPConfig             `yaml:"claude_mcp,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Provider: llm.ProviderOpenAI,
		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},
		Retry: RetryConfig{
			MaxRetries:  invoke.DefaultMaxRetries,
			BaseDelayMs: int(invoke.DefaultBaseDelay / time.Millisecond),
			MaxDelayMs:  int(invoke.DefaultMaxDelay / time.Millisecond),
		},
		ToolNames: ToolNamesConfig{
			GatewayPrefixes: append([]string(nil), toolname.DefaultGatewayPrefixes...),
		},
		MCPServers: make(map[string]*MCPServerConfig),
		ClaudeMCP: ClaudeMCPConfig{
			ConfigPath: "~/.claude.json",
		},
	}
}

// GetConfigPath returns the default config file path.
// Can be overridden via INVOKE_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("INVOKE_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.invoke/config.yaml"
	}
	return filepath.Join(homeDir, ".invoke", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads the config file at path, merges it over the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	expandedPath := expandPath(path)
	data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", expandedPath, err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	applyEnv(&cfg)

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]*MCPServerConfig)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	return &cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INVOKE_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	applyOpenAIEnv(&cfg.OpenAI)
	applyAnthropicEnv(&cfg.Anthropic)
	applyOllamaEnv(&cfg.Ollama)
}

// ProviderConfig returns the provider settings the client registry resolves against.
func (c *Config) ProviderConfig() *llm.ProviderConfig {
	return &llm.ProviderConfig{
		DefaultProvider:  c.Provider,
		AnthropicAPIKey:  c.Anthropic.APIKey,
		AnthropicBaseURL: c.Anthropic.BaseURL,
		AnthropicModel:   c.Anthropic.Model,
		OllamaHost:       c.Ollama.Host,
		OllamaModel:      c.Ollama.Model,
		OpenAIAPIKey:     c.OpenAI.APIKey,
		OpenAIBaseURL:    c.OpenAI.BaseURL,
		OpenAIModel:      c.OpenAI.Model,
		OpenAIOrg:        c.OpenAI.Organization,
	}
}

// CallConfig returns the invoker defaults derived from the retry section.
func (c *Config) CallConfig() invoke.CallConfig {
	return invoke.CallConfig{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
		Provider:   c.Provider,
	}
}

// GatewayPrefixes returns the prefixes the tool name codec strips. An empty,
// non-nil slice disables stripping.
func (c *Config) GatewayPrefixes() []string {
	if c.ToolNames.DisablePrefixStrip {
		return []string{}
	}
	return c.ToolNames.GatewayPrefixes
}

// InlineMarkers returns the configured inline tool-call markers, or nil for
// the parser defaults.
func (c *Config) InlineMarkers() []string {
	return c.Parser.InlineMarkers
}

// MCPServerConfigs returns every MCP server to connect, including those
// imported from the Claude config when enabled. Servers named in this
// config win over imported ones.
func (c *Config) MCPServerConfigs(logger zerolog.Logger) (map[string]mcp.ServerConfig, error) {
	servers := make(map[string]*MCPServerConfig, len(c.MCPServers))
	if c.ClaudeMCP.Enabled {
		claudeConfig, err := LoadClaudeConfig(logger, c.ClaudeMCP.ConfigPath)
		if err != nil {
			return nil, err
		}
		claudeServers, _ := ExtractMCPServersFromProjects(logger, claudeConfig, c.ClaudeMCP.Projects)
		for name, s := range MapClaudeToMCPServerConfig(logger, claudeServers) {
			servers[name] = s
		}
	}
	for name, s := range c.MCPServers {
		servers[name] = s
	}

	out := make(map[string]mcp.ServerConfig, len(servers))
	for name, s := range servers {
		if s == nil {
			continue
		}
		out[name] = mcp.ServerConfig{
			Command: s.Command,
			URL:     s.URL,
			Args:    s.Args,
			Env:     s.Env,
		}
	}
	return out, nil
}
