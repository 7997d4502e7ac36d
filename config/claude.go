package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ClaudeConfig represents the structure of Claude's configuration file.
type ClaudeConfig struct {
	MCPServers map[string]ClaudeMCPServer `json:"mcpServers,omitempty"` // Global MCP servers at root level
	Projects   map[string]ClaudeProject   `json:"projects"`
}

// ClaudeProject represents a project configuration in Claude's config.
type ClaudeProject struct {
	MCPServers map[string]ClaudeMCPServer `json:"mcpServers"`
}

// ClaudeMCPServer represents an MCP server configuration in Claude's format.
type ClaudeMCPServer struct {
	Command string          `json:"command"`
	URL     string          `json:"url,omitempty"`
	Args    []string        `json:"args,omitempty"`
	Env     json.RawMessage `json:"env,omitempty"` // Can be array of strings or object
}

// GetEnvAsStrings converts the Env field to a slice of strings.
// Env can be either an array of strings or an object (map[string]string).
// If it's an object, converts it to "KEY=VALUE" format strings.
func (c *ClaudeMCPServer) GetEnvAsStrings(logger zerolog.Logger) []string {
	if len(c.Env) == 0 {
		return nil
	}

	var envArray []string
	if err := json.Unmarshal(c.Env, &envArray); err == nil {
		return envArray
	}

	var envMap map[string]string
	if err := json.Unmarshal(c.Env, &envMap); err == nil {
		envStrings := lo.MapToSlice(envMap, func(key string, value string) string {
			return fmt.Sprintf("%s=%s", key, value)
		})
		return envStrings
	}

	logger.Warn().
		Str("env", string(c.Env)).
		Msg("Failed to parse env field, expected array of strings or object")
	return nil
}

// LoadClaudeConfig loads Claude's configuration from the specified path.
// Returns a config with empty projects if the file doesn't exist (non-fatal).
// Returns an error only if the file exists but cannot be parsed.
func LoadClaudeConfig(logger zerolog.Logger, path string) (*ClaudeConfig, error) {
	expandedPath := expandPath(path)

	data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if os.IsNotExist(err) {
		logger.Debug().Str("path", expandedPath).Msg("Claude config does not exist")
		return &ClaudeConfig{
			Projects:   make(map[string]ClaudeProject),
			MCPServers: make(map[string]ClaudeMCPServer),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read Claude config file %q: %w", expandedPath, err)
	}

	var cfg ClaudeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse Claude config file %q: %w", expandedPath, err)
	}
	if cfg.Projects == nil {
		cfg.Projects = make(map[string]ClaudeProject)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ClaudeMCPServer)
	}

	logger.Debug().Int("global_servers", len(cfg.MCPServers)).Int("projects", len(cfg.Projects)).Msg("Loaded Claude config")
	return &cfg, nil
}

// MapClaudeToMCPServerConfig converts Claude MCP server configurations to MCPServerConfig,
// prefixing each name with "claude_" to avoid clashing with configured servers.
func MapClaudeToMCPServerConfig(logger zerolog.Logger, claudeServers map[string]ClaudeMCPServer) map[string]*MCPServerConfig {
	result := make(map[string]*MCPServerConfig, len(claudeServers))
	for serverName, claudeServer := range claudeServers {
		result["claude_"+serverName] = &MCPServerConfig{
			Command: claudeServer.Command,
			URL:     claudeServer.URL,
			Args:    claudeServer.Args,
			Env:     claudeServer.GetEnvAsStrings(logger),
		}
	}
	return result
}

// ExtractMCPServersFromProjects extracts MCP servers from Claude config projects and global servers.
// projectPaths can contain "Global" to include global servers, or project paths.
// If projectPaths is empty, extracts from all projects and global servers.
// Returns a map of server name to ClaudeMCPServer and a map of project path to server names.
func ExtractMCPServersFromProjects(logger zerolog.Logger, claudeConfig *ClaudeConfig, projectPaths []string) (map[string]ClaudeMCPServer, map[string][]string) {
	servers := make(map[string]ClaudeMCPServer)
	projectToServers := make(map[string][]string)

	includeGlobal := false
	filteredProjectPaths := lo.FilterMap(projectPaths, func(path string, _ int) (string, bool) {
		if path == "Global" {
			includeGlobal = true
			return "", false
		}
		return path, true
	})

	normalizedPaths := lo.Map(filteredProjectPaths, func(path string, _ int) string {
		return filepath.Clean(expandPath(path))
	})

	loadAll := len(filteredProjectPaths) == 0
	if loadAll {
		includeGlobal = true
	}

	if includeGlobal && len(claudeConfig.MCPServers) > 0 {
		for name, server := range claudeConfig.MCPServers {
			servers[name] = server
		}
		projectToServers["Global"] = lo.Keys(claudeConfig.MCPServers)
	}

	for projectPath, project := range claudeConfig.Projects {
		normalizedProjectPath := filepath.Clean(expandPath(projectPath))

		shouldLoad := loadAll || lo.SomeBy(normalizedPaths, func(normalized string) bool {
			if normalizedProjectPath == normalized {
				return true
			}
			// A project nested under a requested path is included too.
			rel, err := filepath.Rel(normalized, normalizedProjectPath)
			return err == nil && !strings.HasPrefix(rel, "..")
		})
		if !shouldLoad || len(project.MCPServers) == 0 {
			continue
		}

		for name, server := range project.MCPServers {
			servers[name] = server
		}
		projectToServers[projectPath] = lo.Keys(project.MCPServers)
		logger.Debug().Str("project", projectPath).Int("server_count", len(project.MCPServers)).Msg("Project contributed MCP servers")
	}

	return servers, projectToServers
}
