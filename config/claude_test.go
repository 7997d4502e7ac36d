package config

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const claudeJSON = `{
  "mcpServers": {
    "global-search": {"command": "search-mcp", "env": {"TOKEN": "abc"}}
  },
  "projects": {
    "/work/app": {"mcpServers": {"db": {"command": "db-mcp", "args": ["--ro"], "env": ["DSN=x"]}}},
    "/work/other": {"mcpServers": {"mail": {"url": "http://localhost:7000/mcp"}}}
  }
}`

func TestLoadClaudeConfigMissingFile(t *testing.T) {
	cfg, err := LoadClaudeConfig(zerolog.Nop(), filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Projects)
	assert.Empty(t, cfg.MCPServers)
}

func TestExtractMCPServersFromProjects(t *testing.T) {
	path := writeFile(t, t.TempDir(), "claude.json", claudeJSON)
	cfg, err := LoadClaudeConfig(zerolog.Nop(), path)
	require.NoError(t, err)

	tests := []struct {
		name     string
		projects []string
		want     []string
	}{
		{name: "all", projects: nil, want: []string{"db", "global-search", "mail"}},
		{name: "one project", projects: []string{"/work/app"}, want: []string{"db"}},
		{name: "parent path", projects: []string{"/work"}, want: []string{"db", "mail"}},
		{name: "global plus project", projects: []string{"Global", "/work/other"}, want: []string{"global-search", "mail"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			servers, _ := ExtractMCPServersFromProjects(zerolog.Nop(), cfg, tt.projects)
			var names []string
			for name := range servers {
				names = append(names, name)
			}
			sort.Strings(names)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestClaudeServersMergeIntoConfig(t *testing.T) {
	clearProviderEnv(t)
	path := writeFile(t, t.TempDir(), "claude.json", claudeJSON)

	cfg := Default()
	cfg.ClaudeMCP = ClaudeMCPConfig{Enabled: true, ConfigPath: path, Projects: []string{"Global", "/work/app"}}
	cfg.MCPServers["local"] = &MCPServerConfig{Command: "local-mcp"}

	servers, err := cfg.MCPServerConfigs(zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, servers, 3)
	assert.Equal(t, []string{"TOKEN=abc"}, servers["claude_global-search"].Env)
	assert.Equal(t, []string{"DSN=x"}, servers["claude_db"].Env)
	assert.Equal(t, []string{"--ro"}, servers["claude_db"].Args)
	assert.Equal(t, "local-mcp", servers["local"].Command)
}
