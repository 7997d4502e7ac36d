package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/aj47/nvidia-control-center-sub003/toolname"
	"github.com/rs/zerolog"
)

// ServerConfig describes how to reach one MCP server. Command selects the
// STDIO transport; otherwise URL selects streamable HTTP.
type ServerConfig struct {
	Command string
	URL     string
	Args    []string
	Env     []string
}

// NewClient builds an MCPClient for cfg without starting it.
func NewClient(logger zerolog.Logger, cfg ServerConfig) (MCPClient, error) {
	switch {
	case cfg.Command != "":
		return NewStdioMCPClient(logger, cfg.Command, cfg.Args, cfg.Env)
	case cfg.URL != "":
		return NewHttpMCPClient(logger, cfg.URL)
	default:
		return nil, fmt.Errorf("either command or url is required")
	}
}

// ToolError is returned by CallTool when the server reports a failed call.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tool %s reported an error", e.Tool)
	}
	return e.Message
}

// Catalog aggregates MCP servers and exposes their tools under
// "server:tool" names. It satisfies the tool executor used by the
// invocation loop.
type Catalog struct {
	mu      sync.RWMutex
	servers map[string]MCPClient
	logger  zerolog.Logger
}

// NewCatalog creates an empty Catalog.
func NewCatalog(logger zerolog.Logger) *Catalog {
	return &Catalog{
		servers: make(map[string]MCPClient),
		logger:  logger.With().Str("component", "mcpCatalog").Logger(),
	}
}

// Connect builds and starts a client for cfg and registers it as name.
func (c *Catalog) Connect(ctx context.Context, name string, cfg ServerConfig) error {
	client, err := NewClient(c.logger.With().Str("server", name).Logger(), cfg)
	if err != nil {
		return fmt.Errorf("mcp server %s: %w", name, err)
	}
	if err := c.Add(ctx, name, client); err != nil {
		_ = client.Close()
		return err
	}
	return nil
}

// Add starts client and registers it as name. Names must be unique and may
// not contain the namespace separator.
func (c *Catalog) Add(ctx context.Context, name string, client MCPClient) error {
	if name == "" || strings.Contains(name, toolname.NamespaceSeparator) {
		return fmt.Errorf("invalid mcp server name %q", name)
	}

	c.mu.RLock()
	_, exists := c.servers[name]
	c.mu.RUnlock()
	if exists {
		return fmt.Errorf("mcp server %s already registered", name)
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("mcp server %s: %w", name, err)
	}

	c.mu.Lock()
	c.servers[name] = client
	c.mu.Unlock()

	c.logger.Info().Str("server", name).Msg("Registered MCP server")
	return nil
}

// Servers returns registered server names in sorted order.
func (c *Catalog) Servers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.servers))
	for name := range c.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools lists the tools of every registered server. A server that fails to
// list is logged and skipped so one broken server does not hide the rest.
func (c *Catalog) Tools(ctx context.Context) ([]llm.ToolSpec, error) {
	var specs []llm.ToolSpec
	for _, server := range c.Servers() {
		client, ok := c.server(server)
		if !ok {
			continue
		}
		defs, err := client.ListTools(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn().Str("server", server).Err(err).Msg("Failed to list tools")
			continue
		}
		for _, def := range defs {
			specs = append(specs, llm.NewToolSpec(server+toolname.NamespaceSeparator+def.Name, def.Description, def.InputSchema))
		}
	}
	return specs, nil
}

// CallTool dispatches a "server:tool" call to the owning server and returns
// the tool's text output.
func (c *Catalog) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	server, tool, ok := strings.Cut(name, toolname.NamespaceSeparator)
	if !ok || tool == "" {
		return "", fmt.Errorf("tool %q has no server namespace", name)
	}
	client, ok := c.server(server)
	if !ok {
		return "", fmt.Errorf("unknown mcp server %q for tool %s", server, name)
	}

	result, err := client.InvokeTool(ctx, tool, args)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", &ToolError{Tool: name, Message: result.Text}
	}
	return result.Text, nil
}

// Close closes every registered server and empties the catalog.
func (c *Catalog) Close() error {
	c.mu.Lock()
	servers := c.servers
	c.servers = make(map[string]MCPClient)
	c.mu.Unlock()

	var errs []error
	for name, client := range servers {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp server %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Catalog) server(name string) (MCPClient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.servers[name]
	return client, ok
}
