package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// StdioMCPClient implements MCPClient for STDIO transport.
type StdioMCPClient struct {
	client  *client.Client
	command string
	args    []string
	logger  zerolog.Logger
}

// NewStdioMCPClient spawns command and wraps it in an MCP client. A command
// containing spaces is split, and its trailing words are placed before args.
func NewStdioMCPClient(logger zerolog.Logger, command string, args, env []string) (*StdioMCPClient, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("command is required for STDIO MCP client")
	}

	logger = logger.With().Str("component", "stdioMCPClient").Str("command", parts[0]).Logger()

	cmdArgs := make([]string, 0, len(parts)-1+len(args))
	cmdArgs = append(cmdArgs, parts[1:]...)
	cmdArgs = append(cmdArgs, args...)

	mcpClient, err := client.NewStdioMCPClient(parts[0], env, cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
	}

	logger.Debug().Strs("args", cmdArgs).Msg("Spawned STDIO MCP server")
	return &StdioMCPClient{
		client:  mcpClient,
		command: parts[0],
		args:    cmdArgs,
		logger:  logger,
	}, nil
}

// Start initializes the MCP session. The transport is already running once
// the subprocess is spawned, so only the handshake happens here.
func (c *StdioMCPClient) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before initialize: %w", err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      clientInfo,
		},
	}

	// Initialize can hang while a slow server boots; bound it by ctx.
	initDone := make(chan error, 1)
	go func() {
		_, err := c.client.Initialize(ctx, initReq)
		initDone <- err
	}()

	select {
	case err := <-initDone:
		if err != nil {
			c.logger.Error().Err(err).Msg("Initialize failed")
			return fmt.Errorf("failed to initialize MCP client: %w", err)
		}
	case <-ctx.Done():
		c.logger.Error().Err(ctx.Err()).Msg("Context done during Initialize")
		return fmt.Errorf("context cancelled during initialize: %w", ctx.Err())
	}

	c.logger.Info().Msg("STDIO MCP client started")
	return nil
}

// ListTools returns all tools available from the MCP server.
func (c *StdioMCPClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Debug().Int("tool_count", len(result.Tools)).Msg("Received tools from MCP server")
	return toToolDefinitions(result.Tools), nil
}

// InvokeTool invokes a tool on the MCP server.
func (c *StdioMCPClient) InvokeTool(ctx context.Context, name string, input map[string]interface{}) (*ToolResult, error) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: input,
		},
	}

	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}
	return toToolResult(result), nil
}

// Close stops the server subprocess.
func (c *StdioMCPClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
