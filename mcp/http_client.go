package mcp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// Protocol versions tried in order during the HTTP handshake.
var httpProtocolVersions = []string{
	mcp.LATEST_PROTOCOL_VERSION,
	"2024-11-05",
}

// HttpMCPClient implements MCPClient for the streamable HTTP transport.
type HttpMCPClient struct {
	client  *client.Client
	baseURL string
	logger  zerolog.Logger
}

// NewHttpMCPClient creates a new HTTP MCP client.
func NewHttpMCPClient(logger zerolog.Logger, baseURL string) (*HttpMCPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required for HTTP MCP client")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	mcpClient, err := client.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
	}

	return &HttpMCPClient{
		client:  mcpClient,
		baseURL: baseURL,
		logger:  logger.With().Str("component", "httpMCPClient").Str("base_url", baseURL).Logger(),
	}, nil
}

// Start opens the transport and negotiates a protocol version, falling back
// to older versions when the server rejects the newest one.
func (c *HttpMCPClient) Start(ctx context.Context) error {
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP MCP client: %w", err)
	}

	var lastErr error
	for _, protocolVersion := range httpProtocolVersions {
		initReq := mcp.InitializeRequest{
			Params: mcp.InitializeParams{
				ProtocolVersion: protocolVersion,
				Capabilities:    mcp.ClientCapabilities{},
				ClientInfo:      clientInfo,
			},
		}
		if _, err := c.client.Initialize(ctx, initReq); err != nil {
			lastErr = err
			c.logger.Warn().
				Str("protocol_version", protocolVersion).
				Err(err).
				Msg("Initialize failed, trying next protocol version")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		c.logger.Info().Str("protocol_version", protocolVersion).Msg("HTTP MCP client started")
		return nil
	}

	return fmt.Errorf("failed to initialize HTTP MCP client: %w", lastErr)
}

// ListTools returns all tools available from the MCP server.
func (c *HttpMCPClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Debug().Int("tool_count", len(result.Tools)).Msg("Received tools from MCP server")
	return toToolDefinitions(result.Tools), nil
}

// InvokeTool invokes a tool on the MCP server.
func (c *HttpMCPClient) InvokeTool(ctx context.Context, name string, input map[string]interface{}) (*ToolResult, error) {
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

// Close closes the connection to the MCP server.
func (c *HttpMCPClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
