package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"
)

// clientInfo identifies this process to MCP servers during initialization.
var clientInfo = mcp.Implementation{
	Name:    "invoke",
	Version: "1.0.0",
}

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolResult is the flattened text output of a tool call.
type ToolResult struct {
	Text    string
	IsError bool
}

// MCPClient is the interface for interacting with MCP servers.
type MCPClient interface {
	// Start initializes the MCP client connection.
	Start(ctx context.Context) error

	// ListTools returns all tools available from the MCP server.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// InvokeTool invokes a tool on the MCP server with the given input.
	InvokeTool(ctx context.Context, name string, input map[string]interface{}) (*ToolResult, error)

	// Close closes the connection to the MCP server.
	Close() error
}

func toToolDefinitions(tools []mcp.Tool) []ToolDefinition {
	return lo.Map(tools, func(tool mcp.Tool, _ int) ToolDefinition {
		inputSchema := make(map[string]interface{})
		inputSchema["type"] = tool.InputSchema.Type
		if tool.InputSchema.Properties != nil {
			inputSchema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema["required"] = tool.InputSchema.Required
		}
		if len(tool.InputSchema.Defs) > 0 {
			inputSchema["$defs"] = tool.InputSchema.Defs
		}

		return ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema,
		}
	})
}

// toToolResult joins every text-bearing content item with newlines.
func toToolResult(result *mcp.CallToolResult) *ToolResult {
	if result == nil {
		return &ToolResult{}
	}
	texts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, textContent.Text)
			continue
		}
		if text := mcp.GetTextFromContent(content); text != "" {
			texts = append(texts, text)
		}
	}
	return &ToolResult{
		Text:    strings.Join(texts, "\n"),
		IsError: result.IsError,
	}
}
