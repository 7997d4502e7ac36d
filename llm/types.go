package llm

import (
	"encoding/json"
	"strings"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ChatMessage is the flat, text-only message callers hand to the invocation layer.
// System messages are lifted out into Request.System before a provider sees them.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Message represents a single provider-bound message. Only user and assistant
// roles reach a provider; system text travels in Request.System.
type Message struct {
	Role    MessageRole
	Content []ContentBlock
}

// ContentBlock represents a single content block within a message.
type ContentBlock struct {
	Type    ContentBlockType
	Text    string        // For text blocks
	ToolUse *ToolUseBlock // For tool use blocks
}

// ContentBlockType represents the type of content block.
type ContentBlockType string

const (
	ContentBlockTypeText    ContentBlockType = "text"
	ContentBlockTypeToolUse ContentBlockType = "tool_use"
)

// ToolUseBlock represents a tool invocation request from the assistant.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]interface{} // JSON-serializable input parameters
}

// ToolSpec represents a tool definition that can be provided to an LLM.
// Name may carry a namespace separator (e.g. "server:tool"); transports only
// ever see sanitized names.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema represents the JSON schema for a tool's input parameters.
type ToolSchema struct {
	Type        string
	Properties  map[string]interface{}
	Required    []string
	ExtraFields map[string]interface{} // For any additional schema fields
}

// NewToolSpec builds a ToolSpec from a JSON-schema-like input schema map, as
// produced by MCP servers.
func NewToolSpec(name, description string, inputSchema map[string]interface{}) ToolSpec {
	schema := ToolSchema{
		Type:        "object",
		Properties:  make(map[string]interface{}),
		ExtraFields: make(map[string]interface{}),
	}
	for k, v := range inputSchema {
		switch k {
		case "type":
			if s, ok := v.(string); ok && s != "" {
				schema.Type = s
			}
		case "properties":
			if props, ok := v.(map[string]interface{}); ok {
				schema.Properties = props
			}
		case "required":
			schema.Required = toStrings(v)
		default:
			schema.ExtraFields[k] = v
		}
	}
	return ToolSpec{Name: name, Description: description, Schema: schema}
}

func toStrings(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Request represents a complete LLM API request.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Tools       []ToolSpec
	MaxTokens   int64
	Temperature *float64 // Optional temperature override
}

// Response represents a complete LLM API response.
type Response struct {
	Content    []ContentBlock
	Usage      *Usage
	StopReason string
}

// Text concatenates all text blocks of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == ContentBlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the native tool-use blocks of the response in order.
func (r *Response) ToolUses() []ToolUseBlock {
	if r == nil {
		return nil
	}
	var uses []ToolUseBlock
	for _, block := range r.Content {
		if block.Type == ContentBlockTypeToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	// Provider-specific usage fields can be added here
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// StreamDelta represents a single delta in a streaming response.
type StreamDelta struct {
	Type StreamDeltaType
	Text string // For text deltas
}

// StreamDeltaType represents the type of streaming delta.
type StreamDeltaType string

const (
	StreamDeltaTypeText StreamDeltaType = "text"
)

// StreamEvent represents a complete streaming event.
type StreamEvent struct {
	Type  StreamEventType
	Delta *StreamDelta
	Usage *Usage
	Done  bool
}

// StreamEventType represents the type of streaming event.
type StreamEventType string

const (
	StreamEventTypeStart        StreamEventType = "start"
	StreamEventTypeContentDelta StreamEventType = "content_delta"
	StreamEventTypeMessageDelta StreamEventType = "message_delta"
	StreamEventTypeStop         StreamEventType = "stop"
)

// NewTextMessage creates a new message with a single text block.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{
				Type: ContentBlockTypeText,
				Text: text,
			},
		},
	}
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
