package openai

import (
	"encoding/json"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	openai "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"
)

// ToOpenAIMessages converts llm.Messages to OpenAI chat message format.
func ToOpenAIMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	return lo.Map(msgs, func(msg llm.Message, _ int) openai.ChatCompletionMessage {
		return ToOpenAIMessage(msg)
	})
}

// ToOpenAIMessage converts a single llm.Message to OpenAI format.
func ToOpenAIMessage(msg llm.Message) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if msg.Role == llm.RoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}

	var content string
	for _, block := range msg.Content {
		if block.Type != llm.ContentBlockTypeText {
			continue
		}
		if content != "" {
			content += "\n"
		}
		content += block.Text
	}

	return openai.ChatCompletionMessage{
		Role:    role,
		Content: content,
	}
}

// ToOpenAITools converts llm.ToolSpecs to OpenAI function format.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) openai.Tool {
		return ToOpenAITool(&spec)
	})
}

// ToOpenAITool converts a single llm.ToolSpec to OpenAI Tool format.
func ToOpenAITool(spec *llm.ToolSpec) openai.Tool {
	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	properties := spec.Schema.Properties
	if properties == nil {
		properties = make(map[string]interface{})
	}

	parameters := map[string]interface{}{
		"type":       schemaType,
		"properties": properties,
	}
	if len(spec.Schema.Required) > 0 {
		parameters["required"] = spec.Schema.Required
	}
	for k, v := range spec.Schema.ExtraFields {
		parameters[k] = v
	}

	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parameters,
		},
	}
}

// FromOpenAIToolCall converts an OpenAI tool call response to llm.ToolUseBlock.
// Arguments that are not a JSON object become an empty input map.
func FromOpenAIToolCall(toolCall openai.ToolCall) *llm.ToolUseBlock {
	input := make(map[string]interface{})
	if toolCall.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil {
			input = make(map[string]interface{})
		}
	}

	return &llm.ToolUseBlock{
		ID:    toolCall.ID,
		Name:  toolCall.Function.Name,
		Input: input,
	}
}
