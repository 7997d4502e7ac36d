package ollama

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// ToOllamaMessages converts llm.Messages to Ollama chat message format.
func ToOllamaMessages(msgs []llm.Message) []api.Message {
	return lo.Map(msgs, func(msg llm.Message, _ int) api.Message {
		return ToOllamaMessage(msg)
	})
}

// ToOllamaMessage converts a single llm.Message to Ollama format.
func ToOllamaMessage(msg llm.Message) api.Message {
	var content string
	var toolCalls []api.ToolCall

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if content != "" {
				content += "\n"
			}
			content += block.Text
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			args := make(api.ToolCallFunctionArguments)
			for k, v := range block.ToolUse.Input {
				args[k] = v
			}
			toolCalls = append(toolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      block.ToolUse.Name,
					Arguments: args,
				},
			})
		}
	}

	return api.Message{
		Role:      string(msg.Role),
		Content:   content,
		ToolCalls: toolCalls,
	}
}

// ToOllamaTools converts llm.ToolSpecs to Ollama function format.
func ToOllamaTools(specs []llm.ToolSpec) []api.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		return ToOllamaTool(&spec)
	})
}

// ToOllamaTool converts a single llm.ToolSpec to Ollama Tool format.
// Only the type and description of each property survive the conversion.
func ToOllamaTool(spec *llm.ToolSpec) api.Tool {
	properties := make(map[string]api.ToolProperty, len(spec.Schema.Properties))
	for k, v := range spec.Schema.Properties {
		prop := api.ToolProperty{Type: []string{"string"}}
		if propMap, ok := v.(map[string]interface{}); ok {
			if propType, ok := propMap["type"].(string); ok {
				prop.Type = []string{propType}
			}
			if desc, ok := propMap["description"].(string); ok {
				prop.Description = desc
			}
		}
		properties[k] = prop
	}

	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       schemaType,
				Properties: properties,
				Required:   spec.Schema.Required,
			},
		},
	}
}

func toolSchemas(specs []llm.ToolSpec) map[string]llm.ToolSchema {
	return lo.SliceToMap(specs, func(spec llm.ToolSpec) (string, llm.ToolSchema) {
		return spec.Name, spec.Schema
	})
}

// FromOllamaToolCall converts an Ollama tool call to llm.ToolUseBlock. Ollama
// does not assign call ids, so one is derived from the name and position.
// Arguments are coerced to the declared property types when the tool's
// schema is known; smaller models often quote numbers and booleans.
func FromOllamaToolCall(toolCall api.ToolCall, index int, schemas map[string]llm.ToolSchema) *llm.ToolUseBlock {
	input := make(map[string]interface{}, len(toolCall.Function.Arguments))
	for k, v := range toolCall.Function.Arguments {
		input[k] = v
	}
	if schema, ok := schemas[toolCall.Function.Name]; ok {
		input = coerceArguments(input, schema)
	}

	return &llm.ToolUseBlock{
		ID:    fmt.Sprintf("call_%s_%d", toolCall.Function.Name, index),
		Name:  toolCall.Function.Name,
		Input: input,
	}
}

// coerceArguments converts argument values to the types declared in schema.
// Values that cannot be converted are left untouched.
func coerceArguments(args map[string]interface{}, schema llm.ToolSchema) map[string]interface{} {
	result := make(map[string]interface{}, len(args))
	for k, v := range args {
		result[k] = v
		propSchema, ok := schema.Properties[k]
		if !ok {
			continue
		}
		if converted, ok := convertValueToType(v, getPropertyType(propSchema)); ok {
			result[k] = converted
		}
	}
	return result
}

// getPropertyType extracts the type from a property schema definition
func getPropertyType(propSchema interface{}) string {
	if propMap, ok := propSchema.(map[string]interface{}); ok {
		if propType, ok := propMap["type"].(string); ok {
			return propType
		}
	}
	return "string"
}

func convertValueToType(v interface{}, targetType string) (interface{}, bool) {
	switch targetType {
	case "integer":
		switch val := v.(type) {
		case float64:
			return int(val), true
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(val))
			return i, err == nil
		}
	case "number":
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return f, err == nil
		}
	case "boolean":
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "true", "1", "yes":
				return true, true
			case "false", "0", "no":
				return false, true
			}
		}
	case "string":
		if v != nil {
			if _, isString := v.(string); !isString {
				return fmt.Sprintf("%v", v), true
			}
		}
	}
	return nil, false
}
