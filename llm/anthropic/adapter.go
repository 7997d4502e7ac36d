package anthropic

import (
	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/samber/lo"
)

// ToMessageParam converts an llm.Message to an Anthropic MessageParam.
func ToMessageParam(msg llm.Message) anthropic.MessageParam {
	contentBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			contentBlocks = append(contentBlocks, anthropic.NewTextBlock(block.Text))
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				contentBlocks = append(contentBlocks, anthropic.NewToolUseBlock(
					block.ToolUse.ID,
					block.ToolUse.Input,
					block.ToolUse.Name,
				))
			}
		}
	}

	if msg.Role == llm.RoleAssistant {
		return anthropic.NewAssistantMessage(contentBlocks...)
	}
	return anthropic.NewUserMessage(contentBlocks...)
}

// ToMessageParams converts a slice of llm.Messages to Anthropic MessageParams.
func ToMessageParams(msgs []llm.Message) []anthropic.MessageParam {
	return lo.Map(msgs, func(msg llm.Message, _ int) anthropic.MessageParam {
		return ToMessageParam(msg)
	})
}

// ToToolUnionParam converts an llm.ToolSpec to an Anthropic ToolUnionParam.
func ToToolUnionParam(spec *llm.ToolSpec) anthropic.ToolUnionParam {
	toolParam := anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties:  spec.Schema.Properties,
			Required:    spec.Schema.Required,
			ExtraFields: spec.Schema.ExtraFields,
		},
	}

	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

// ToToolUnionParams converts a slice of llm.ToolSpecs to Anthropic ToolUnionParams.
func ToToolUnionParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		return ToToolUnionParam(&spec)
	})
}
