package llm

import "strings"

// Phrases providers use when a model rejects tool definitions.
var toolsUnsupportedPhrases = []string{
	"does not support tools",
	"does not support tool",
	"tools are not supported",
	"tool use is not supported",
	"tool calling is not supported",
	"function calling is not supported",
	"tool_choice is not supported",
	"tools is not supported",
}

// LooksLikeToolsUnsupported reports whether a provider error message says the
// model cannot take tool definitions.
func LooksLikeToolsUnsupported(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range toolsUnsupportedPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
