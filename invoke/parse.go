package invoke

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/aj47/nvidia-control-center-sub003/toolname"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ToolCall is a model-issued request to run a tool, with its original name.
type ToolCall struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// CallResult is the normalized outcome of one invocation. NeedsMoreWork is
// nil when the parser has no opinion and the caller should decide.
type CallResult struct {
	Content       string     `json:"content,omitempty"`
	ToolCalls     []ToolCall `json:"toolCalls,omitempty"`
	NeedsMoreWork *bool      `json:"needsMoreWork,omitempty"`
}

// MoreWork reports NeedsMoreWork, treating nil as false.
func (r *CallResult) MoreWork() bool {
	return r != nil && r.NeedsMoreWork != nil && *r.NeedsMoreWork
}

// DefaultInlineMarkers are tool-call delimiters some models emit as text
// instead of structured calls.
var DefaultInlineMarkers = []string{"<|tool_call", "<|tool_calls_section", "[TOOL_CALLS]"}

// markerToken matches <|...|> tokens and upper-case bracket tokens like [TOOL_CALLS].
var markerToken = regexp.MustCompile(`<\|[^|>]*\|>|\[[A-Z][A-Z_]*\]`)

// Parser turns provider responses into CallResults.
type Parser struct {
	codec   *toolname.Codec
	markers []string
	logger  zerolog.Logger
}

// NewParser creates a Parser. A nil markers slice selects DefaultInlineMarkers.
func NewParser(codec *toolname.Codec, markers []string, logger zerolog.Logger) *Parser {
	if markers == nil {
		markers = DefaultInlineMarkers
	}
	return &Parser{
		codec:   codec,
		markers: markers,
		logger:  logger.With().Str("component", "responseParser").Logger(),
	}
}

// Parse normalizes resp. Native tool calls win, then embedded JSON, then
// inline markers, then plain text. A response with neither text nor tool
// calls is an empty-response error.
func (p *Parser) Parse(resp *llm.Response, mapping *toolname.Mapping) (*CallResult, error) {
	text := resp.Text()

	if uses := resp.ToolUses(); len(uses) > 0 {
		return &CallResult{
			Content: strings.TrimSpace(text),
			ToolCalls: lo.Map(uses, func(u llm.ToolUseBlock, _ int) ToolCall {
				return ToolCall{
					ID:        u.ID,
					Name:      p.codec.Restore(u.Name, mapping),
					Arguments: u.Input,
				}
			}),
			NeedsMoreWork: lo.ToPtr(true),
		}, nil
	}

	if strings.TrimSpace(text) == "" {
		return nil, llm.NewEmptyResponseError("no text or tool calls")
	}
	return p.ParseText(text, mapping), nil
}

// ParseText applies the text rules of Parse to already-collected text.
func (p *Parser) ParseText(text string, mapping *toolname.Mapping) *CallResult {
	if result, ok := p.embeddedJSON(text, mapping); ok {
		return result
	}

	if p.hasInlineMarkers(text) {
		p.logger.Debug().Msg("Inline tool-call markers in response text")
		return &CallResult{
			Content:       strings.TrimSpace(markerToken.ReplaceAllString(text, "")),
			NeedsMoreWork: lo.ToPtr(true),
		}
	}

	return &CallResult{Content: strings.TrimSpace(text)}
}

func (p *Parser) hasInlineMarkers(text string) bool {
	return lo.SomeBy(p.markers, func(m string) bool {
		return m != "" && strings.Contains(text, m)
	})
}

type jsonToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type jsonResult struct {
	Content       *string        `json:"content"`
	ToolCalls     []jsonToolCall `json:"toolCalls"`
	NeedsMoreWork *bool          `json:"needsMoreWork"`
}

// embeddedJSON returns the first well-formed object in text that carries a
// toolCalls or content field.
func (p *Parser) embeddedJSON(text string, mapping *toolname.Mapping) (*CallResult, bool) {
	for span := range jsonObjectSpans(text) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(span), &fields); err != nil {
			continue
		}
		_, hasCalls := fields["toolCalls"]
		_, hasContent := fields["content"]
		if !hasCalls && !hasContent {
			continue
		}

		var parsed jsonResult
		if err := json.Unmarshal([]byte(span), &parsed); err != nil {
			p.logger.Debug().Err(err).Msg("Embedded JSON has unexpected field types")
			continue
		}

		result := &CallResult{NeedsMoreWork: parsed.NeedsMoreWork}
		if parsed.Content != nil {
			result.Content = strings.TrimSpace(*parsed.Content)
		}
		for _, call := range parsed.ToolCalls {
			if call.Name == "" {
				continue
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				Name:      p.codec.Restore(call.Name, mapping),
				Arguments: decodeArguments(call.Arguments),
			})
		}
		if len(result.ToolCalls) > 0 {
			result.NeedsMoreWork = lo.ToPtr(true)
		}
		return result, true
	}
	return nil, false
}

// decodeArguments accepts an object or a JSON-encoded object string.
func decodeArguments(raw json.RawMessage) map[string]interface{} {
	args := make(map[string]interface{})
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &args); err == nil {
			return args
		}
	}
	return make(map[string]interface{})
}
