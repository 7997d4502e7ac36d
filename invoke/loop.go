package invoke

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aj47/nvidia-control-center-sub003/llm"
)

// DefaultMaxIterations bounds RunTools when the caller passes zero.
const DefaultMaxIterations = 10

// ToolExecutor runs a tool by its original (restored) name.
type ToolExecutor interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Turn is one round of a RunTools conversation.
type Turn struct {
	Result  *CallResult
	Outputs []ToolOutput
}

// ToolOutput is the result of executing one tool call.
type ToolOutput struct {
	Call    ToolCall
	Output  string
	IsError bool
}

// RunTools invokes the model repeatedly, executing requested tools and
// feeding their output back, until a reply needs no more work or
// maxIterations rounds have run. Tool failures are reported to the model
// rather than ending the loop.
func (inv *Invoker) RunTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolSpec, exec ToolExecutor, cfg CallConfig, opts Options, maxIterations int) (*CallResult, []Turn, error) {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	conversation := append([]llm.ChatMessage(nil), messages...)
	var turns []Turn

	for i := 0; i < maxIterations; i++ {
		result, err := inv.Invoke(ctx, conversation, tools, cfg, opts)
		if err != nil {
			return nil, turns, err
		}

		turn := Turn{Result: result}
		if len(result.ToolCalls) == 0 {
			turns = append(turns, turn)
			if !result.MoreWork() {
				return result, turns, nil
			}
			conversation = append(conversation,
				llm.ChatMessage{Role: llm.RoleAssistant, Content: result.Content},
				llm.ChatMessage{Role: llm.RoleUser, Content: "Continue."},
			)
			continue
		}

		conversation = append(conversation, llm.ChatMessage{Role: llm.RoleAssistant, Content: describeCalls(result)})
		for _, call := range result.ToolCalls {
			out := ToolOutput{Call: call}
			out.Output, err = exec.CallTool(ctx, call.Name, call.Arguments)
			if err != nil {
				if IsCancelled(err) || ctx.Err() != nil {
					return nil, turns, err
				}
				out.Output = err.Error()
				out.IsError = true
				inv.logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool call failed")
			}
			turn.Outputs = append(turn.Outputs, out)
			conversation = append(conversation, llm.ChatMessage{Role: llm.RoleUser, Content: formatToolOutput(out)})
		}
		turns = append(turns, turn)
	}

	return nil, turns, fmt.Errorf("tool loop did not finish after %d iterations", maxIterations)
}

// describeCalls renders the assistant turn in the JSON shape the parser accepts,
// so models that answer in text see a consistent format.
func describeCalls(result *CallResult) string {
	b, err := json.Marshal(CallResult{Content: result.Content, ToolCalls: result.ToolCalls})
	if err != nil {
		return result.Content
	}
	return string(b)
}

func formatToolOutput(out ToolOutput) string {
	if out.IsError {
		return fmt.Sprintf("Tool %s failed: %s", out.Call.Name, out.Output)
	}
	return fmt.Sprintf("Tool %s returned:\n%s", out.Call.Name, out.Output)
}
