package invoke

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTools struct {
	calls []string
	fail  map[string]error
}

func (f *fakeTools) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	f.calls = append(f.calls, name)
	if err := f.fail[name]; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%v)", name, args["q"]), nil
}

func toolUse(name, q string) *llm.Response {
	return &llm.Response{Content: []llm.ContentBlock{{
		Type:    llm.ContentBlockTypeToolUse,
		ToolUse: &llm.ToolUseBlock{ID: "c", Name: name, Input: map[string]interface{}{"q": q}},
	}}}
}

func TestRunToolsExecutesUntilDone(t *testing.T) {
	client := &fakeClient{steps: []step{
		{resp: toolUse("search__COLON__web", "go")},
		{resp: textResponse("Go is a language.")},
	}}
	h := newHarness(client)
	tools := &fakeTools{}

	result, turns, err := h.inv.RunTools(context.Background(), userMessages("what is go"),
		[]llm.ToolSpec{llm.NewToolSpec("search:web", "search", nil)}, tools, CallConfig{}, Options{}, 5)
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", result.Content)
	assert.Equal(t, []string{"search:web"}, tools.calls)
	require.Len(t, turns, 2)
	require.Len(t, turns[0].Outputs, 1)
	assert.Equal(t, "search:web(go)", turns[0].Outputs[0].Output)

	second := client.requests[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.True(t, strings.Contains(last.Content[0].Text, "search:web(go)"))
}

func TestRunToolsReportsToolErrorsToModel(t *testing.T) {
	client := &fakeClient{steps: []step{
		{resp: toolUse("broken", "x")},
		{resp: textResponse("sorry")},
	}}
	h := newHarness(client)
	tools := &fakeTools{fail: map[string]error{"broken": errors.New("disk full")}}

	result, turns, err := h.inv.RunTools(context.Background(), userMessages("q"),
		[]llm.ToolSpec{llm.NewToolSpec("broken", "", nil)}, tools, CallConfig{}, Options{}, 5)
	require.NoError(t, err)
	assert.Equal(t, "sorry", result.Content)
	assert.True(t, turns[0].Outputs[0].IsError)

	second := client.requests[1]
	assert.Contains(t, second.Messages[len(second.Messages)-1].Content[0].Text, "disk full")
}

func TestRunToolsIterationBound(t *testing.T) {
	client := &fakeClient{steps: []step{{resp: toolUse("again", "x")}}}
	h := newHarness(client)

	_, turns, err := h.inv.RunTools(context.Background(), userMessages("q"),
		[]llm.ToolSpec{llm.NewToolSpec("again", "", nil)}, &fakeTools{}, CallConfig{}, Options{}, 3)
	require.Error(t, err)
	assert.Len(t, turns, 3)
	assert.Equal(t, 3, client.callCount())
}

func TestRunToolsContinuesOnInlineMarkers(t *testing.T) {
	client := &fakeClient{steps: []step{
		{resp: textResponse("checking <|tool_call_begin|>")},
		{resp: textResponse("done")},
	}}
	h := newHarness(client)

	result, turns, err := h.inv.RunTools(context.Background(), userMessages("q"), nil, &fakeTools{}, CallConfig{}, Options{}, 5)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Content)
	assert.Len(t, turns, 2)
}
