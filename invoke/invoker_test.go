package invoke

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeSanitizesAndRestoresToolNames(t *testing.T) {
	client := &fakeClient{steps: []step{{resp: &llm.Response{Content: []llm.ContentBlock{
		{Type: llm.ContentBlockTypeToolUse, ToolUse: &llm.ToolUseBlock{
			ID: "1", Name: "proxy_files__COLON__read_file_1", Input: map[string]interface{}{"path": "x"},
		}},
	}}}}}
	h := newHarness(client)

	tools := []llm.ToolSpec{
		llm.NewToolSpec("files:read.file", "read a file", nil),
		llm.NewToolSpec("files:read_file", "read a file too", nil),
	}
	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "read x"},
	}

	result, err := h.inv.Invoke(context.Background(), messages, tools, CallConfig{}, Options{SessionID: "s"})
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "sys", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Tools, 2)
	assert.Equal(t, "files__COLON__read_file", req.Tools[0].Name)
	assert.Equal(t, "files__COLON__read_file_1", req.Tools[1].Name)
	assert.Equal(t, "read a file too", req.Tools[1].Description)

	// Caller's tool list is untouched.
	assert.Equal(t, "files:read.file", tools[0].Name)

	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "files:read_file", result.ToolCalls[0].Name)
	assert.True(t, result.MoreWork())
	assert.Equal(t, 0, h.aborts.Active("s"))
}

func TestInvokeRetriesEmptyResponseFromParser(t *testing.T) {
	client := &fakeClient{steps: []step{
		{resp: textResponse("")},
		{resp: textResponse("answer")},
	}}
	h := newHarness(client)

	result, err := h.inv.Invoke(context.Background(), userMessages("q"), nil, CallConfig{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "answer", result.Content)
	assert.Equal(t, 2, client.callCount())
	assert.Empty(t, h.sleeper.delays)
}

func TestInvokeUsesCallConfig(t *testing.T) {
	client := &fakeClient{steps: []step{{err: statusErr(http.StatusBadGateway)}}}
	h := newHarness(client)

	_, err := h.inv.Invoke(context.Background(), userMessages("q"), nil, CallConfig{
		MaxRetries: 1,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   20 * time.Millisecond,
		Model:      "other-model",
		MaxTokens:  256,
	}, Options{})
	require.Error(t, err)
	assert.Equal(t, 2, client.callCount())
	assert.Equal(t, "other-model", client.requests[0].Model)
	assert.Equal(t, int64(256), client.requests[0].MaxTokens)
	require.Len(t, h.sleeper.delays, 1)
	assert.LessOrEqual(t, h.sleeper.delays[0], 20*time.Millisecond)
}

func TestInvokeStopSessionAbortsInFlightCall(t *testing.T) {
	started := make(chan struct{})
	client := &fakeClient{hook: func(ctx context.Context, n int) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	h := newHarness(client)

	done := make(chan error, 1)
	go func() {
		_, err := h.inv.Invoke(context.Background(), userMessages("q"), nil, CallConfig{}, Options{SessionID: "run-1"})
		done <- err
	}()

	<-started
	assert.Equal(t, 1, h.aborts.StopSession("run-1"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, IsCancelled(err))
	case <-time.After(5 * time.Second):
		t.Fatal("invoke did not return after stop")
	}
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, 0, h.aborts.Active("run-1"))
}

func TestInvokeToolsUnsupportedCarriesModel(t *testing.T) {
	client := &fakeClient{steps: []step{{err: llm.NewToolsUnsupportedError("tiny-model", errors.New("400"))}}}
	h := newHarness(client)

	_, err := h.inv.Invoke(context.Background(), userMessages("q"), []llm.ToolSpec{llm.NewToolSpec("a", "", nil)}, CallConfig{}, Options{})
	require.Error(t, err)
	assert.True(t, IsToolsUnsupported(err))
	llmErr, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "tiny-model", llmErr.Model)
	assert.Equal(t, 1, client.callCount())
}

func TestComplete(t *testing.T) {
	client := &fakeClient{steps: []step{
		{err: llm.NewNetworkError("reset", nil)},
		{resp: textResponse("  a haiku  ")},
	}}
	h := newHarness(client)
	progress := &progressLog{}

	text, err := h.inv.Complete(context.Background(), "write a haiku", CallConfig{}, Options{Progress: progress})
	require.NoError(t, err)
	assert.Equal(t, "a haiku", text)

	req := client.requests[0]
	assert.Empty(t, req.System)
	assert.Empty(t, req.Tools)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "write a haiku", req.Messages[0].Content[0].Text)

	require.Len(t, progress.events, 2)
	assert.True(t, progress.events[0].IsRetrying)
	assert.False(t, progress.events[1].IsRetrying)
}

func TestInvokeStreaming(t *testing.T) {
	stream := &fakeStream{fragments: []string{"Hel", "lo ", "world"}}
	client := &fakeClient{stream: stream}
	h := newHarness(client)

	var fragments, accumulated []string
	result, err := h.inv.InvokeStreaming(context.Background(), []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
	}, ChunkFunc(func(fragment, acc string) error {
		fragments = append(fragments, fragment)
		accumulated = append(accumulated, acc)
		return nil
	}), CallConfig{}, Options{SessionID: "s"})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", result.Content)
	assert.Equal(t, []string{"Hel", "lo ", "world"}, fragments)
	assert.Equal(t, []string{"Hel", "Hello ", "Hello world"}, accumulated)
	assert.Equal(t, "sys", client.requests[0].System)
	assert.True(t, stream.closed)
	assert.Equal(t, 0, h.aborts.Active("s"))
}

func TestInvokeStreamingConsumerStopReturnsPartial(t *testing.T) {
	stream := &fakeStream{fragments: []string{"one ", "two ", "three"}}
	h := newHarness(&fakeClient{stream: stream})

	result, err := h.inv.InvokeStreaming(context.Background(), userMessages("count"), ChunkFunc(func(fragment, acc string) error {
		if fragment == "two " {
			return ErrStopStream
		}
		return nil
	}), CallConfig{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "one two", result.Content)
}

func TestInvokeStreamingRetriesConnectionOnly(t *testing.T) {
	stream := &fakeStream{fragments: []string{"partial"}, err: llm.NewNetworkError("stream reset", nil)}
	client := &fakeClient{stream: stream, streamErr: []error{statusErr(http.StatusServiceUnavailable)}}
	h := newHarness(client)

	result, err := h.inv.InvokeStreaming(context.Background(), userMessages("q"), ChunkFunc(func(string, string) error { return nil }), CallConfig{}, Options{})
	require.Error(t, err)
	assert.Equal(t, 2, client.streams, "opening the stream is retried")
	require.Len(t, h.sleeper.delays, 1)

	require.NotNil(t, result)
	assert.Equal(t, "partial", result.Content, "partial output survives a mid-stream failure")
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "stream", callErr.Site)
	assert.Equal(t, 1, callErr.Attempts)
}

func TestInvokeStreamingStoppedMidStream(t *testing.T) {
	stream := &fakeStream{fragments: []string{"a", "b", "c"}}
	h := newHarness(&fakeClient{stream: stream})

	result, err := h.inv.InvokeStreaming(context.Background(), userMessages("q"), ChunkFunc(func(fragment, acc string) error {
		if fragment == "b" {
			h.aborts.EmergencyStop()
		}
		return nil
	}), CallConfig{}, Options{SessionID: "s"})
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	require.NotNil(t, result)
	assert.Equal(t, "abc", result.Content)
}

func TestInvokeStreamingEmpty(t *testing.T) {
	h := newHarness(&fakeClient{stream: &fakeStream{}})

	result, err := h.inv.InvokeStreaming(context.Background(), userMessages("q"), ChunkFunc(func(string, string) error { return nil }), CallConfig{}, Options{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, KindEmptyResponse, Classify(err))
}
