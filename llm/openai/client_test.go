package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOpenAIClient("test-key", server.URL+"/v1", "gpt-test", "")
	require.NoError(t, err)
	return client
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"message":%q,"type":"invalid_request_error"}}`, message)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", "gpt-test", "")
	require.Error(t, err)
}

func TestSynchronousSendsSystemAndTools(t *testing.T) {
	var captured map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "checking",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "github__list", "arguments": "{\"owner\":\"me\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`)
	})

	resp, err := client.Synchronous(context.Background(), &llm.Request{
		System:   "be brief",
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		Tools: []llm.ToolSpec{llm.NewToolSpec("github__list", "List repos", map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"owner": map[string]interface{}{"type": "string"}},
		})},
	})
	require.NoError(t, err)

	msgs := captured["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "be brief", msgs[0].(map[string]interface{})["content"])
	assert.Equal(t, "gpt-test", captured["model"])
	assert.Len(t, captured["tools"], 1)

	assert.Equal(t, "checking", resp.Text())
	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "github__list", uses[0].Name)
	assert.Equal(t, "me", uses[0].Input["owner"])
	assert.Equal(t, "tool_calls", resp.StopReason)
	assert.Equal(t, int64(12), resp.Usage.InputTokens)
}

func TestSynchronousNoChoicesIsEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","choices":[]}`)
	})

	_, err := client.Synchronous(context.Background(), &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	require.Error(t, err)
	assert.True(t, llm.IsEmptyResponseError(err))
}

func TestSynchronousErrorConversion(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		withTool bool
		check    func(t *testing.T, err error)
	}{
		{
			name:    "rate limit",
			status:  http.StatusTooManyRequests,
			message: "slow down",
			check: func(t *testing.T, err error) {
				assert.True(t, llm.IsRateLimitError(err))
			},
		},
		{
			name:    "server error keeps status",
			status:  http.StatusBadGateway,
			message: "upstream failed",
			check: func(t *testing.T, err error) {
				llmErr, ok := llm.AsError(err)
				require.True(t, ok)
				assert.Equal(t, http.StatusBadGateway, llmErr.StatusCode)
				assert.Equal(t, llm.ErrorTypeProvider, llmErr.Type)
			},
		},
		{
			name:    "bad request",
			status:  http.StatusBadRequest,
			message: "invalid field",
			check: func(t *testing.T, err error) {
				llmErr, ok := llm.AsError(err)
				require.True(t, ok)
				assert.Equal(t, llm.ErrorTypeInvalidRequest, llmErr.Type)
			},
		},
		{
			name:     "tools unsupported",
			status:   http.StatusBadRequest,
			message:  "this model does not support tools",
			withTool: true,
			check: func(t *testing.T, err error) {
				assert.True(t, llm.IsToolsUnsupportedError(err))
				llmErr, _ := llm.AsError(err)
				assert.Equal(t, "gpt-test", llmErr.Model)
			},
		},
		{
			name:    "tool phrase without tools is plain invalid request",
			status:  http.StatusBadRequest,
			message: "this model does not support tools",
			check: func(t *testing.T, err error) {
				assert.False(t, llm.IsToolsUnsupportedError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.status, tt.message)
			})

			req := &llm.Request{Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}}
			if tt.withTool {
				req.Tools = []llm.ToolSpec{llm.NewToolSpec("t", "", nil)}
			}
			_, err := client.Synchronous(context.Background(), req)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSynchronousCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Synchronous(ctx, &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	require.Error(t, err)
	assert.True(t, llm.IsCancelledError(err))
}

func TestStreamDeliversTextDeltas(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hel", "lo"} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"c\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	stream, err := client.Stream(context.Background(), &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var text string
	var stopped bool
	for stream.Next() {
		event := stream.Event()
		switch event.Type {
		case llm.StreamEventTypeContentDelta:
			text += event.Delta.Text
		case llm.StreamEventTypeStop:
			stopped = true
		}
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, "Hello", text)
	assert.True(t, stopped)
}
