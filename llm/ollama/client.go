package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/ollama/ollama/api"
)

// OllamaClient implements the llm.Client interface for Ollama's API.
type OllamaClient struct {
	client *api.Client
	model  string // Default model to use if not specified in request
}

// NewOllamaClient creates a new OllamaClient.
// If host is empty, it will use the default from environment (OLLAMA_HOST or http://localhost:11434).
func NewOllamaClient(host, model string) (*OllamaClient, error) {
	var client *api.Client
	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &OllamaClient{
		client: client,
		model:  model,
	}, nil
}

// parseHost parses a host string into a URL.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

func (c *OllamaClient) buildRequest(req *llm.Request, stream bool) (*api.ChatRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	msgs := ToOllamaMessages(req.Messages)
	if req.System != "" {
		msgs = append([]api.Message{{Role: "system", Content: req.System}}, msgs...)
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
		Options:  make(map[string]interface{}),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOllamaTools(req.Tools)
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	return chatReq, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *OllamaClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	chatReq, err := c.buildRequest(req, false)
	if err != nil {
		return nil, err
	}

	var chatResp api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertOllamaError(err, chatReq.Model, len(chatReq.Tools) > 0)
	}

	schemas := toolSchemas(req.Tools)
	content := make([]llm.ContentBlock, 0, 1+len(chatResp.Message.ToolCalls))
	if chatResp.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: chatResp.Message.Content,
		})
	}
	for i, toolCall := range chatResp.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOllamaToolCall(toolCall, i, schemas),
		})
	}

	stopReason := "end_turn"
	if chatResp.Done {
		stopReason = "stop"
	}
	if chatResp.DoneReason == "length" {
		stopReason = "max_tokens"
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.PromptEvalCount),
			OutputTokens: int64(chatResp.EvalCount),
		},
		StopReason: stopReason,
	}, nil
}

// Stream implements llm.Client.Stream.
func (c *OllamaClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	chatReq, err := c.buildRequest(req, true)
	if err != nil {
		return nil, err
	}
	stream := newOllamaStream(ctx, c.client, chatReq)
	if err := stream.open(); err != nil {
		stream.Close()
		return nil, err
	}
	return stream, nil
}

// convertOllamaError converts Ollama client errors to llm.Error types.
func convertOllamaError(err error, model string, hasTools bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return llm.NewCancelledError("request aborted", err)
	}

	var statusErr api.StatusError
	if !errors.As(err, &statusErr) {
		if hasTools && llm.LooksLikeToolsUnsupported(err.Error()) {
			return llm.NewToolsUnsupportedError(model, err)
		}
		return llm.NewProviderError("ollama chat request failed", err)
	}

	message := statusErr.ErrorMessage
	if message == "" {
		message = statusErr.Status
	}
	if hasTools && llm.LooksLikeToolsUnsupported(message) {
		return llm.NewToolsUnsupportedError(model, err)
	}
	if statusErr.StatusCode == http.StatusTooManyRequests {
		return llm.NewRateLimitError(fmt.Sprintf("ollama rate limit: %s", message), nil, err)
	}
	return llm.NewStatusError(fmt.Sprintf("ollama error (%d): %s", statusErr.StatusCode, message), statusErr.StatusCode, err)
}
