package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements the llm.Client interface for OpenAI-compatible chat
// completion endpoints (OpenAI itself, Groq, OpenRouter, local gateways).
type OpenAIClient struct {
	client *openai.Client
	model  string // Default model to use if not specified in request
}

// NewOpenAIClient creates a new OpenAIClient.
// If apiKey is empty, it will return an error.
// If baseURL is empty, it will use the default OpenAI API endpoint.
func NewOpenAIClient(apiKey, baseURL, model, organization string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if organization != "" {
		config.OrgID = organization
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

func (c *OpenAIClient) buildRequest(req *llm.Request, stream bool) (openai.ChatCompletionRequest, error) {
	if req == nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("request is required")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return openai.ChatCompletionRequest{}, fmt.Errorf("model is required")
	}

	// OpenAI accepts the system prompt inline as the first message.
	msgs := ToOpenAIMessages(req.Messages)
	if req.System != "" {
		msgs = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}}, msgs...)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	return chatReq, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *OpenAIClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	chatReq, err := c.buildRequest(req, false)
	if err != nil {
		return nil, err
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertOpenAIError(err, chatReq.Model, len(chatReq.Tools) > 0)
	}

	if len(chatResp.Choices) == 0 {
		return nil, llm.NewEmptyResponseError("no choices in response")
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0, 1+len(choice.Message.ToolCalls))
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, toolCall := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOpenAIToolCall(toolCall),
		})
	}

	stopReason := "stop"
	switch choice.FinishReason {
	case openai.FinishReasonLength:
		stopReason = "max_tokens"
	case openai.FinishReasonToolCalls:
		stopReason = "tool_calls"
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		StopReason: stopReason,
	}, nil
}

// Stream implements llm.Client.Stream.
func (c *OpenAIClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	chatReq, err := c.buildRequest(req, true)
	if err != nil {
		return nil, err
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, convertOpenAIError(err, chatReq.Model, len(chatReq.Tools) > 0)
	}
	return newOpenAIStream(stream, chatReq.Model), nil
}

// convertOpenAIError converts OpenAI API errors to llm.Error types.
func convertOpenAIError(err error, model string, hasTools bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return llm.NewCancelledError("request aborted", err)
	}

	var (
		status  int
		message string
	)
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		message = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		message = string(reqErr.Body)
		if message == "" && reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
	default:
		// Transport-level failure; the classifier looks at the message text.
		return llm.NewProviderError("OpenAI request failed", err)
	}

	if hasTools && llm.LooksLikeToolsUnsupported(message) {
		return llm.NewToolsUnsupportedError(model, err)
	}

	switch status {
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(fmt.Sprintf("OpenAI rate limit: %s", message), nil, err)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError(fmt.Sprintf("OpenAI request too large: %s", message), err)
	default:
		return llm.NewStatusError(fmt.Sprintf("OpenAI API error (%d): %s", status, message), status, err)
	}
}
