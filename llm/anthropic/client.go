package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/rs/zerolog"
)

// defaultMaxTokens is sent when the caller leaves MaxTokens unset; the
// Messages API rejects requests without it.
const defaultMaxTokens = 4096

// AnthropicClient implements the llm.Client interface for Anthropic's API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// NewAnthropicClient creates a new AnthropicClient with the given API key.
// baseURL may be empty to use the public endpoint.
func NewAnthropicClient(apiKey, baseURL, model string, logger zerolog.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	// Only the invocation layer retries.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client: &client,
		model:  model,
		logger: logger,
	}, nil
}

func (c *AnthropicClient) buildParams(req *llm.Request) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("request is required")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return anthropic.MessageNewParams{}, fmt.Errorf("model is required")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  ToMessageParams(req.Messages),
		Tools:     ToToolUnionParams(req.Tools),
	}
	if req.System != "" {
		params.System = buildSystemBlocks(req.System)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *AnthropicClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertAnthropicError(err, string(params.Model), len(params.Tools) > 0)
	}

	content := make([]llm.ContentBlock, 0, len(message.Content))
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: block.Text,
			})
		case anthropic.ToolUseBlock:
			input := make(map[string]interface{})
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					input = make(map[string]interface{})
				}
			}
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    block.ID,
					Name:  block.Name,
					Input: input,
				},
			})
		}
	}

	usage := &llm.Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	logCacheStats(c.logger, usage)

	return &llm.Response{
		Content:    content,
		Usage:      usage,
		StopReason: string(message.StopReason),
	}, nil
}

// Stream implements llm.Client.Stream.
func (c *AnthropicClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	// The SDK sends the request eagerly; a rejected connection is already on the stream.
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, convertAnthropicError(err, string(params.Model), len(params.Tools) > 0)
	}
	return newAnthropicStream(stream, string(params.Model), len(params.Tools) > 0, c.logger), nil
}

// buildSystemBlocks places cache_control on the system block, which caches the
// tools and system prefix across calls that share them.
func buildSystemBlocks(systemPrompt string) []anthropic.TextBlockParam {
	return []anthropic.TextBlockParam{
		{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
	}
}

func logCacheStats(logger zerolog.Logger, usage *llm.Usage) {
	if usage == nil || (usage.CacheCreationInputTokens == 0 && usage.CacheReadInputTokens == 0) {
		return
	}
	cacheEfficiency := float64(0)
	if usage.InputTokens > 0 {
		cacheEfficiency = float64(usage.CacheReadInputTokens) / float64(usage.InputTokens) * 100
	}
	logger.Debug().
		Int64("input_tokens", usage.InputTokens).
		Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
		Int64("cache_read_tokens", usage.CacheReadInputTokens).
		Float64("cache_efficiency", cacheEfficiency).
		Msg("Prompt cache stats")
}

// convertAnthropicError converts Anthropic SDK errors to llm.Error types.
func convertAnthropicError(err error, model string, hasTools bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return llm.NewCancelledError("request aborted", err)
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError("Anthropic request failed", err)
	}

	message := apiErr.Error()
	if hasTools && llm.LooksLikeToolsUnsupported(message) {
		return llm.NewToolsUnsupportedError(model, err)
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(fmt.Sprintf("Anthropic rate limit: %s", message), nil, err)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError(fmt.Sprintf("Anthropic request too large: %s", message), err)
	case 529: // overloaded
		return llm.NewStatusError(fmt.Sprintf("Anthropic overloaded: %s", message), http.StatusServiceUnavailable, err)
	default:
		return llm.NewStatusError(fmt.Sprintf("Anthropic API error (%d): %s", apiErr.StatusCode, message), apiErr.StatusCode, err)
	}
}
