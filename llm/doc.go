// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow the invocation
// layer to talk to multiple providers (OpenAI-compatible endpoints, Anthropic, Ollama)
// without being coupled to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: ChatMessage is the flat text message callers supply. Message is the
//     provider-bound form with content blocks (text, tool use).
//
//  2. Tools: ToolSpec describes a tool offered to the model; ToolUseBlock is a native
//     tool invocation returned by the model.
//
//  3. Client Interface: Synchronous() for single-shot calls and Stream() for incremental
//     text delivery. Implementations must abort the HTTP request when ctx is cancelled.
//
//  4. Errors: The Error type carries a provider-neutral ErrorType, the HTTP status code
//     when one exists, and the original SDK error. Transports are responsible for
//     producing it; they never retry.
//
//  5. ProviderRegistry: resolves a ClientKey from configuration plus per-call overrides
//     and caches one Client per key.
//
// Usage Example
//
//	registry := llm.NewProviderRegistry(providerCfg, config.NewClient(logger))
//	client, key, err := registry.Client(llm.Override{Model: "gpt-4o-mini"})
//	if err != nil {
//	    return err
//	}
//	resp, err := client.Synchronous(ctx, &llm.Request{
//	    Model:    key.Model,
//	    Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello!")},
//	})
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Client interface
//  2. Translate between provider-specific types and llm package types
//  3. Translate provider errors into *llm.Error, including tools_unsupported detection
package llm
