package invoke

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/aj47/nvidia-control-center-sub003/toolname"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ClientSource resolves the provider client for a call. *llm.ProviderRegistry
// implements it.
type ClientSource interface {
	Client(o llm.Override) (llm.Client, llm.ClientKey, error)
}

// ErrStopStream may be returned by a ChunkSink to end consumption early. The
// text received so far is returned as the result.
var ErrStopStream = errors.New("stop stream")

// ChunkSink receives streamed text. accumulated includes fragment.
type ChunkSink interface {
	OnChunk(fragment, accumulated string) error
}

// ChunkFunc adapts a function to ChunkSink.
type ChunkFunc func(fragment, accumulated string) error

func (f ChunkFunc) OnChunk(fragment, accumulated string) error { return f(fragment, accumulated) }

// Options carries the per-call cancellation and progress surface.
type Options struct {
	// SessionID scopes stop requests; empty uses the session-less pool.
	SessionID string
	Progress  ProgressSink
}

// Invoker is the entry point for model calls. It is safe for concurrent use.
type Invoker struct {
	clients  ClientSource
	codec    *toolname.Codec
	parser   *Parser
	executor *Executor
	defaults CallConfig
	logger   zerolog.Logger
}

// NewInvoker creates an Invoker. defaults fills fields a CallConfig leaves zero.
func NewInvoker(clients ClientSource, codec *toolname.Codec, parser *Parser, executor *Executor, defaults CallConfig, logger zerolog.Logger) *Invoker {
	return &Invoker{
		clients:  clients,
		codec:    codec,
		parser:   parser,
		executor: executor,
		defaults: defaults,
		logger:   logger.With().Str("component", "invoker").Logger(),
	}
}

// Coordinator returns the abort coordinator stop requests go through.
func (inv *Invoker) Coordinator() *Coordinator {
	return inv.executor.Coordinator()
}

func (inv *Invoker) prepare(cfg CallConfig) (llm.Client, llm.ClientKey, CallConfig, error) {
	cfg = cfg.merge(inv.defaults)
	client, key, err := inv.clients.Client(cfg.override())
	if err != nil {
		return nil, llm.ClientKey{}, cfg, err
	}
	return client, key, cfg, nil
}

// Invoke performs a tool-capable call. Tool names are sanitized for the
// provider and restored in the result.
func (inv *Invoker) Invoke(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolSpec, cfg CallConfig, opts Options) (*CallResult, error) {
	client, key, cfg, err := inv.prepare(cfg)
	if err != nil {
		return nil, err
	}

	payload := BuildRequest(messages)
	mapping := inv.codec.BuildMapping(lo.Map(tools, func(t llm.ToolSpec, _ int) string { return t.Name }))
	req := &llm.Request{
		Model:     key.Model,
		System:    payload.System,
		Messages:  payload.Messages,
		MaxTokens: cfg.MaxTokens,
		Tools: lo.Map(tools, func(t llm.ToolSpec, _ int) llm.ToolSpec {
			t.Name, _ = mapping.Sanitized(t.Name)
			return t
		}),
	}

	inv.logger.Debug().
		Str("provider", key.Provider).
		Str("model", key.Model).
		Str("session_id", opts.SessionID).
		Int("tools", len(tools)).
		Msg("Invoking model")

	return Run(ctx, inv.executor, inv.runOptions("invoke", cfg, opts), func(ctx context.Context) (*CallResult, error) {
		resp, err := client.Synchronous(llm.WithCallStart(ctx, time.Now()), req)
		if err != nil {
			return nil, err
		}
		return inv.parser.Parse(resp, mapping)
	})
}

// InvokeStreaming performs a text-only call, delivering fragments to sink as
// they arrive. Only opening the stream is retried. When the sink returns
// ErrStopStream the partial text is returned without error; when the stream
// fails or is stopped after output began, the partial result is returned
// alongside a *CallError.
func (inv *Invoker) InvokeStreaming(ctx context.Context, messages []llm.ChatMessage, sink ChunkSink, cfg CallConfig, opts Options) (*CallResult, error) {
	client, key, cfg, err := inv.prepare(cfg)
	if err != nil {
		return nil, err
	}

	payload := BuildRequest(messages)
	req := &llm.Request{
		Model:     key.Model,
		System:    payload.System,
		Messages:  payload.Messages,
		MaxTokens: cfg.MaxTokens,
	}

	// The stream outlives the connection attempt, so it gets its own registration.
	aborts := inv.executor.Coordinator()
	streamCtx, release := aborts.track(ctx, opts.SessionID)
	defer release()

	runOpts := inv.runOptions("stream", cfg, opts)
	stream, err := Run(streamCtx, inv.executor, runOpts, func(context.Context) (llm.Stream, error) {
		return client.Stream(streamCtx, req)
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = stream.Close() }()

	var acc strings.Builder
	for stream.Next() {
		event := stream.Event()
		if event == nil || event.Delta == nil || event.Delta.Type != llm.StreamDeltaTypeText || event.Delta.Text == "" {
			continue
		}
		acc.WriteString(event.Delta.Text)
		if sinkErr := sink.OnChunk(event.Delta.Text, acc.String()); sinkErr != nil {
			if errors.Is(sinkErr, ErrStopStream) {
				inv.logger.Debug().Str("session_id", opts.SessionID).Msg("Stream stopped by consumer")
				return inv.parser.ParseText(acc.String(), nil), nil
			}
			return inv.partial(acc.String()), inv.streamFailure(runOpts, sinkErr)
		}
	}

	streamErr := stream.Err()
	if streamErr == nil {
		streamErr = inv.executor.checkStopped(streamCtx, opts.SessionID)
	}
	if streamErr != nil {
		return inv.partial(acc.String()), inv.streamFailure(runOpts, streamErr)
	}

	if strings.TrimSpace(acc.String()) == "" {
		return nil, inv.streamFailure(runOpts, llm.NewEmptyResponseError("stream produced no text"))
	}
	return inv.parser.ParseText(acc.String(), nil), nil
}

func (inv *Invoker) partial(text string) *CallResult {
	if text == "" {
		return nil
	}
	return &CallResult{Content: strings.TrimSpace(text)}
}

func (inv *Invoker) streamFailure(opts RunOptions, err error) error {
	kind := Classify(err)
	inv.executor.diag.Failure(opts.Site, kind, 1, err)
	return &CallError{Site: opts.Site, Kind: kind, Attempts: 1, Err: err}
}

// Complete sends prompt as a single user message and returns the text reply.
func (inv *Invoker) Complete(ctx context.Context, prompt string, cfg CallConfig, opts Options) (string, error) {
	client, key, cfg, err := inv.prepare(cfg)
	if err != nil {
		return "", err
	}

	req := &llm.Request{
		Model:     key.Model,
		Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)},
		MaxTokens: cfg.MaxTokens,
	}

	return Run(ctx, inv.executor, inv.runOptions("complete", cfg, opts), func(ctx context.Context) (string, error) {
		resp, err := client.Synchronous(llm.WithCallStart(ctx, time.Now()), req)
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", llm.NewEmptyResponseError("no text in completion")
		}
		return text, nil
	})
}

func (inv *Invoker) runOptions(site string, cfg CallConfig, opts Options) RunOptions {
	return RunOptions{
		Site:      site,
		SessionID: opts.SessionID,
		Policy:    cfg.Policy(),
		Progress:  opts.Progress,
	}
}
