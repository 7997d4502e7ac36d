package anthropic

import (
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/rs/zerolog"
)

// anthropicStream implements the llm.Stream interface for Anthropic streaming responses.
// Only text deltas are surfaced; the invocation layer recovers tool calls from text.
type anthropicStream struct {
	stream   *ssestream.Stream[anthropic.MessageStreamEventUnion]
	model    string
	hasTools bool
	logger   zerolog.Logger

	mu      sync.Mutex
	event   *llm.StreamEvent
	usage   *llm.Usage
	err     error
	done    bool
	started bool
}

func newAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], model string, hasTools bool, logger zerolog.Logger) *anthropicStream {
	return &anthropicStream{
		stream:   stream,
		model:    model,
		hasTools: hasTools,
		logger:   logger,
	}
}

// Next advances to the next event in the stream.
func (s *anthropicStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || s.err != nil {
		return false
	}

	for s.stream.Next() {
		switch evt := s.stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			if !s.started {
				s.started = true
				s.event = &llm.StreamEvent{Type: llm.StreamEventTypeStart}
				return true
			}

		case anthropic.ContentBlockDeltaEvent:
			if d, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
				s.event = &llm.StreamEvent{
					Type: llm.StreamEventTypeContentDelta,
					Delta: &llm.StreamDelta{
						Type: llm.StreamDeltaTypeText,
						Text: d.Text,
					},
				}
				return true
			}

		case anthropic.MessageDeltaEvent:
			s.usage = &llm.Usage{
				InputTokens:              evt.Usage.InputTokens,
				OutputTokens:             evt.Usage.OutputTokens,
				CacheCreationInputTokens: evt.Usage.CacheCreationInputTokens,
				CacheReadInputTokens:     evt.Usage.CacheReadInputTokens,
			}
			logCacheStats(s.logger, s.usage)
			s.event = &llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: s.usage}
			return true

		case anthropic.MessageStopEvent:
			s.done = true
			s.event = &llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: s.usage, Done: true}
			return true
		}
	}

	if err := s.stream.Err(); err != nil {
		s.err = convertAnthropicError(err, s.model, s.hasTools)
	}
	s.done = true
	return false
}

// Event returns the current event.
func (s *anthropicStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event
}

// Err returns any error that occurred during streaming.
func (s *anthropicStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the stream and releases resources.
func (s *anthropicStream) Close() error {
	s.done = true
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

var _ llm.Stream = (*anthropicStream)(nil)
