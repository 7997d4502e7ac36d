package openai

import (
	"errors"
	"io"
	"sync"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	openai "github.com/sashabaranov/go-openai"
)

// openaiStream implements the llm.Stream interface for OpenAI streaming responses.
// Each Next call pulls one chunk off the wire so text reaches the caller as it arrives.
type openaiStream struct {
	stream *openai.ChatCompletionStream
	model  string

	mu    sync.Mutex
	event *llm.StreamEvent
	usage *llm.Usage
	err   error
	done  bool
}

func newOpenAIStream(stream *openai.ChatCompletionStream, model string) *openaiStream {
	return &openaiStream{
		stream: stream,
		model:  model,
	}
}

// Next advances to the next event in the stream.
func (s *openaiStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || s.err != nil {
		return false
	}

	for {
		response, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			s.event = &llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: s.usage, Done: true}
			return true
		}
		if err != nil {
			s.err = convertOpenAIError(err, s.model, false)
			s.done = true
			return false
		}

		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			s.usage = &llm.Usage{
				InputTokens:  int64(response.Usage.PromptTokens),
				OutputTokens: int64(response.Usage.CompletionTokens),
			}
		}
		if len(response.Choices) == 0 {
			continue
		}

		if delta := response.Choices[0].Delta.Content; delta != "" {
			s.event = &llm.StreamEvent{
				Type: llm.StreamEventTypeContentDelta,
				Delta: &llm.StreamDelta{
					Type: llm.StreamDeltaTypeText,
					Text: delta,
				},
			}
			return true
		}
	}
}

// Event returns the current event.
func (s *openaiStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event
}

// Err returns any error that occurred during streaming.
func (s *openaiStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the stream and releases resources.
func (s *openaiStream) Close() error {
	s.done = true
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

var _ llm.Stream = (*openaiStream)(nil)
