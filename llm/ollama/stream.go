package ollama

import (
	"context"
	"sync"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/ollama/ollama/api"
)

// ollamaStream implements the llm.Stream interface for Ollama streaming responses.
// The Ollama client delivers chunks through a callback, so a goroutine runs the
// request and Next waits on a condition variable for buffered events.
type ollamaStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	client  *api.Client
	req     *api.ChatRequest
	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond
	err     error
	done    bool
}

func newOllamaStream(ctx context.Context, client *api.Client, req *api.ChatRequest) *ollamaStream {
	ctx, cancel := context.WithCancel(ctx)
	stream := &ollamaStream{
		ctx:     ctx,
		cancel:  cancel,
		client:  client,
		req:     req,
		current: -1,
	}
	stream.cond = sync.NewCond(&stream.mu)
	return stream
}

// open starts the request and blocks until the server has answered with a
// first chunk or failed. A failure before any output is returned so callers
// can retry the connection.
func (s *ollamaStream) open() error {
	go s.run()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.events) == 0 && !s.done && s.err == nil {
		s.cond.Wait()
	}
	if len(s.events) == 0 && s.err != nil {
		return s.err
	}
	return nil
}

// Next advances to the next event in the stream.
func (s *ollamaStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current++
	for s.current >= len(s.events) && !s.done && s.err == nil {
		s.cond.Wait()
	}
	if s.err != nil {
		return false
	}
	return s.current < len(s.events)
}

// Event returns the current event.
func (s *ollamaStream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err returns any error that occurred during streaming.
func (s *ollamaStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the underlying request and releases resources.
func (s *ollamaStream) Close() error {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.cond.Broadcast()
	return nil
}

func (s *ollamaStream) emit(event *llm.StreamEvent) {
	s.events = append(s.events, event)
	s.cond.Broadcast()
}

func (s *ollamaStream) run() {
	err := s.client.Chat(s.ctx, s.req, func(resp api.ChatResponse) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if len(s.events) == 0 {
			s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart})
		}

		// Ollama sends only the new tokens in each chunk.
		if resp.Message.Content != "" {
			s.emit(&llm.StreamEvent{
				Type: llm.StreamEventTypeContentDelta,
				Delta: &llm.StreamDelta{
					Type: llm.StreamDeltaTypeText,
					Text: resp.Message.Content,
				},
			})
		}

		if resp.Done {
			usage := &llm.Usage{
				InputTokens:  int64(resp.PromptEvalCount),
				OutputTokens: int64(resp.EvalCount),
			}
			s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeMessageDelta, Usage: usage})
			s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStop, Usage: usage, Done: true})
			s.done = true
		}
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !s.done {
		s.err = convertOllamaError(err, s.req.Model, len(s.req.Tools) > 0)
	}
	s.done = true
	s.cond.Broadcast()
}

var _ llm.Stream = (*ollamaStream)(nil)
