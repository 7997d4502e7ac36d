package invoke

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/aj47/nvidia-control-center-sub003/toolname"
	"github.com/rs/zerolog"
)

type step struct {
	resp *llm.Response
	err  error
}

// fakeClient replays one step per Synchronous call; the last step repeats.
type fakeClient struct {
	mu       sync.Mutex
	steps    []step
	calls    int
	requests []*llm.Request
	// hook runs before the step is returned; a non-nil error replaces it.
	hook func(ctx context.Context, n int) error

	stream    llm.Stream
	streamErr []error
	streams   int
}

func (f *fakeClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, n); err != nil {
			return nil, err
		}
	}
	if len(f.steps) == 0 {
		return textResponse("ok"), nil
	}
	if n >= len(f.steps) {
		n = len(f.steps) - 1
	}
	return f.steps[n].resp, f.steps[n].err
}

func (f *fakeClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	f.mu.Lock()
	n := f.streams
	f.streams++
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if n < len(f.streamErr) && f.streamErr[n] != nil {
		return nil, f.streamErr[n]
	}
	return f.stream, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSource struct {
	client llm.Client
}

func (s fakeSource) Client(o llm.Override) (llm.Client, llm.ClientKey, error) {
	model := o.Model
	if model == "" {
		model = "test-model"
	}
	return s.client, llm.ClientKey{Provider: "fake", Model: model}, nil
}

// fakeStream yields text fragments, then err.
type fakeStream struct {
	fragments []string
	err       error
	idx       int
	event     *llm.StreamEvent
	closed    bool
}

func (s *fakeStream) Next() bool {
	if s.idx >= len(s.fragments) {
		return false
	}
	s.event = &llm.StreamEvent{
		Type:  llm.StreamEventTypeContentDelta,
		Delta: &llm.StreamDelta{Type: llm.StreamDeltaTypeText, Text: s.fragments[s.idx]},
	}
	s.idx++
	return true
}

func (s *fakeStream) Event() *llm.StreamEvent { return s.event }
func (s *fakeStream) Err() error {
	if s.idx >= len(s.fragments) {
		return s.err
	}
	return nil
}
func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type failure struct {
	site     string
	kind     Kind
	attempts int
	err      error
}

type recordingDiagnostics struct {
	mu       sync.Mutex
	failures []failure
}

func (d *recordingDiagnostics) Failure(site string, kind Kind, attempts int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, failure{site, kind, attempts, err})
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	hook   func(ctx context.Context) error
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return nil
}

type harness struct {
	client  *fakeClient
	aborts  *Coordinator
	sleeper *recordingSleeper
	diag    *recordingDiagnostics
	exec    *Executor
	inv     *Invoker
}

func newHarness(client *fakeClient) *harness {
	h := &harness{
		client:  client,
		aborts:  NewCoordinator(),
		sleeper: &recordingSleeper{},
		diag:    &recordingDiagnostics{},
	}
	h.exec = NewExecutor(h.aborts, zerolog.Nop(), WithSleeper(h.sleeper.sleep), WithDiagnostics(h.diag))
	codec := toolname.NewCodec(nil, zerolog.Nop())
	h.inv = NewInvoker(fakeSource{client: client}, codec, NewParser(codec, nil, zerolog.Nop()), h.exec, CallConfig{}, zerolog.Nop())
	return h
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: text}}}
}

func statusErr(status int) error {
	return llm.NewStatusError(http.StatusText(status), status, nil)
}

func userMessages(text string) []llm.ChatMessage {
	return []llm.ChatMessage{{Role: llm.RoleUser, Content: text}}
}
