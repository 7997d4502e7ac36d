package llm

import (
	"context"
)

// Client provides a provider-neutral interface for making LLM API calls.
// Implementations must honour ctx cancellation on the in-flight HTTP request
// so that an abort actually tears the call down.
type Client interface {
	// Synchronous sends a request and returns a complete response.
	Synchronous(ctx context.Context, req *Request) (*Response, error)

	// Stream sends a request and returns a stream of events. An error here
	// means the provider did not accept the request.
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// Stream represents a streaming response from an LLM.
type Stream interface {
	// Next advances to the next event in the stream.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Event returns the current event.
	// Should only be called after Next() returns true.
	Event() *StreamEvent

	// Err returns any error that occurred during streaming.
	Err() error

	// Close closes the stream and releases resources.
	Close() error
}

// Middleware provides hooks for decorating Client calls.
type Middleware interface {
	// BeforeRequest is called before making an API request (sync or stream).
	// It can modify the request or return an error to abort the request.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)

	// AfterResponse is called after receiving a synchronous response.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)

	// OnError is called when a call fails. It can return a modified error.
	OnError(ctx context.Context, req *Request, err error) error
}

// MiddlewareFunc is a function type that implements Middleware.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, req *Request, err error) error
}

// BeforeRequest calls the BeforeRequestFunc if set.
func (f MiddlewareFunc) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeRequestFunc != nil {
		return f.BeforeRequestFunc(ctx, req)
	}
	return req, nil
}

// AfterResponse calls the AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, req, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, req *Request, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Client with middleware and returns a new Client.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &clientWithMiddleware{
		client:     client,
		middleware: middleware,
	}
}

// clientWithMiddleware wraps a Client with middleware.
type clientWithMiddleware struct {
	client     Client
	middleware []Middleware
}

func (c *clientWithMiddleware) before(ctx context.Context, req *Request) (*Request, error) {
	for _, mw := range c.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (c *clientWithMiddleware) onError(ctx context.Context, req *Request, err error) error {
	for _, mw := range c.middleware {
		if mapped := mw.OnError(ctx, req, err); mapped != nil {
			err = mapped
		}
	}
	return err
}

// Synchronous implements Client.Synchronous with middleware support.
func (c *clientWithMiddleware) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	req, err := c.before(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Synchronous(ctx, req)
	if err != nil {
		return nil, c.onError(ctx, req, err)
	}

	// AfterResponse runs in reverse registration order
	for i := len(c.middleware) - 1; i >= 0; i-- {
		resp, err = c.middleware[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Stream implements Client.Stream with middleware support.
func (c *clientWithMiddleware) Stream(ctx context.Context, req *Request) (Stream, error) {
	req, err := c.before(ctx, req)
	if err != nil {
		return nil, err
	}

	stream, err := c.client.Stream(ctx, req)
	if err != nil {
		return nil, c.onError(ctx, req, err)
	}
	return stream, nil
}

// Ensure clientWithMiddleware implements Client
var _ Client = (*clientWithMiddleware)(nil)
