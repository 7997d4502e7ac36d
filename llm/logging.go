package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type startKey struct{}

// NewLoggingMiddleware logs every provider call with model, tool count and latency.
func NewLoggingMiddleware(logger zerolog.Logger, provider string) Middleware {
	logger = logger.With().Str("component", "llmClient").Str("provider", provider).Logger()
	return MiddlewareFunc{
		BeforeRequestFunc: func(ctx context.Context, req *Request) (*Request, error) {
			logger.Debug().
				Str("model", req.Model).
				Int("messages", len(req.Messages)).
				Int("tools", len(req.Tools)).
				Bool("has_system", req.System != "").
				Msg("Sending request")
			return req, nil
		},
		AfterResponseFunc: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
			ev := logger.Debug().Str("model", req.Model).Str("stop_reason", resp.StopReason)
			if resp.Usage != nil {
				ev = ev.Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens)
			}
			if started, ok := ctx.Value(startKey{}).(time.Time); ok {
				ev = ev.Dur("latency", time.Since(started))
			}
			ev.Msg("Received response")
			return resp, nil
		},
		OnErrorFunc: func(ctx context.Context, req *Request, err error) error {
			ev := logger.Warn().Str("model", req.Model).Err(err)
			if llmErr, ok := AsError(err); ok {
				ev = ev.Str("error_type", string(llmErr.Type)).Int("status", llmErr.StatusCode)
			}
			ev.Msg("Request failed")
			return err
		},
	}
}

// WithCallStart stamps ctx so the logging middleware can report latency.
func WithCallStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startKey{}, t)
}
