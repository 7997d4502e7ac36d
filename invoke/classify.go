package invoke

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aj47/nvidia-control-center-sub003/llm"
)

// Kind is the retry-relevant classification of a failure.
type Kind int

const (
	KindPermanent Kind = iota
	KindCancelled
	KindToolsUnsupported
	KindEmptyResponse
	KindRateLimited
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindToolsUnsupported:
		return "tools_unsupported"
	case KindEmptyResponse:
		return "empty_response"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// Retryable reports whether the executor may attempt the call again.
func (k Kind) Retryable() bool {
	return k == KindEmptyResponse || k == KindRateLimited || k == KindTransient
}

var (
	cancelMarkers = []string{"aborterror", "aborted", "context canceled", "request cancelled", "request canceled"}

	emptyResponseMarkers = []string{
		"empty response",
		"empty content",
		"no content in response",
		"no choices in response",
		"response was empty",
		"returned no output",
	}

	rateLimitMarkers = []string{"rate limit", "rate_limit", "too many requests", "429"}

	transientMarkers = []string{"500", "502", "503", "504", "timeout", "timed out", "network", "connection", "overloaded"}
)

// Classify maps err to a Kind. Typed errors and structured status codes are
// preferred over message text.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}

	if errors.Is(err, context.Canceled) || llm.IsCancelledError(err) {
		return KindCancelled
	}
	if llm.IsToolsUnsupportedError(err) {
		return KindToolsUnsupported
	}
	if llm.IsEmptyResponseError(err) {
		return KindEmptyResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	// A status code outranks whatever the message body says.
	llmErr, isLLM := llm.AsError(err)
	if isLLM && llmErr.StatusCode != 0 {
		if kind, ok := classifyStructured(llmErr); ok {
			return kind
		}
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, cancelMarkers) {
		return KindCancelled
	}
	if containsAny(msg, emptyResponseMarkers) {
		return KindEmptyResponse
	}
	if isLLM {
		if kind, ok := classifyStructured(llmErr); ok {
			return kind
		}
	}

	switch {
	case containsAny(msg, rateLimitMarkers):
		return KindRateLimited
	case containsAny(msg, transientMarkers):
		return KindTransient
	default:
		return KindPermanent
	}
}

// classifyStructured returns false when the error carries nothing beyond its
// message, leaving the decision to the text scan.
func classifyStructured(e *llm.Error) (Kind, bool) {
	status := e.StatusCode
	switch {
	case e.Retryable:
		// Rate limits keep their own kind so they stay exempt from MaxRetries.
		if status == http.StatusTooManyRequests || e.Type == llm.ErrorTypeRateLimit {
			return KindRateLimited, true
		}
		return KindTransient, true
	case status == http.StatusTooManyRequests || e.Type == llm.ErrorTypeRateLimit:
		return KindRateLimited, true
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTransient, true
	case status >= 400:
		return KindPermanent, true
	case e.Type == llm.ErrorTypeNetwork || e.Type == llm.ErrorTypeTimeout:
		return KindTransient, true
	}
	return KindPermanent, false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CallError is the terminal failure of an invocation.
type CallError struct {
	Site     string // invoke, stream or complete
	Kind     Kind
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s failed (%s) after %d attempts: %v", e.Site, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Site, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err is a user- or system-initiated abort.
func IsCancelled(err error) bool {
	return err != nil && Classify(err) == KindCancelled
}

// IsToolsUnsupported reports whether err means the model rejected tool definitions.
// The model id is available through llm.AsError.
func IsToolsUnsupported(err error) bool {
	return err != nil && Classify(err) == KindToolsUnsupported
}
