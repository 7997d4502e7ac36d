package invoke

import "time"

// RetryProgress describes a retry about to happen, or (IsRetrying false) that
// retrying is over.
type RetryProgress struct {
	IsRetrying bool
	// Attempt is the 1-based number of the retry about to run.
	Attempt int
	// MaxAttempts is the retry ceiling; 0 when unbounded (rate limits).
	MaxAttempts  int
	DelaySeconds float64
	Reason       string
	StartedAt    time.Time
}

// ProgressSink receives retry progress. Notify must not block for long; it
// runs on the calling goroutine.
type ProgressSink interface {
	Notify(RetryProgress)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(RetryProgress)

func (f ProgressFunc) Notify(p RetryProgress) { f(p) }

// clearDeliveryTimeout bounds how long ChannelProgress waits to hand over a
// clearing event.
const clearDeliveryTimeout = 250 * time.Millisecond

// ChannelProgress delivers progress on a channel, dropping retry events the
// reader is not ready for. The clearing event (IsRetrying false) waits up to
// clearDeliveryTimeout so a slow reader still leaves the retrying state.
type ChannelProgress chan<- RetryProgress

func (c ChannelProgress) Notify(p RetryProgress) {
	select {
	case c <- p:
		return
	default:
	}
	if p.IsRetrying {
		return
	}

	timer := time.NewTimer(clearDeliveryTimeout)
	defer timer.Stop()
	select {
	case c <- p:
	case <-timer.C:
	}
}

type nopProgress struct{}

func (nopProgress) Notify(RetryProgress) {}
