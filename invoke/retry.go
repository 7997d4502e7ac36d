package invoke

import (
	"context"
	"math"
	"time"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// JitterFactor is the +/- fraction applied to each computed backoff delay.
const JitterFactor = 0.25

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// WaitForRetry waits for the specified delay, respecting context cancellation.
func WaitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor runs a call as a sequence of attempts, classifying failures and
// backing off between them. Attempts never overlap.
type Executor struct {
	aborts *Coordinator
	stops  []StopState
	sleep  Sleeper
	diag   DiagnosticsSink
	now    func() time.Time
	logger zerolog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSleeper replaces the backoff wait, for tests.
func WithSleeper(s Sleeper) ExecutorOption {
	return func(e *Executor) { e.sleep = s }
}

// WithDiagnostics replaces the default log-backed diagnostics sink.
func WithDiagnostics(d DiagnosticsSink) ExecutorOption {
	return func(e *Executor) { e.diag = d }
}

// WithStopState adds stop checks beyond the coordinator's own.
func WithStopState(s StopState) ExecutorOption {
	return func(e *Executor) { e.stops = append(e.stops, s) }
}

// WithClock replaces time.Now for progress timestamps.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor whose attempts and backoff waits are
// registered with aborts.
func NewExecutor(aborts *Coordinator, logger zerolog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		aborts: aborts,
		stops:  []StopState{aborts},
		sleep:  WaitForRetry,
		now:    time.Now,
		logger: logger.With().Str("component", "retryExecutor").Logger(),
	}
	e.diag = NewLogDiagnostics(logger)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Coordinator returns the abort coordinator attempts are registered with.
func (e *Executor) Coordinator() *Coordinator {
	return e.aborts
}

// RunOptions describes one supervised call.
type RunOptions struct {
	Site      string
	SessionID string
	Policy    Policy
	Progress  ProgressSink
}

// Run calls fn until it succeeds or fails terminally. Rate-limited failures
// retry without bound; other retryable failures stop once attempt reaches
// Policy.MaxRetries. Empty responses retry with no delay.
func Run[T any](ctx context.Context, e *Executor, opts RunOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	progress := opts.Progress
	if progress == nil {
		progress = nopProgress{}
	}
	log := e.logger.With().Str("site", opts.Site).Str("session_id", opts.SessionID).Logger()

	attempt := 0
	for {
		if err := e.checkStopped(ctx, opts.SessionID); err != nil {
			return zero, e.fail(opts, progress, KindCancelled, attempt, err)
		}

		result, err := runAttempt(ctx, e.aborts, opts.SessionID, fn)
		if err == nil {
			progress.Notify(RetryProgress{})
			return result, nil
		}

		kind := Classify(err)
		if !kind.Retryable() {
			return zero, e.fail(opts, progress, kind, attempt+1, err)
		}
		if kind != KindRateLimited && attempt >= opts.Policy.MaxRetries {
			return zero, e.fail(opts, progress, KindPermanent, attempt+1, err)
		}

		var delay time.Duration
		if kind != KindEmptyResponse {
			delay = BackoffDelay(opts.Policy, attempt)
		}
		attempt++

		maxAttempts := opts.Policy.MaxRetries
		if kind == KindRateLimited {
			maxAttempts = 0
		}
		log.Warn().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Str("kind", kind.String()).
			Dur("delay", delay).
			Err(err).
			Msg("Model call failed, retrying")
		progress.Notify(RetryProgress{
			IsRetrying:   true,
			Attempt:      attempt,
			MaxAttempts:  maxAttempts,
			DelaySeconds: delay.Seconds(),
			Reason:       err.Error(),
			StartedAt:    e.now(),
		})

		if delay <= 0 {
			continue
		}
		if err := e.checkStopped(ctx, opts.SessionID); err != nil {
			return zero, e.fail(opts, progress, KindCancelled, attempt, err)
		}
		if err := e.wait(ctx, opts.SessionID, delay); err != nil {
			return zero, e.fail(opts, progress, KindCancelled, attempt, err)
		}
	}
}

// runAttempt registers a cancellable child of ctx for the duration of fn.
func runAttempt[T any](ctx context.Context, aborts *Coordinator, sessionID string, fn func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx, release := aborts.track(ctx, sessionID)
	defer release()
	return fn(attemptCtx)
}

// wait sleeps for delay with the wait itself registered, so a stop cuts it short.
func (e *Executor) wait(ctx context.Context, sessionID string, delay time.Duration) error {
	waitCtx, release := e.aborts.track(ctx, sessionID)
	defer release()

	if err := e.sleep(waitCtx, delay); err != nil {
		if stopErr := e.checkStopped(ctx, sessionID); stopErr != nil {
			return stopErr
		}
		return llm.NewCancelledError("backoff interrupted", err)
	}
	return nil
}

func (e *Executor) checkStopped(ctx context.Context, sessionID string) error {
	for _, stop := range e.stops {
		if stop.IsGloballyStopped() {
			return llm.NewCancelledError("emergency stop", nil)
		}
		if stop.IsSessionStopped(sessionID) {
			return llm.NewCancelledError("session stopped", nil)
		}
	}
	if ctx.Err() != nil {
		return llm.NewCancelledError("request aborted", context.Cause(ctx))
	}
	return nil
}

func (e *Executor) fail(opts RunOptions, progress ProgressSink, kind Kind, attempts int, err error) error {
	progress.Notify(RetryProgress{})
	e.diag.Failure(opts.Site, kind, attempts, err)
	return &CallError{
		Site:     opts.Site,
		Kind:     kind,
		Attempts: attempts,
		Err:      err,
	}
}

// BackoffDelay returns min(base*2^attempt, max) jittered by +/-JitterFactor,
// clamped to [0, max].
func BackoffDelay(p Policy, attempt int) time.Duration {
	if p.BaseDelay <= 0 || p.MaxDelay <= 0 {
		return 0
	}
	capped := p.MaxDelay
	if scaled := float64(p.BaseDelay) * math.Pow(2, float64(attempt)); scaled < float64(p.MaxDelay) {
		capped = time.Duration(scaled)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = capped
	eb.RandomizationFactor = JitterFactor
	eb.Multiplier = 1
	eb.MaxInterval = capped
	eb.MaxElapsedTime = 0
	eb.Reset()

	delay := eb.NextBackOff()
	if delay < 0 {
		return 0
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
