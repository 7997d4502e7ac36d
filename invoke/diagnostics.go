package invoke

import "github.com/rs/zerolog"

// DiagnosticsSink records terminal failures before they reach the caller.
type DiagnosticsSink interface {
	Failure(site string, kind Kind, attempts int, err error)
}

type logDiagnostics struct {
	logger zerolog.Logger
}

// NewLogDiagnostics returns a DiagnosticsSink that writes to logger.
// Cancellations are logged at Info since they are not faults.
func NewLogDiagnostics(logger zerolog.Logger) DiagnosticsSink {
	return &logDiagnostics{logger: logger.With().Str("component", "diagnostics").Logger()}
}

func (d *logDiagnostics) Failure(site string, kind Kind, attempts int, err error) {
	ev := d.logger.Error()
	if kind == KindCancelled {
		ev = d.logger.Info()
	}
	ev.Str("site", site).
		Str("kind", kind.String()).
		Int("attempts", attempts).
		Err(err).
		Msg("Model call failed")
}
