package pump

import (
	"time"

	"github.com/papercomputeco/streampump/pkg/session"
)

// UnknownDialect labels generations whose dialect tag could not be resolved.
const UnknownDialect = "unknown"

// Result summarizes a finished generation.
type Result struct {
	ID string

	// Dialect is the canonical dialect tag, or UnknownDialect when
	// preparation failed.
	Dialect string
	Vendor  string
	Model   string

	// Cause is the termination cause: a session.Cause* value, or the error
	// stage when the generation failed.
	Cause      string
	ErrorStage session.Stage

	Retries   int
	Stats     session.Stats
	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether the generation ended with a user-visible error.
func (r *Result) Failed() bool {
	return r.ErrorStage != ""
}

// Aborted reports whether the client went away before termination.
func (r *Result) Aborted() bool {
	return r.Cause == session.CauseClientAbort
}
