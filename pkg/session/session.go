// Package session implements the downstream termination state machine: it
// turns the pump's internal outcomes into the single outbound event stream
// and guarantees that the stream terminates exactly once.
package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/streampump/pkg/dispatch"
)

// State of a Session. Terminated is absorbing.
type State int

const (
	NotStarted State = iota
	Started
	Streaming
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Started:
		return "started"
	case Streaming:
		return "streaming"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Stage names where in the pump an error was observed.
type Stage string

const (
	StagePrepare Stage = "upstream-prepare"
	StageFetch   Stage = "upstream-fetch"
	StageRead    Stage = "upstream-read"
	StageParse   Stage = "upstream-parse"
)

// Termination causes that are not errors.
const (
	CauseUpstreamClose = "upstream-close"
	CauseEventDone     = "event-done"
	CauseParserDone    = "parser-done"
	CauseClientAbort   = "client-aborted"
)

// unservedNote is appended to errors raised before the upstream produced
// any content.
const unservedNote = "\n\nNo content was generated for this request."

// Session owns the downstream side of one generation. It is not safe for
// concurrent use: a single pump goroutine drives it.
type Session struct {
	vendor string
	sink   func(Event)
	logger *zap.Logger

	state     State
	cause     string
	stage     Stage
	startedAt time.Time

	upstreamEvents int
	emitted        int
	textBytes      int
}

// New creates a Session that emits to sink. vendor attributes error
// messages; it can be refined later with SetVendor.
func New(vendor string, sink func(Event), logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		vendor: vendor,
		sink:   sink,
		logger: logger,
	}
}

// SetVendor updates the vendor name used in diagnostics.
func (s *Session) SetVendor(vendor string) {
	if vendor != "" {
		s.vendor = vendor
	}
}

// YieldStart emits the start marker. It is a no-op once started.
func (s *Session) YieldStart() {
	if s.state != NotStarted {
		return
	}
	s.startedAt = time.Now()
	s.state = Started
	s.emit(Event{CG: ControlStart})
}

// YieldText emits a text delta.
func (s *Session) YieldText(text string) {
	if !s.canEmit("text") {
		return
	}
	s.state = Streaming
	s.textBytes += len(text)
	s.emit(Event{T: text})
}

// YieldIssue emits a visible, non-fatal vendor annotation into the text stream.
func (s *Session) YieldIssue(symbol, issue string) {
	s.YieldText(fmt.Sprintf(" %s **[%s Issue]:** %s", symbol, s.vendor, issue))
}

// YieldSet emits a state patch.
func (s *Session) YieldSet(value map[string]any) {
	if !s.canEmit("set") {
		return
	}
	s.state = Streaming
	s.emit(Event{Set: value})
}

// YieldError emits one vendor-attributed error message as a text delta and
// terminates the session. unserved marks errors raised before the upstream
// generated anything, and adds a note saying so.
func (s *Session) YieldError(stage Stage, message string, unserved bool) {
	if !s.canEmit("error") {
		return
	}

	text := fmt.Sprintf("**[Service Issue] %s**: %s", s.vendor, message)
	if s.textBytes > 0 {
		text = "\n\n" + text
	}
	if unserved {
		text += unservedNote
	}

	s.logger.Warn("generation failed",
		zap.String("stage", string(stage)),
		zap.String("vendor", s.vendor),
		zap.String("message", message),
	)

	s.emit(Event{T: text})
	s.stage = stage
	s.terminate(string(stage))
}

// OnReceivedUpstreamEvent records an upstream frame. It emits nothing.
func (s *Session) OnReceivedUpstreamEvent(ev dispatch.DemuxedEvent) {
	s.upstreamEvents++
	if s.state == Terminated {
		s.logger.Warn("upstream event after termination",
			zap.String("type", ev.Type),
			zap.String("name", ev.Name),
			zap.String("cause", s.cause),
		)
	}
}

// YieldTermination ends the session cleanly.
func (s *Session) YieldTermination(cause string) {
	if !s.canEmit("termination") {
		return
	}
	s.terminate(cause)
}

// MarkTermination ends the session without emitting anything. Used when the
// client is already gone.
func (s *Session) MarkTermination() {
	if s.state == Terminated {
		return
	}
	s.terminate(CauseClientAbort)
}

// Terminated reports whether the downstream stream has ended.
func (s *Session) Terminated() bool {
	return s.state == Terminated
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Cause returns the termination cause, empty while running.
func (s *Session) Cause() string {
	return s.cause
}

// Vendor returns the vendor name used in diagnostics.
func (s *Session) Vendor() string {
	return s.vendor
}

// ErrorStage returns the stage of the terminating error, empty otherwise.
func (s *Session) ErrorStage() Stage {
	return s.stage
}

// Stats returns counters for telemetry.
func (s *Session) Stats() Stats {
	return Stats{
		UpstreamEvents: s.upstreamEvents,
		Emitted:        s.emitted,
		TextBytes:      s.textBytes,
	}
}

// Stats are per-session counters.
type Stats struct {
	UpstreamEvents int
	Emitted        int
	TextBytes      int
}

func (s *Session) canEmit(what string) bool {
	if s.state != Terminated {
		return true
	}
	s.logger.Warn("downstream emission after termination",
		zap.String("kind", what),
		zap.String("cause", s.cause),
	)
	return false
}

func (s *Session) terminate(cause string) {
	s.state = Terminated
	s.cause = cause
	s.logger.Debug("downstream terminated",
		zap.String("cause", cause),
		zap.String("vendor", s.vendor),
		zap.Int("emitted", s.emitted),
		zap.Duration("elapsed", time.Since(s.startedAt)),
	)
}

func (s *Session) emit(ev Event) {
	s.emitted++
	if s.sink != nil {
		s.sink(ev)
	}
}
