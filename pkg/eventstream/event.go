package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeGenerationCompleted is emitted after every generation, whether it
	// succeeded, failed or was aborted by the client.
	EventTypeGenerationCompleted = "streampump.generation.completed"
)

// GenerationCompletedEvent is a transport-neutral event payload for a
// finished generation.
type GenerationCompletedEvent struct {
	SchemaVersion int               `json:"schema_version"`
	EventType     string            `json:"event_type"`
	EventID       string            `json:"event_id"`
	EmittedAt     time.Time         `json:"emitted_at"`
	Source        EventSource       `json:"source"`
	Generation    GenerationMeta    `json:"generation"`
	Outcome       GenerationOutcome `json:"outcome"`
}

// EventSource identifies the upstream that served the generation.
type EventSource struct {
	Dialect string `json:"dialect"`
	Vendor  string `json:"vendor,omitempty"`
	Model   string `json:"model,omitempty"`
}

// GenerationMeta captures request lifecycle metadata for the event.
type GenerationMeta struct {
	GenerationID string    `json:"generation_id"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`
	Retries      int       `json:"retries"`
}

// GenerationOutcome captures how the downstream stream ended.
type GenerationOutcome struct {
	Cause          string `json:"cause"`
	ErrorStage     string `json:"error_stage,omitempty"`
	Aborted        bool   `json:"aborted"`
	UpstreamEvents int    `json:"upstream_events"`
	EmittedEvents  int    `json:"emitted_events"`
	TextBytes      int    `json:"text_bytes"`
}
