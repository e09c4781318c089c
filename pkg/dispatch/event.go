package dispatch

// EventTypeEvent marks a DemuxedEvent that carries a parseable payload.
// All other types are framing noise (comments, reconnect hints) that is
// logged and skipped.
const (
	EventTypeEvent   = "event"
	EventTypeComment = "comment"
	EventTypeRetry   = "retry"
)

// DoneSentinel is the end-of-stream payload used by the OpenAI family and
// honored for every dialect.
const DoneSentinel = "[DONE]"

// DemuxedEvent is one framing unit extracted from the upstream byte stream.
type DemuxedEvent struct {
	Type string
	Name string
	Data string
}
