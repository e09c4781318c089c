package demux

import (
	"strings"

	"github.com/papercomputeco/streampump/pkg/dispatch"
)

// NDJSON demultiplexes a newline-delimited JSON body (used by Ollama). Every
// non-blank line becomes one event frame.
type NDJSON struct {
	pending strings.Builder
}

// NewNDJSON returns an empty NDJSON demuxer.
func NewNDJSON() *NDJSON {
	return &NDJSON{}
}

// Demux consumes chunk and returns one frame per completed line.
func (d *NDJSON) Demux(chunk string) []dispatch.DemuxedEvent {
	var out []dispatch.DemuxedEvent
	for _, line := range splitLines(&d.pending, chunk) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, dispatch.DemuxedEvent{
			Type: dispatch.EventTypeEvent,
			Data: line,
		})
	}
	return out
}

// Flush returns the final line when the body ended without a trailing
// newline.
func (d *NDJSON) Flush() []dispatch.DemuxedEvent {
	line := strings.TrimSpace(d.pending.String())
	d.pending.Reset()
	if line == "" {
		return nil
	}
	return []dispatch.DemuxedEvent{{Type: dispatch.EventTypeEvent, Data: line}}
}
