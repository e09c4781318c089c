// Package demux provides push-style framing for upstream LLM streams.
//
// Unlike a reader-driven parser, a demuxer is fed arbitrary decoded text
// chunks as they arrive off the wire and returns the complete frames found so
// far, buffering any partial line until the next call. Frames are returned
// strictly in wire order.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package demux

import (
	"strings"

	"github.com/papercomputeco/streampump/pkg/dispatch"
)

// SSE demultiplexes a text/event-stream body.
//
// ┌──────────────┐   ┌──────────────┐   ┌──────────────────────┐
// │ decoded text │──▶│  SSE.Demux() │──▶│ []dispatch.Demuxed.. │
// └──────────────┘   └──────────────┘   └──────────────────────┘
//
// Comment lines (":keep-alive") and "retry:" fields surface as non-event
// frames so the pump can log and skip them.
type SSE struct {
	// pending holds the trailing partial line of the previous chunk.
	pending strings.Builder

	// current accumulates fields for the event being built.
	current  dispatch.DemuxedEvent
	dataSeen bool
}

// NewSSE returns an empty SSE demuxer.
func NewSSE() *SSE {
	d := &SSE{}
	d.reset()
	return d
}

// Demux consumes chunk and returns every frame completed by it.
func (d *SSE) Demux(chunk string) []dispatch.DemuxedEvent {
	var out []dispatch.DemuxedEvent

	for _, line := range splitLines(&d.pending, chunk) {
		// A blank line ends the current event. Events without a data
		// field are discarded.
		if line == "" {
			if d.dataSeen {
				out = append(out, d.current)
			}
			d.reset()
			continue
		}

		if strings.HasPrefix(line, ":") {
			out = append(out, dispatch.DemuxedEvent{
				Type: dispatch.EventTypeComment,
				Data: strings.TrimPrefix(strings.TrimPrefix(line, ":"), " "),
			})
			continue
		}

		if ev, ok := d.parseLine(line); ok {
			out = append(out, ev)
		}
	}

	return out
}

// parseLine accumulates a single field into the current event. A "retry"
// field is returned immediately as its own frame.
//
// A line has the form "field:value" where the first
// space after the colon is optional and stripped if present.
func (d *SSE) parseLine(line string) (dispatch.DemuxedEvent, bool) {
	field, value, ok := strings.Cut(line, ":")
	if ok {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "data":
		if d.dataSeen {
			d.current.Data += "\n"
		}
		d.current.Data += value
		d.dataSeen = true
	case "event":
		d.current.Name = value
	case "id":
		// last event IDs are only meaningful for reconnects, which the
		// pump never does
	case "retry":
		return dispatch.DemuxedEvent{Type: dispatch.EventTypeRetry, Data: value}, true
	default:
		// Unknown fields are ignored.
	}

	return dispatch.DemuxedEvent{}, false
}

func (d *SSE) reset() {
	d.current = dispatch.DemuxedEvent{Type: dispatch.EventTypeEvent}
	d.dataSeen = false
}

// splitLines appends chunk to pending and returns every complete line,
// leaving the unterminated remainder in pending. "\r\n" and "\n" are both
// accepted as terminators.
func splitLines(pending *strings.Builder, chunk string) []string {
	pending.WriteString(chunk)
	buf := pending.String()

	lastNL := strings.LastIndexByte(buf, '\n')
	if lastNL < 0 {
		return nil
	}

	complete := buf[:lastNL]
	rest := buf[lastNL+1:]
	pending.Reset()
	pending.WriteString(rest)

	lines := strings.Split(complete, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
