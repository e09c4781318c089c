// Package dispatch holds the data model shared by the dialects, the
// demultiplexers and the stream pump: one prepared upstream call, the framing
// events extracted from its body, and the particles parsed out of them.
package dispatch

import (
	"net/http"
)

// Request is a fully built upstream HTTP call.
type Request struct {
	URL     string
	Method  string
	Headers http.Header
	Body    []byte
}

// Demuxer splits decoded upstream text into framing events. Implementations
// buffer partial frames between calls and never reorder events.
type Demuxer interface {
	Demux(chunk string) []DemuxedEvent
}

// Flusher is implemented by demuxers that can complete a final frame when
// the body ends without a terminator.
type Flusher interface {
	Flush() []DemuxedEvent
}

// ParseFunc converts the data of one framing event into particles. It may
// return an error to signal that the upstream response can no longer be
// trusted.
type ParseFunc func(data, name string) ([]Particle, error)

// Dispatch is one prepared upstream call together with the vendor-specific
// functions needed to decode its streaming response. It is built once per
// request and never modified afterwards.
type Dispatch struct {
	// Dialect is the canonical tag of the dialect that built the call.
	Dialect string

	// Vendor is the human readable vendor name used in diagnostics.
	Vendor string

	Request Request
	Demuxer Demuxer
	Parse   ParseFunc
}

// Clone returns a copy of the request safe to hand to a transport attempt.
func (r *Request) Clone() *Request {
	c := *r
	c.Headers = r.Headers.Clone()
	return &c
}
