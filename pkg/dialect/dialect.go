// Package dialect maps vendor wire formats onto the pump's dispatch model.
//
// Each dialect knows how to build its vendor's streaming request and how to
// decode the response body into particles. The Registry selects a dialect
// once per request by its tag; the pump never branches on the vendor again.
package dialect

import (
	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/llm"
)

// Dialect defines one vendor's request builder, demuxer and parser.
type Dialect interface {
	// Name returns the dialect tag (e.g., "openai", "anthropic").
	Name() string

	// Vendor returns the human readable vendor name used in diagnostics.
	Vendor() string

	// DefaultHost returns the upstream base URL used when the access
	// configuration does not override it.
	DefaultHost() string

	// BuildRequest converts the normalized request into the vendor's
	// streaming HTTP call. It returns an error, and never a partial request,
	// when the configuration is invalid for this vendor.
	BuildRequest(access llm.Access, model llm.Model, history []llm.Message) (*dispatch.Request, error)

	// NewDemuxer returns a fresh demuxer for one response body.
	NewDemuxer() dispatch.Demuxer

	// NewParser returns a fresh parser for one response body.
	NewParser() dispatch.ParseFunc
}
