// Package header provides header handling for the generation server.
//
// The server sits between a client and an upstream LLM vendor like so:
//
//	Client <--> streampump <--> Upstream LLM vendor
//
// Clients may attach extra upstream headers to a request's access
// configuration; each leg negotiates framing and encoding independently, so
// those headers are filtered before they reach the upstream call.
package header

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler manages headers on both legs of a generation.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// ContentTypeNDJSON is the media type of the downstream event stream.
const ContentTypeNDJSON = "application/x-ndjson"

// skipUpstream is the set of client supplied headers that are never
// forwarded to the upstream vendor.
var skipUpstream = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},

	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL.
	"Host": {},

	// Accept-Encoding is left to Go's http.Transport so that it can
	// transparently decompress the upstream stream.
	"Accept-Encoding": {},

	// The body and its framing are built by the dialect.
	"Content-Length": {},
	"Content-Type":   {},
}

// FilterUpstreamHeaders returns the client supplied headers that may be sent
// upstream. Keys are canonicalized.
func (h *Handler) FilterUpstreamHeaders(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}

	out := make(map[string]string, len(in))
	for k, v := range in {
		ck := http.CanonicalHeaderKey(k)
		if _, skip := skipUpstream[ck]; skip {
			continue
		}
		out[ck] = v
	}
	return out
}

// SetStreamResponseHeaders prepares the client response for an NDJSON event
// stream that must not be buffered by intermediaries.
func (h *Handler) SetStreamResponseHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, ContentTypeNDJSON)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")
}
