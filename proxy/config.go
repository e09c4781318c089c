package proxy

import (
	"time"

	"github.com/papercomputeco/streampump/pkg/eventstream"
	"github.com/papercomputeco/streampump/pkg/retry"
)

// Config is the generation server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Upstreams maps dialect tags to upstream base URLs, overriding each
	// dialect's public endpoint (e.g., "ollama" -> "http://gpu-box:11434").
	Upstreams map[string]string

	// RequestTimeout bounds reading a client request. Zero disables it.
	// Streaming responses are never cut by it.
	RequestTimeout time.Duration

	// Publisher receives one event per finished generation.
	// If nil, events are discarded.
	Publisher eventstream.Publisher

	// Retry overrides the upstream retry policy. Mostly useful in tests.
	Retry *retry.Policy
}
