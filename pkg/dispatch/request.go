package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// NewJSONRequest builds a POST request carrying body encoded as JSON. Extra
// headers are merged after the content negotiation headers.
func NewJSONRequest(url string, body any, headers map[string]string) (*Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "text/event-stream, application/x-ndjson, application/json")
	for k, v := range headers {
		h.Set(k, v)
	}

	return &Request{
		URL:     url,
		Method:  http.MethodPost,
		Headers: h,
		Body:    payload,
	}, nil
}

// JoinURL joins a base host and a path with exactly one slash between them.
func JoinURL(host, path string) string {
	return strings.TrimRight(host, "/") + "/" + strings.TrimLeft(path, "/")
}
