// Package fetch performs the single upstream HTTP POST of a dispatch and
// classifies its failures for the retry policy.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/streampump/pkg/dispatch"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 4 * 1024

// Client performs upstream requests.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Client. A nil httpClient uses a client without an
// overall timeout: streaming responses are bounded by the request context.
func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 2 * time.Minute,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConnsPerHost:   16,
			},
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{httpClient: httpClient, logger: logger}
}

// Fetch issues req and returns the response body of a successful (2xx)
// response. Failures are returned as *Error, except cancellation of ctx which
// is returned as the context error so that it is never retried.
func (c *Client) Fetch(ctx context.Context, req *dispatch.Request) (io.ReadCloser, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header[k] = v
	}

	c.logger.Debug("fetching upstream",
		zap.String("method", method),
		zap.String("url", req.URL),
		zap.Int("body_bytes", len(req.Body)),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ConnectionError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}

		c.logger.Debug("upstream returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", message),
		)
		return nil, HTTPError(resp.StatusCode, message)
	}

	return resp.Body, nil
}
