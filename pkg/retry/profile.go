// Package retry wraps a single idempotent upstream operation (the connection
// attempt) with classified, jittered exponential backoff.
//
// Only failures that happened before any byte was streamed may be retried:
// callers must never wrap an operation that has already forwarded output.
package retry

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/papercomputeco/streampump/pkg/fetch"
)

// Profile is the backoff configuration for one class of failure.
type Profile struct {
	Name         string
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64

	// MaxAttempts counts the first attempt. Always >= 1.
	MaxAttempts int
}

var (
	// NetworkProfile covers failures where no connection was established.
	NetworkProfile = Profile{
		Name:         "network",
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		JitterFactor: 0.25,
		MaxAttempts:  3,
	}

	// ServerProfile covers transient rate limits and overloaded upstreams.
	ServerProfile = Profile{
		Name:         "server",
		BaseDelay:    1 * time.Second,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.5,
		MaxAttempts:  4,
	}
)

// quotaPattern identifies 429s that need user action rather than patience.
var quotaPattern = regexp.MustCompile(`(?i)quota|billing`)

// SelectProfile classifies err and returns the profile to retry it under.
// The boolean is false for errors that must not be retried.
func SelectProfile(err error) (Profile, bool) {
	var fe *fetch.Error
	if !errors.As(err, &fe) {
		return Profile{}, false
	}

	switch fe.Category {
	case fetch.CategoryConnection:
		return NetworkProfile, true

	case fetch.CategoryHTTP:
		switch fe.HTTPStatus {
		case http.StatusTooManyRequests:
			if quotaPattern.MatchString(fe.Message) {
				return Profile{}, false
			}
			return ServerProfile, true
		case http.StatusBadGateway, http.StatusServiceUnavailable:
			return ServerProfile, true
		}
	}

	return Profile{}, false
}

// Backoff returns the pre-jitter delay after the given failed attempt
// (1-based): min(base * 2^(attempt-1), max).
func (p Profile) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Jitter applies symmetric jitter to delay. u is a uniform sample in [-1, 1].
// The result is floored at one millisecond.
func (p Profile) Jitter(delay time.Duration, u float64) time.Duration {
	jittered := time.Duration(float64(delay) + float64(delay)*p.JitterFactor*u)
	if jittered < time.Millisecond {
		return time.Millisecond
	}
	return jittered
}
