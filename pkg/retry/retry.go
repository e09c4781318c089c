package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/papercomputeco/streampump/pkg/fetch"
)

// Notice describes an upcoming retry so callers can surface it.
type Notice struct {
	// Attempt is the number of the attempt about to be made (2 for the first retry).
	Attempt     int
	MaxAttempts int
	Delay       time.Duration

	// CauseHTTP is the status of the failed attempt, zero for connection failures.
	CauseHTTP int

	// CauseConn is the connection failure message, empty for http failures.
	CauseConn string

	// Profile is the name of the profile that scheduled the retry.
	Profile string
}

// Policy binds the classification, jitter source and sleep function used by
// DoWithPolicy. A Policy is read-only after construction and safe for
// concurrent use by independent callers.
type Policy struct {
	// Select classifies an error. Defaults to SelectProfile.
	Select func(error) (Profile, bool)

	// Uniform returns a sample in [-1, 1]. Defaults to math/rand/v2.
	Uniform func() float64

	// Sleep waits for d or until ctx is done. Defaults to a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

var defaultPolicy = &Policy{}

// Do runs op under the default policy. See DoWithPolicy.
func Do[T any](ctx context.Context, op func(context.Context) (T, error), onRetry func(Notice)) (T, error) {
	return DoWithPolicy(ctx, defaultPolicy, op, onRetry)
}

// DoWithPolicy runs op until it succeeds, fails with an error that is not
// retryable, or exhausts the attempts of the profile selected for its latest
// failure. onRetry, when non-nil, is called before every backoff wait.
//
// If ctx is done during a backoff wait, the error of the attempt that just
// failed is returned immediately and no further attempts are made.
func DoWithPolicy[T any](ctx context.Context, p *Policy, op func(context.Context) (T, error), onRetry func(Notice)) (T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		profile, ok := p.selectProfile(err)
		if !ok || attempt >= profile.MaxAttempts {
			return zero, err
		}

		delay := profile.Jitter(profile.Backoff(attempt), p.uniform())

		if onRetry != nil {
			notice := Notice{
				Attempt:     attempt + 1,
				MaxAttempts: profile.MaxAttempts,
				Delay:       delay,
				Profile:     profile.Name,
			}
			var fe *fetch.Error
			if errors.As(err, &fe) {
				if fe.Category == fetch.CategoryHTTP {
					notice.CauseHTTP = fe.HTTPStatus
				} else {
					notice.CauseConn = fe.Message
				}
			}
			onRetry(notice)
		}

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return zero, err
		}
	}
}

func (p *Policy) selectProfile(err error) (Profile, bool) {
	if p.Select != nil {
		return p.Select(err)
	}
	return SelectProfile(err)
}

func (p *Policy) uniform() float64 {
	if p.Uniform != nil {
		return p.Uniform()
	}
	return rand.Float64()*2 - 1
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
