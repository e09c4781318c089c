// Package pump drives one generation from a normalized request to a
// normalized downstream event stream. It prepares the vendor dispatch,
// connects through the retry policy, and feeds the upstream body through the
// dialect's demuxer and parser into a session.Session.
package pump

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/papercomputeco/streampump/pkg/dialect"
	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/fetch"
	"github.com/papercomputeco/streampump/pkg/llm"
	"github.com/papercomputeco/streampump/pkg/retry"
	"github.com/papercomputeco/streampump/pkg/session"
)

const readBufferSize = 32 * 1024

// Preparer builds the dispatch for a request.
type Preparer interface {
	Prepare(access llm.Access, model llm.Model, history []llm.Message) (*dispatch.Dispatch, error)

	// Vendor names the vendor of a dialect tag before preparation succeeds,
	// so that preparation errors can be attributed.
	Vendor(tag string) string
}

// Fetcher opens an upstream response body.
type Fetcher interface {
	Fetch(ctx context.Context, req *dispatch.Request) (io.ReadCloser, error)
}

// Observer receives per-generation measurements.
type Observer interface {
	ObserveParticle(dialect string, op dispatch.Op)
	ObserveRetry(dialect string)
	ObserveGeneration(result *Result)
}

// Config configures a Pump.
type Config struct {
	// Preparer defaults to a dialect.Registry with every supported dialect.
	Preparer Preparer

	// Fetcher defaults to a fetch.Client.
	Fetcher Fetcher

	// Retry defaults to the package-level retry profiles.
	Retry *retry.Policy

	// Observer is optional.
	Observer Observer

	Logger *zap.Logger
}

// Pump runs generations. It holds no per-request state and is safe for
// concurrent use.
type Pump struct {
	preparer Preparer
	fetcher  Fetcher
	retry    *retry.Policy
	observer Observer
	logger   *zap.Logger
}

// New creates a Pump.
func New(cfg Config) *Pump {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Preparer == nil {
		cfg.Preparer = dialect.NewRegistry()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.NewClient(nil, cfg.Logger)
	}
	if cfg.Retry == nil {
		cfg.Retry = &retry.Policy{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Pump{
		preparer: cfg.Preparer,
		fetcher:  cfg.Fetcher,
		retry:    cfg.Retry,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
}

// Run performs one generation, delivering every downstream event to sink in
// order on the calling goroutine. It returns once the session has terminated.
// Failures are reported to the client through sink and summarized in the
// Result; they are never returned as errors.
//
// Cancelling ctx aborts the generation silently: no event is emitted after
// the cancellation is observed.
func (p *Pump) Run(ctx context.Context, req *llm.GenerateRequest, sink func(session.Event)) *Result {
	res := &Result{
		ID:        uuid.NewString(),
		Dialect:   UnknownDialect,
		Model:     req.Model.ID,
		StartedAt: time.Now(),
	}
	logger := p.logger.With(
		zap.String("generation_id", res.ID),
		zap.String("dialect", req.Access.Dialect),
		zap.String("model", res.Model),
	)

	sess := session.New(p.preparer.Vendor(req.Access.Dialect), sink, logger)
	defer func() {
		res.Vendor = sess.Vendor()
		res.Cause = sess.Cause()
		res.ErrorStage = sess.ErrorStage()
		res.Stats = sess.Stats()
		res.Duration = time.Since(res.StartedAt)
		p.observer.ObserveGeneration(res)
		logger.Info("generation finished",
			zap.String("cause", res.Cause),
			zap.Int("retries", res.Retries),
			zap.Int("upstream_events", res.Stats.UpstreamEvents),
			zap.Int("text_bytes", res.Stats.TextBytes),
			zap.Duration("duration", res.Duration),
		)
	}()

	sess.YieldStart()

	disp, err := p.preparer.Prepare(req.Access, req.Model, req.History)
	if err != nil {
		sess.YieldError(session.StagePrepare, err.Error(), false)
		return res
	}
	sess.SetVendor(disp.Vendor)
	if disp.Dialect != "" {
		res.Dialect = disp.Dialect
	}

	body, err := retry.DoWithPolicy(ctx, p.retry,
		func(ctx context.Context) (io.ReadCloser, error) {
			return p.fetcher.Fetch(ctx, disp.Request.Clone())
		},
		func(n retry.Notice) {
			res.Retries++
			p.observer.ObserveRetry(res.Dialect)
			logger.Info("retrying upstream",
				zap.Int("attempt", n.Attempt),
				zap.Int("max_attempts", n.MaxAttempts),
				zap.Duration("delay", n.Delay),
				zap.String("profile", n.Profile),
			)
			sess.YieldSet(map[string]any{"retry": retryNotice(n)})
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			sess.MarkTermination()
			return res
		}
		sess.YieldError(session.StageFetch, err.Error(), true)
		return res
	}
	defer body.Close()

	p.stream(ctx, sess, disp, res.Dialect, body)
	return res
}

// Stream runs the generation on a new goroutine and returns its events. The
// channel is closed after the session terminates. Cancel ctx to stop a
// consumer that no longer reads.
func (p *Pump) Stream(ctx context.Context, req *llm.GenerateRequest) <-chan session.Event {
	ch := make(chan session.Event)
	go func() {
		defer close(ch)
		p.Run(ctx, req, func(ev session.Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return ch
}

// stream reads body until the session terminates. Each chunk is fully
// processed before the next read.
func (p *Pump) stream(ctx context.Context, sess *session.Session, disp *dispatch.Dispatch, tag string, body io.Reader) {
	reader := transform.NewReader(body, unicode.UTF8.NewDecoder())
	buf := make([]byte, readBufferSize)

	for !sess.Terminated() {
		if ctx.Err() != nil {
			sess.MarkTermination()
			return
		}

		n, err := reader.Read(buf)
		if n > 0 {
			p.process(sess, disp, tag, disp.Demuxer.Demux(string(buf[:n])))
			if sess.Terminated() {
				return
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if f, ok := disp.Demuxer.(dispatch.Flusher); ok {
				p.process(sess, disp, tag, f.Flush())
				if sess.Terminated() {
					return
				}
			}
			sess.YieldTermination(session.CauseUpstreamClose)
		case ctx.Err() != nil:
			sess.MarkTermination()
		default:
			sess.YieldError(session.StageRead, err.Error(), false)
		}
	}
}

func (p *Pump) process(sess *session.Session, disp *dispatch.Dispatch, tag string, events []dispatch.DemuxedEvent) {
	for _, ev := range events {
		sess.OnReceivedUpstreamEvent(ev)
		if sess.Terminated() {
			return
		}
		if ev.Type != dispatch.EventTypeEvent {
			continue
		}
		if ev.Data == dispatch.DoneSentinel {
			sess.YieldTermination(session.CauseEventDone)
			continue
		}

		particles, err := disp.Parse(ev.Data, ev.Name)
		if err != nil {
			sess.YieldError(session.StageParse, err.Error(), false)
			continue
		}

		for _, pt := range particles {
			if sess.Terminated() {
				break
			}
			p.observer.ObserveParticle(tag, pt.Op)
			switch pt.Op {
			case dispatch.OpText:
				sess.YieldText(pt.Text)
			case dispatch.OpIssue:
				sess.YieldIssue(pt.Symbol, pt.Issue)
			case dispatch.OpSet:
				sess.YieldSet(pt.Value)
			case dispatch.OpParserClose:
				sess.YieldTermination(session.CauseParserDone)
			}
		}
	}
}

func retryNotice(n retry.Notice) map[string]any {
	notice := map[string]any{
		"attempt":     n.Attempt,
		"maxAttempts": n.MaxAttempts,
		"delayMs":     n.Delay.Milliseconds(),
	}
	if n.CauseHTTP != 0 {
		notice["causeHttp"] = n.CauseHTTP
	}
	if n.CauseConn != "" {
		notice["causeConn"] = n.CauseConn
	}
	return notice
}

type nopObserver struct{}

func (nopObserver) ObserveParticle(string, dispatch.Op) {}
func (nopObserver) ObserveRetry(string)                 {}
func (nopObserver) ObserveGeneration(*Result)           {}
