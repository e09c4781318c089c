package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/streampump/pkg/eventstream"
	"github.com/papercomputeco/streampump/pkg/pump"
	"github.com/papercomputeco/streampump/pkg/session"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu      sync.Mutex
	events  []*eventstream.GenerationCompletedEvent
	err     error
	release chan struct{}
}

func (r *recordingPublisher) PublishGeneration(_ context.Context, event *eventstream.GenerationCompletedEvent) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) published() []*eventstream.GenerationCompletedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.GenerationCompletedEvent(nil), r.events...)
}

func testResult(id string) *pump.Result {
	return &pump.Result{
		ID:         id,
		Dialect:    "anthropic",
		Vendor:     "Anthropic",
		Model:      "claude-sonnet-4-5",
		Cause:      string(session.StageRead),
		ErrorStage: session.StageRead,
		Retries:    2,
		Stats:      session.Stats{UpstreamEvents: 7, Emitted: 5, TextBytes: 42},
		StartedAt:  time.Unix(1735689600, 0),
		Duration:   1500 * time.Millisecond,
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp  *Pool
		pub *recordingPublisher
	)

	BeforeEach(func() {
		pub = &recordingPublisher{}
		var err error
		wp, err = NewPool(&Config{
			Publisher: pub,
			Logger:    zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a publisher", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
		wp.Close()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(Job{Result: testResult("gen_1")})).To(BeTrue())
			wp.Close()
			Expect(pub.published()).To(HaveLen(1))
		})

		It("rejects jobs without a result", func() {
			Expect(wp.Enqueue(Job{})).To(BeFalse())
			wp.Close()
		})

		It("drops jobs when the queue is full", func() {
			blocked := &recordingPublisher{release: make(chan struct{})}
			small, err := NewPool(&Config{Publisher: blocked, NumWorkers: 1, QueueSize: 1, Logger: zap.NewNop()})
			Expect(err).NotTo(HaveOccurred())

			// One job is held by the worker, one fills the queue.
			Expect(small.Enqueue(Job{Result: testResult("a")})).To(BeTrue())
			Eventually(func() bool {
				return small.Enqueue(Job{Result: testResult("b")})
			}).Should(BeTrue())
			Expect(small.Enqueue(Job{Result: testResult("c")})).To(BeFalse())

			close(blocked.release)
			small.Close()
			Expect(blocked.published()).To(HaveLen(2))
			wp.Close()
		})
	})

	Describe("Event mapping", func() {
		It("maps the generation result onto the event", func() {
			wp.Enqueue(Job{Result: testResult("gen_2")})
			wp.Close()

			events := pub.published()
			Expect(events).To(HaveLen(1))
			ev := events[0]
			Expect(ev.EventType).To(Equal(eventstream.EventTypeGenerationCompleted))
			Expect(ev.EventID).NotTo(BeEmpty())
			Expect(ev.Source).To(Equal(eventstream.EventSource{Dialect: "anthropic", Vendor: "Anthropic", Model: "claude-sonnet-4-5"}))
			Expect(ev.Generation.GenerationID).To(Equal("gen_2"))
			Expect(ev.Generation.DurationMs).To(Equal(int64(1500)))
			Expect(ev.Generation.CompletedAt.Sub(ev.Generation.StartedAt)).To(Equal(1500 * time.Millisecond))
			Expect(ev.Generation.Retries).To(Equal(2))
			Expect(ev.Outcome.ErrorStage).To(Equal("upstream-read"))
			Expect(ev.Outcome.Aborted).To(BeFalse())
			Expect(ev.Outcome.TextBytes).To(Equal(42))
		})
	})

	It("keeps working after a publish failure", func() {
		pub.err = errors.New("broker down")
		wp.Enqueue(Job{Result: testResult("gen_3")})
		wp.Close()
		Expect(pub.published()).To(BeEmpty())
	})
})
