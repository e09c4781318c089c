package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/streampump/pkg/eventstream"
	"github.com/papercomputeco/streampump/pkg/eventstream/kafka"
)

type fakeWriter struct {
	messages []kafkago.Message
	deadline bool
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var _ kafka.MessageWriter = (*fakeWriter)(nil)

var _ = Describe("Publisher", func() {
	var (
		w *fakeWriter
		p *kafka.Publisher
	)

	event := &eventstream.GenerationCompletedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeGenerationCompleted,
		EventID:       "evt_1",
		EmittedAt:     time.Unix(1735689600, 0).UTC(),
		Generation:    eventstream.GenerationMeta{GenerationID: "gen_1"},
		Outcome:       eventstream.GenerationOutcome{Cause: "event-done"},
	}

	BeforeEach(func() {
		w = &fakeWriter{}
		p = kafka.NewPublisherWithWriter(w, time.Second)
	})

	It("requires brokers", func() {
		_, err := kafka.NewPublisher(kafka.Config{})
		Expect(err).To(MatchError(kafka.ErrNoBrokers))
	})

	It("builds a writer from broker addresses", func() {
		pub, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(pub.Close()).To(Succeed())
	})

	It("rejects nil events", func() {
		Expect(p.PublishGeneration(context.Background(), nil)).To(MatchError(eventstream.ErrNilGenerationEvent))
		Expect(w.messages).To(BeEmpty())
	})

	It("writes one keyed JSON message with a deadline", func() {
		Expect(p.PublishGeneration(context.Background(), event)).To(Succeed())

		Expect(w.messages).To(HaveLen(1))
		msg := w.messages[0]
		Expect(string(msg.Key)).To(Equal("gen_1"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte("streampump.generation.completed")}))
		Expect(w.deadline).To(BeTrue())

		var decoded eventstream.GenerationCompletedEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.Outcome.Cause).To(Equal("event-done"))
	})

	It("wraps writer errors", func() {
		w.err = errors.New("leader not available")
		err := p.PublishGeneration(context.Background(), event)
		Expect(err).To(MatchError(ContainSubstring("gen_1")))
		Expect(errors.Is(err, w.err)).To(BeTrue())
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})
})
