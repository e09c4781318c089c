package demux_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streampump/pkg/demux"
	"github.com/papercomputeco/streampump/pkg/dispatch"
)

var _ = Describe("SSE", func() {
	var d *demux.SSE

	BeforeEach(func() {
		d = demux.NewSSE()
	})

	Context("with standard SSE events", func() {
		It("parses a single event", func() {
			evs := d.Demux("data: hello world\n\n")
			Expect(evs).To(HaveLen(1))
			Expect(evs[0].Type).To(Equal(dispatch.EventTypeEvent))
			Expect(evs[0].Data).To(Equal("hello world"))
			Expect(evs[0].Name).To(BeEmpty())
		})

		It("parses multiple events in one chunk", func() {
			evs := d.Demux("data: first\n\ndata: second\n\n")
			Expect(evs).To(HaveLen(2))
			Expect(evs[0].Data).To(Equal("first"))
			Expect(evs[1].Data).To(Equal("second"))
		})

		It("parses the event name", func() {
			evs := d.Demux("event: content_block_delta\ndata: {\"type\":\"delta\"}\n\n")
			Expect(evs).To(HaveLen(1))
			Expect(evs[0].Name).To(Equal("content_block_delta"))
			Expect(evs[0].Data).To(Equal(`{"type":"delta"}`))
		})

		It("joins multiple data lines with newline", func() {
			evs := d.Demux("data: line one\ndata: line two\ndata: line three\n\n")
			Expect(evs).To(HaveLen(1))
			Expect(evs[0].Data).To(Equal("line one\nline two\nline three"))
		})

		It("accepts CRLF line endings", func() {
			evs := d.Demux("event: ping\r\ndata: {}\r\n\r\n")
			Expect(evs).To(HaveLen(1))
			Expect(evs[0].Name).To(Equal("ping"))
			Expect(evs[0].Data).To(Equal("{}"))
		})
	})

	Context("with frames split across chunks", func() {
		It("buffers a partial line until it is completed", func() {
			Expect(d.Demux("da")).To(BeEmpty())
			Expect(d.Demux("ta: hel")).To(BeEmpty())
			Expect(d.Demux("lo\n")).To(BeEmpty())

			evs := d.Demux("\ndata: next\n\n")
			Expect(evs).To(HaveLen(2))
			Expect(evs[0].Data).To(Equal("hello"))
			Expect(evs[1].Data).To(Equal("next"))
		})

		It("keeps wire order when one byte arrives at a time", func() {
			input := "data: a\n\nevent: x\ndata: b\n\ndata: [DONE]\n\n"
			var all []dispatch.DemuxedEvent
			for _, r := range input {
				all = append(all, d.Demux(string(r))...)
			}
			Expect(all).To(HaveLen(3))
			Expect(all[0].Data).To(Equal("a"))
			Expect(all[1].Name).To(Equal("x"))
			Expect(all[1].Data).To(Equal("b"))
			Expect(all[2].Data).To(Equal(dispatch.DoneSentinel))
		})
	})

	Context("with framing noise", func() {
		It("surfaces comments as non-event frames", func() {
			evs := d.Demux(": keep-alive\n\ndata: x\n\n")
			Expect(evs).To(HaveLen(2))
			Expect(evs[0].Type).To(Equal(dispatch.EventTypeComment))
			Expect(evs[0].Data).To(Equal("keep-alive"))
			Expect(evs[1].Type).To(Equal(dispatch.EventTypeEvent))
		})

		It("surfaces retry fields as non-event frames", func() {
			evs := d.Demux("retry: 3000\n\n")
			Expect(evs).To(HaveLen(1))
			Expect(evs[0].Type).To(Equal(dispatch.EventTypeRetry))
			Expect(evs[0].Data).To(Equal("3000"))
		})

		It("skips leading blank lines", func() {
			evs := d.Demux("\n\n\ndata: x\n\n")
			Expect(evs).To(HaveLen(1))
			Expect(evs[0].Data).To(Equal("x"))
		})

		It("drops frames that carry no data field", func() {
			evs := d.Demux("id: 1\n\ndata: hi\n\n")
			Expect(evs).To(HaveLen(1))
			Expect(evs[0].Data).To(Equal("hi"))
		})

		It("does not carry an event name past a frame without data", func() {
			evs := d.Demux("event: ping\n\ndata: x\n\n")
			Expect(evs).To(HaveLen(1))
			Expect(evs[0].Name).To(BeEmpty())
			Expect(evs[0].Data).To(Equal("x"))
		})

		It("ignores unknown fields", func() {
			evs := d.Demux("foo: bar\ndata: x\n\n")
			Expect(evs).To(HaveLen(1))
			Expect(evs[0].Data).To(Equal("x"))
		})
	})

	Context("with Anthropic-style SSE", func() {
		It("parses named events in order", func() {
			input := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
				"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hello\"}}\n\n" +
				"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"
			evs := d.Demux(input)
			Expect(evs).To(HaveLen(3))
			Expect(evs[0].Name).To(Equal("message_start"))
			Expect(evs[1].Name).To(Equal("content_block_delta"))
			Expect(evs[2].Name).To(Equal("message_stop"))
		})
	})
})
