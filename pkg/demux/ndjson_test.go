package demux_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streampump/pkg/demux"
	"github.com/papercomputeco/streampump/pkg/dispatch"
)

var _ = Describe("NDJSON", func() {
	It("emits one event per line", func() {
		d := demux.NewNDJSON()
		evs := d.Demux("{\"a\":1}\n{\"b\":2}\n")
		Expect(evs).To(HaveLen(2))
		Expect(evs[0].Type).To(Equal(dispatch.EventTypeEvent))
		Expect(evs[0].Data).To(Equal(`{"a":1}`))
		Expect(evs[1].Data).To(Equal(`{"b":2}`))
	})

	It("buffers a line split across chunks", func() {
		d := demux.NewNDJSON()
		Expect(d.Demux(`{"message":{"con`)).To(BeEmpty())
		evs := d.Demux("tent\":\"hi\"}}\n")
		Expect(evs).To(HaveLen(1))
		Expect(evs[0].Data).To(Equal(`{"message":{"content":"hi"}}`))
	})

	It("skips blank lines", func() {
		d := demux.NewNDJSON()
		Expect(d.Demux("\n\n  \n")).To(BeEmpty())
	})

	It("flushes an unterminated final line", func() {
		d := demux.NewNDJSON()
		Expect(d.Demux("{\"a\":1}\n{\"done\":true}")).To(HaveLen(1))
		evs := d.Flush()
		Expect(evs).To(HaveLen(1))
		Expect(evs[0].Data).To(Equal(`{"done":true}`))
		Expect(d.Flush()).To(BeEmpty())
	})
})
