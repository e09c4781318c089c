package header

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FilterUpstreamHeaders", func() {
	var hh *Handler

	BeforeEach(func() {
		hh = NewHandler()
	})

	It("forwards custom headers with canonical keys", func() {
		got := hh.FilterUpstreamHeaders(map[string]string{
			"x-trace-id":     "abc",
			"Anthropic-Beta": "prompt-caching-2024-07-31",
			"openai-project": "proj_1",
		})
		Expect(got).To(Equal(map[string]string{
			"X-Trace-Id":     "abc",
			"Anthropic-Beta": "prompt-caching-2024-07-31",
			"Openai-Project": "proj_1",
		}))
	})

	It("strips hop-by-hop and framing headers", func() {
		got := hh.FilterUpstreamHeaders(map[string]string{
			"connection":        "keep-alive",
			"Host":              "evil.example.com",
			"Accept-Encoding":   "br",
			"content-length":    "12",
			"Content-Type":      "text/plain",
			"Transfer-Encoding": "chunked",
			"X-Keep":            "yes",
		})
		Expect(got).To(Equal(map[string]string{"X-Keep": "yes"}))
	})

	It("returns nil for no headers", func() {
		Expect(hh.FilterUpstreamHeaders(nil)).To(BeNil())
	})
})

var _ = Describe("SetStreamResponseHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
	})

	AfterEach(func() {
		app.Shutdown()
	})

	It("marks the response as an unbuffered NDJSON stream", func() {
		app.Post("/test", func(c *fiber.Ctx) error {
			hh.SetStreamResponseHeaders(c)
			return c.SendString("{}\n")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.Header.Get("Content-Type")).To(Equal("application/x-ndjson"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))
	})
})
