package openai_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streampump/pkg/dialect/openai"
	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/llm"
)

var _ = Describe("OpenAI Dialect", func() {
	var d *openai.Dialect

	BeforeEach(func() {
		d = openai.New()
	})

	Describe("BuildRequest", func() {
		access := llm.Access{Dialect: "openai", APIKey: "sk-test", Host: "https://api.openai.com", Organization: "org-1"}

		It("targets chat completions with bearer auth", func() {
			req, err := d.BuildRequest(access, llm.Model{ID: "gpt-4o"}, []llm.Message{llm.NewTextMessage("user", "Hi")})
			Expect(err).NotTo(HaveOccurred())
			Expect(req.URL).To(Equal("https://api.openai.com/v1/chat/completions"))
			Expect(req.Headers.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(req.Headers.Get("OpenAI-Organization")).To(Equal("org-1"))
		})

		It("requests a stream with usage", func() {
			temp := 0.5
			req, err := d.BuildRequest(access, llm.Model{ID: "gpt-4o", Temperature: &temp}, []llm.Message{
				llm.NewTextMessage("system", "Be brief."),
				llm.NewTextMessage("user", "Hi"),
			})
			Expect(err).NotTo(HaveOccurred())

			var body map[string]any
			Expect(json.Unmarshal(req.Body, &body)).To(Succeed())
			Expect(body["model"]).To(Equal("gpt-4o"))
			Expect(body["stream"]).To(BeTrue())
			Expect(body["temperature"]).To(BeNumerically("==", 0.5))
			Expect(body["stream_options"]).To(HaveKeyWithValue("include_usage", true))
			Expect(body["messages"]).To(HaveLen(2))
		})

		It("passes extra headers through", func() {
			withHeaders := access
			withHeaders.Headers = map[string]string{"X-Trace": "abc"}
			req, err := d.BuildRequest(withHeaders, llm.Model{ID: "gpt-4o"}, []llm.Message{llm.NewTextMessage("user", "Hi")})
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Headers.Get("X-Trace")).To(Equal("abc"))
		})

		It("rejects unknown roles", func() {
			_, err := d.BuildRequest(access, llm.Model{ID: "gpt-4o"}, []llm.Message{llm.NewTextMessage("tool", "x")})
			Expect(err).To(MatchError(ContainSubstring("unsupported role")))
		})

		It("rejects a missing API key", func() {
			_, err := d.BuildRequest(llm.Access{Host: "https://x"}, llm.Model{ID: "gpt-4o"}, []llm.Message{llm.NewTextMessage("user", "Hi")})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Parser", func() {
		var parse dispatch.ParseFunc

		BeforeEach(func() {
			parse = d.NewParser()
		})

		It("reports the model once and emits text", func() {
			ps, err := parse(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(2))
			Expect(ps[0].Value).To(HaveKeyWithValue("model", "gpt-4o"))
			Expect(ps[1]).To(Equal(dispatch.TextParticle("Hel")))

			ps, err = parse(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"}}]}`, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(Equal([]dispatch.Particle{dispatch.TextParticle("lo")}))
		})

		It("reports the finish reason", func() {
			ps, err := parse(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(1))
			Expect(ps[0].Value).To(HaveKeyWithValue("stopReason", "stop"))
		})

		It("reports usage from the trailing chunk", func() {
			ps, err := parse(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(1))
			Expect(ps[0].Value).To(HaveKey("usage"))
		})

		It("turns in-band errors into an issue and a close", func() {
			ps, err := parse(`{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(2))
			Expect(ps[0].Op).To(Equal(dispatch.OpIssue))
			Expect(ps[0].Symbol).To(Equal(dispatch.SymbolWarning))
			Expect(ps[0].Issue).To(ContainSubstring("context length exceeded"))
			Expect(ps[1].Op).To(Equal(dispatch.OpParserClose))
		})

		It("fails on malformed JSON", func() {
			_, err := parse(`{"choices":`, "")
			Expect(err).To(HaveOccurred())
		})
	})
})
