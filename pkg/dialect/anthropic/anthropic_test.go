package anthropic_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streampump/pkg/dialect/anthropic"
	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/llm"
)

var _ = Describe("Anthropic Dialect", func() {
	var d *anthropic.Dialect

	BeforeEach(func() {
		d = anthropic.New()
	})

	It("names itself", func() {
		Expect(d.Name()).To(Equal("anthropic"))
		Expect(d.Vendor()).To(Equal("Anthropic"))
	})

	Describe("BuildRequest", func() {
		access := llm.Access{Dialect: "anthropic", APIKey: "sk-ant", Host: "https://api.anthropic.com/"}
		model := llm.Model{ID: "claude-sonnet-4-5"}

		It("targets the messages endpoint with the vendor headers", func() {
			req, err := d.BuildRequest(access, model, []llm.Message{llm.NewTextMessage("user", "Hi")})
			Expect(err).NotTo(HaveOccurred())
			Expect(req.URL).To(Equal("https://api.anthropic.com/v1/messages"))
			Expect(req.Method).To(Equal("POST"))
			Expect(req.Headers.Get("x-api-key")).To(Equal("sk-ant"))
			Expect(req.Headers.Get("anthropic-version")).To(Equal("2023-06-01"))
			Expect(req.Headers.Get("Content-Type")).To(Equal("application/json"))
		})

		It("hoists system messages and defaults max_tokens", func() {
			history := []llm.Message{
				llm.NewTextMessage("system", "Be brief."),
				llm.NewTextMessage("user", "Hi"),
				llm.NewTextMessage("assistant", "Hello"),
				llm.NewTextMessage("user", "Bye"),
			}
			req, err := d.BuildRequest(access, model, history)
			Expect(err).NotTo(HaveOccurred())

			var body map[string]any
			Expect(json.Unmarshal(req.Body, &body)).To(Succeed())
			Expect(body["system"]).To(Equal("Be brief."))
			Expect(body["stream"]).To(BeTrue())
			Expect(body["max_tokens"]).To(BeNumerically("==", 4096))
			Expect(body["messages"]).To(HaveLen(3))
			Expect(body).NotTo(HaveKey("temperature"))
			Expect(body).NotTo(HaveKey("metadata"))
		})

		It("forwards the end-user identifier as metadata", func() {
			withUser := access
			withUser.User = "user-42"
			req, err := d.BuildRequest(withUser, model, []llm.Message{llm.NewTextMessage("user", "Hi")})
			Expect(err).NotTo(HaveOccurred())

			var body map[string]any
			Expect(json.Unmarshal(req.Body, &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("metadata", HaveKeyWithValue("user_id", "user-42")))
		})

		It("carries model parameters", func() {
			temp := 0.2
			maxTokens := 100
			req, err := d.BuildRequest(access, llm.Model{ID: "claude", Temperature: &temp, MaxTokens: &maxTokens},
				[]llm.Message{llm.NewTextMessage("user", "Hi")})
			Expect(err).NotTo(HaveOccurred())

			var body map[string]any
			Expect(json.Unmarshal(req.Body, &body)).To(Succeed())
			Expect(body["temperature"]).To(BeNumerically("==", 0.2))
			Expect(body["max_tokens"]).To(BeNumerically("==", 100))
		})

		It("maps base64 images", func() {
			history := []llm.Message{{
				Role: "user",
				Content: []llm.ContentBlock{
					{Type: "text", Text: "What is this?"},
					{Type: "image", ImageBase64: "aGVsbG8=", MediaType: "image/png"},
				},
			}}
			req, err := d.BuildRequest(access, model, history)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(req.Body)).To(ContainSubstring(`"source":{"type":"base64","media_type":"image/png","data":"aGVsbG8="}`))
		})

		It("rejects a missing API key", func() {
			_, err := d.BuildRequest(llm.Access{Host: "https://x"}, model, []llm.Message{llm.NewTextMessage("user", "Hi")})
			Expect(err).To(MatchError(ContainSubstring("API key")))
		})

		It("rejects a history with only system messages", func() {
			_, err := d.BuildRequest(access, model, []llm.Message{llm.NewTextMessage("system", "x")})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Parser", func() {
		var parse dispatch.ParseFunc

		BeforeEach(func() {
			parse = d.NewParser()
		})

		It("reports the model on message_start", func() {
			ps, err := parse(`{"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-5","usage":{"input_tokens":12}}}`, "message_start")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(1))
			Expect(ps[0].Op).To(Equal(dispatch.OpSet))
			Expect(ps[0].Value).To(HaveKeyWithValue("model", "claude-sonnet-4-5"))
			Expect(ps[0].Value).To(HaveKey("usage"))
		})

		It("emits text deltas", func() {
			ps, err := parse(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`, "content_block_delta")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(Equal([]dispatch.Particle{dispatch.TextParticle("Hello")}))
		})

		It("ignores thinking deltas and pings", func() {
			ps, err := parse(`{"type":"content_block_delta","delta":{"type":"thinking_delta","thinking":"hmm"}}`, "content_block_delta")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(BeEmpty())

			ps, err = parse(`{"type":"ping"}`, "ping")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(BeEmpty())
		})

		It("reports the stop reason on message_delta", func() {
			ps, err := parse(`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`, "message_delta")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(1))
			Expect(ps[0].Value).To(HaveKeyWithValue("stopReason", "end_turn"))
		})

		It("closes on message_stop", func() {
			ps, err := parse(`{"type":"message_stop"}`, "message_stop")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(Equal([]dispatch.Particle{dispatch.CloseParticle()}))
		})

		It("turns in-stream errors into an issue and a close", func() {
			ps, err := parse(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, "error")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(2))
			Expect(ps[0]).To(Equal(dispatch.IssueParticle(dispatch.SymbolWarning, "overloaded_error: Overloaded")))
			Expect(ps[1].Op).To(Equal(dispatch.OpParserClose))
		})

		It("falls back to the payload type when the event is unnamed", func() {
			ps, err := parse(`{"type":"message_stop"}`, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(1))
		})

		It("ignores unknown events", func() {
			ps, err := parse(`{"type":"surprise"}`, "surprise")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(BeEmpty())
		})

		It("fails on malformed JSON", func() {
			_, err := parse(`{not json`, "content_block_delta")
			Expect(err).To(HaveOccurred())
		})
	})
})
