package servecmder

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/streampump/pkg/config"
)

var _ = Describe("NewServeCmd", func() {
	It("registers every server flag", func() {
		cmd := NewServeCmd()
		Expect(cmd.Use).To(Equal("serve"))

		for _, name := range []string{
			"listen", "request-timeout",
			"upstream-openai", "upstream-anthropic", "upstream-gemini", "upstream-ollama",
			"kafka-brokers", "kafka-topic", "log-file",
		} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("listen").Shorthand).To(Equal("l"))
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8080"))
	})
})

var _ = Describe("serveCommander", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "serve-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("resolves flags over the config file", func() {
		data := "[server]\nlisten = \":9999\"\nrequest_timeout = \"45s\"\n\n[upstream]\nollama = \"http://gpu-box:11434\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		cmd := NewServeCmd()
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)

		c := &serveCommander{}
		c.load(v)
		Expect(c.listen).To(Equal(":7777"))
		Expect(c.upstreamOllama).To(Equal("http://gpu-box:11434"))

		cfg, err := c.proxyConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ListenAddr).To(Equal(":7777"))
		Expect(cfg.RequestTimeout).To(Equal(45 * time.Second))
		Expect(cfg.Upstreams).To(Equal(map[string]string{"ollama": "http://gpu-box:11434"}))
	})

	It("rejects malformed request timeouts", func() {
		c := &serveCommander{requestTimeout: "soon"}
		_, err := c.proxyConfig()
		Expect(err).To(MatchError(ContainSubstring("invalid request timeout")))
	})

	It("only creates a kafka publisher when brokers are configured", func() {
		c := &serveCommander{logger: zap.NewNop()}
		publisher, err := c.newPublisher()
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher).To(BeNil())

		c.kafkaBrokers = "localhost:9092"
		publisher, err = c.newPublisher()
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher).NotTo(BeNil())
		Expect(publisher.Close()).To(Succeed())
	})
})
