package configcmder_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/streampump/cmd/streampump/config"
	"github.com/papercomputeco/streampump/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))

		subcommands := []string{}
		for _, sub := range cmd.Commands() {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "streampump-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .streampump dir takes precedence over the home one.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".streampump"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	loadLocal := func() *config.Config {
		cfger, err := config.NewConfiger(filepath.Join(tmpDir, ".streampump"))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	Describe("set subcommand", func() {
		It("writes the value to config.toml", func() {
			Expect(execute("set", "client.dialect", "anthropic")).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, ".streampump", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(loadLocal().Client.Dialect).To(Equal("anthropic"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("set", "proxy.provider", "anthropic")).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "client.dialect")).To(HaveOccurred())
			Expect(execute("set")).To(HaveOccurred())
		})

		It("rejects invalid durations", func() {
			Expect(execute("set", "server.request_timeout", "soon")).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(execute("set", "upstream.ollama", "http://gpu-box:11434")).To(Succeed())
			Expect(execute("get", "upstream.ollama")).To(Succeed())
		})

		It("runs without error for unset key", func() {
			Expect(execute("get", "telemetry.kafka_brokers")).To(Succeed())
		})

		It("rejects unknown keys and wrong arity", func() {
			Expect(execute("get", "invalid_key")).To(HaveOccurred())
			Expect(execute("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("runs with and without a config file", func() {
			Expect(execute("list")).To(Succeed())
			Expect(execute("set", "log.file", "/tmp/streampump.log")).To(Succeed())
			Expect(execute("list")).To(Succeed())
		})

		It("rejects any arguments", func() {
			Expect(execute("list", "extra")).To(HaveOccurred())
		})
	})
})
