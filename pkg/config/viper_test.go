package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/streampump/pkg/config"
)

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("server.listen")).To(Equal(":8080"))
		Expect(v.GetString("client.dialect")).To(Equal("ollama"))
	})

	It("reads config file values over defaults", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[server]\nlisten = \":9999\"\n"), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("server.listen")).To(Equal(":9999"))
	})

	It("env vars take precedence over config file values", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[upstream]\nopenai = \"http://file\"\n"), 0o600)
		Expect(err).NotTo(HaveOccurred())
		GinkgoT().Setenv("STREAMPUMP_UPSTREAM_OPENAI", "http://env")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("upstream.openai")).To(Equal("http://env"))
	})

	It("resolves env vars for keys without a default", func() {
		GinkgoT().Setenv("STREAMPUMP_TELEMETRY_KAFKA_BROKERS", "localhost:9092")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("telemetry.kafka_brokers")).To(Equal("localhost:9092"))
	})
})

var _ = Describe("BindRegisteredFlags", func() {
	var tmpDir string
	var fs config.FlagSet

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "flags-test-*")
		Expect(err).NotTo(HaveOccurred())

		fs = config.FlagSet{
			config.FlagListen: {
				Name:        "listen",
				Shorthand:   "l",
				ViperKey:    "server.listen",
				Description: "Address to listen on",
			},
		}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("AddStringFlag pulls name, shorthand, default, and description from the FlagSet", func() {
		var listen string
		cmd := &cobra.Command{Use: "serve"}
		config.AddStringFlag(cmd, fs, config.FlagListen, &listen)

		f := cmd.Flags().Lookup("listen")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("l"))
		Expect(f.DefValue).To(Equal(":8080"))
		Expect(f.Usage).To(Equal("Address to listen on"))
	})

	It("binds an explicitly set flag over the config file", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[server]\nlisten = \":9999\"\n"), 0o600)
		Expect(err).NotTo(HaveOccurred())

		var listen string
		cmd := &cobra.Command{Use: "serve"}
		config.AddStringFlag(cmd, fs, config.FlagListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagListen, "missing"})

		Expect(v.GetString("server.listen")).To(Equal(":7777"))
	})

	It("falls through to the config file when the flag is not set", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[server]\nlisten = \":9999\"\n"), 0o600)
		Expect(err).NotTo(HaveOccurred())

		var listen string
		cmd := &cobra.Command{Use: "serve"}
		config.AddStringFlag(cmd, fs, config.FlagListen, &listen)

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagListen})

		Expect(v.GetString("server.listen")).To(Equal(":9999"))
	})
})
