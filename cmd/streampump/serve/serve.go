// Package servecmder provides the serve command for running the generation server.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/streampump/pkg/config"
	"github.com/papercomputeco/streampump/pkg/eventstream"
	"github.com/papercomputeco/streampump/pkg/eventstream/kafka"
	"github.com/papercomputeco/streampump/pkg/logger"
	"github.com/papercomputeco/streampump/proxy"
)

type serveCommander struct {
	listen         string
	requestTimeout string

	upstreamOpenAI    string
	upstreamAnthropic string
	upstreamGemini    string
	upstreamOllama    string

	kafkaBrokers string
	kafkaTopic   string
	logFile      string
	debug        bool

	logger *zap.Logger
}

// serveFlags is the flag registry for the serve command.
var serveFlags = config.FlagSet{
	config.FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "server.listen",
		Description: "Address for the server to listen on",
	},
	config.FlagRequestTimeout: {
		Name:        "request-timeout",
		ViperKey:    "server.request_timeout",
		Description: "Maximum time to read a client request (streams are never cut)",
	},
	config.FlagUpstreamOpenAI: {
		Name:        "upstream-openai",
		ViperKey:    "upstream.openai",
		Description: "Override the OpenAI upstream URL",
	},
	config.FlagUpstreamAnthropic: {
		Name:        "upstream-anthropic",
		ViperKey:    "upstream.anthropic",
		Description: "Override the Anthropic upstream URL",
	},
	config.FlagUpstreamGemini: {
		Name:        "upstream-gemini",
		ViperKey:    "upstream.gemini",
		Description: "Override the Gemini upstream URL",
	},
	config.FlagUpstreamOllama: {
		Name:        "upstream-ollama",
		ViperKey:    "upstream.ollama",
		Description: "Override the Ollama upstream URL",
	},
	config.FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "telemetry.kafka_brokers",
		Description: "Comma separated Kafka brokers for generation telemetry (default: disabled)",
	},
	config.FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "telemetry.kafka_topic",
		Description: "Kafka topic for generation telemetry",
	},
	config.FlagLogFile: {
		Name:        "log-file",
		ViperKey:    "log.file",
		Description: "Also write JSON logs to this rotated file",
	},
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagRequestTimeout,
	config.FlagUpstreamOpenAI,
	config.FlagUpstreamAnthropic,
	config.FlagUpstreamGemini,
	config.FlagUpstreamOllama,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagLogFile,
}

const serveLongDesc string = `Run the streampump generation server.

The server accepts normalized generation requests on POST /v1/chat/generate,
translates them to the selected vendor dialect (anthropic, gemini, ollama,
openai), retries transient upstream failures, and streams the reply back as
newline delimited JSON events.

Flags override environment variables (STREAMPUMP_*), which override the
config.toml file in the .streampump/ directory.

Examples:
  streampump serve
  streampump serve --listen :9090 --upstream-ollama http://gpu-box:11434
  streampump serve --kafka-brokers localhost:9092`

const serveShortDesc string = "Run the streampump generation server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.load(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagRequestTimeout, &cmder.requestTimeout)
	config.AddStringFlag(cmd, serveFlags, config.FlagUpstreamOpenAI, &cmder.upstreamOpenAI)
	config.AddStringFlag(cmd, serveFlags, config.FlagUpstreamAnthropic, &cmder.upstreamAnthropic)
	config.AddStringFlag(cmd, serveFlags, config.FlagUpstreamGemini, &cmder.upstreamGemini)
	config.AddStringFlag(cmd, serveFlags, config.FlagUpstreamOllama, &cmder.upstreamOllama)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddStringFlag(cmd, serveFlags, config.FlagLogFile, &cmder.logFile)

	return cmd
}

// load resolves every setting through the viper precedence chain.
func (c *serveCommander) load(v *viper.Viper) {
	c.listen = v.GetString("server.listen")
	c.requestTimeout = v.GetString("server.request_timeout")
	c.upstreamOpenAI = v.GetString("upstream.openai")
	c.upstreamAnthropic = v.GetString("upstream.anthropic")
	c.upstreamGemini = v.GetString("upstream.gemini")
	c.upstreamOllama = v.GetString("upstream.ollama")
	c.kafkaBrokers = v.GetString("telemetry.kafka_brokers")
	c.kafkaTopic = v.GetString("telemetry.kafka_topic")
	c.logFile = v.GetString("log.file")
}

// proxyConfig builds the server configuration from the resolved settings.
func (c *serveCommander) proxyConfig() (proxy.Config, error) {
	cfg := proxy.Config{
		ListenAddr: c.listen,
		Upstreams: config.UpstreamConfig{
			OpenAI:    c.upstreamOpenAI,
			Anthropic: c.upstreamAnthropic,
			Gemini:    c.upstreamGemini,
			Ollama:    c.upstreamOllama,
		}.Hosts(),
	}

	if c.requestTimeout != "" {
		d, err := time.ParseDuration(c.requestTimeout)
		if err != nil {
			return proxy.Config{}, fmt.Errorf("invalid request timeout %q: %w", c.requestTimeout, err)
		}
		cfg.RequestTimeout = d
	}

	return cfg, nil
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	brokers := config.SplitList(c.kafkaBrokers)
	if len(brokers) == 0 {
		return nil, nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.kafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing generation telemetry to kafka",
		zap.Strings("brokers", brokers),
		zap.String("topic", c.kafkaTopic),
	)
	return publisher, nil
}

func (c *serveCommander) run() error {
	if c.logFile != "" {
		c.logger = logger.NewLoggerWithFile(c.debug, c.logFile)
	} else {
		c.logger = logger.NewLogger(c.debug)
	}
	defer func() { _ = c.logger.Sync() }()

	cfg, err := c.proxyConfig()
	if err != nil {
		return err
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	if publisher != nil {
		cfg.Publisher = publisher
		defer publisher.Close()
	}

	p, err := proxy.New(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		_ = p.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return p.Close()
	}
}
