package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the persistent streampump configuration stored as
// config.toml in the .streampump/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Server    ServerConfig    `toml:"server"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
	Client    ClientConfig    `toml:"client"`
}

// ServerConfig holds settings for "streampump serve".
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`

	// RequestTimeout bounds how long the server waits to read a request.
	// It never cuts an in-flight stream. Go duration syntax, e.g. "30s".
	RequestTimeout string `toml:"request_timeout,omitempty"`
}

// UpstreamConfig overrides the default host of each dialect.
// Empty values fall back to the vendor's public endpoint.
type UpstreamConfig struct {
	OpenAI    string `toml:"openai,omitempty"`
	Anthropic string `toml:"anthropic,omitempty"`
	Gemini    string `toml:"gemini,omitempty"`
	Ollama    string `toml:"ollama,omitempty"`
}

// Hosts returns the configured overrides keyed by dialect tag.
func (u UpstreamConfig) Hosts() map[string]string {
	hosts := map[string]string{}
	for tag, host := range map[string]string{
		"openai":    u.OpenAI,
		"anthropic": u.Anthropic,
		"gemini":    u.Gemini,
		"ollama":    u.Ollama,
	} {
		if host != "" {
			hosts[tag] = host
		}
	}
	return hosts
}

// TelemetryConfig holds generation telemetry publishing settings.
// No brokers means telemetry is discarded.
type TelemetryConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	File string `toml:"file,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// streampump server (e.g. streampump chat).
type ClientConfig struct {
	ServerTarget string `toml:"server_target,omitempty"`
	Dialect      string `toml:"dialect,omitempty"`
	Model        string `toml:"model,omitempty"`
}

// SplitList splits a comma separated value such as a broker list,
// dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen": stringKey(func(c *Config) *string { return &c.Server.Listen }),
	"server.request_timeout": {
		get: func(c *Config) string { return c.Server.RequestTimeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for server.request_timeout: %w", err)
			}
			c.Server.RequestTimeout = v
			return nil
		},
	},
	"upstream.openai":         stringKey(func(c *Config) *string { return &c.Upstream.OpenAI }),
	"upstream.anthropic":      stringKey(func(c *Config) *string { return &c.Upstream.Anthropic }),
	"upstream.gemini":         stringKey(func(c *Config) *string { return &c.Upstream.Gemini }),
	"upstream.ollama":         stringKey(func(c *Config) *string { return &c.Upstream.Ollama }),
	"telemetry.kafka_brokers": stringKey(func(c *Config) *string { return &c.Telemetry.KafkaBrokers }),
	"telemetry.kafka_topic":   stringKey(func(c *Config) *string { return &c.Telemetry.KafkaTopic }),
	"log.file":                stringKey(func(c *Config) *string { return &c.Log.File }),
	"client.server_target":    stringKey(func(c *Config) *string { return &c.Client.ServerTarget }),
	"client.dialect":          stringKey(func(c *Config) *string { return &c.Client.Dialect }),
	"client.model":            stringKey(func(c *Config) *string { return &c.Client.Model }),
}
