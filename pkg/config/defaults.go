package config

const (
	defaultServerListen   = ":8080"
	defaultRequestTimeout = "30s"

	defaultKafkaTopic = "streampump.generations"

	defaultClientServerTarget = "http://localhost:8080"
	defaultClientDialect      = "ollama"
	defaultClientModel        = "llama3.2"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen:         defaultServerListen,
			RequestTimeout: defaultRequestTimeout,
		},
		Telemetry: TelemetryConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Client: ClientConfig{
			ServerTarget: defaultClientServerTarget,
			Dialect:      defaultClientDialect,
			Model:        defaultClientModel,
		},
	}
}
