package credentials

// Credentials represents the stored API credentials in credentials.toml.
type Credentials struct {
	Version  int                          `toml:"version"`
	Dialects map[string]DialectCredential `toml:"dialects"`
}

// DialectCredential holds the API key for a single dialect.
type DialectCredential struct {
	APIKey string `toml:"api_key"`
}
