package llm

// GenerateRequest is the normalized "generate content" request accepted by
// the pump. It is dialect-agnostic: the Access.Dialect tag selects which
// vendor wire format the request is translated into.
type GenerateRequest struct {
	// Access carries the vendor credentials and endpoint selection.
	Access Access `json:"access"`

	// Model selects the vendor model and its sampling parameters.
	Model Model `json:"model"`

	// History is the ordered conversation to continue.
	History []Message `json:"history"`
}

// Access holds the per-request upstream access configuration.
type Access struct {
	// Dialect is the vendor wire format tag (e.g., "openai", "anthropic", "gemini", "ollama").
	Dialect string `json:"dialect"`

	// APIKey is the vendor credential. Not required for local dialects.
	APIKey string `json:"apiKey,omitempty"`

	// Host overrides the dialect's default upstream base URL.
	Host string `json:"host,omitempty"`

	// Organization is forwarded where the vendor supports it (OpenAI).
	Organization string `json:"organization,omitempty"`

	// User is an opaque end-user identifier forwarded to vendors that
	// accept one for abuse monitoring (Anthropic).
	User string `json:"user,omitempty"`

	// Headers are additional upstream request headers.
	Headers map[string]string `json:"headers,omitempty"`
}

// Model identifies the upstream model and generation parameters.
type Model struct {
	ID          string   `json:"id"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
}

// ErrorResponse is the JSON body returned for requests rejected before
// streaming begins.
type ErrorResponse struct {
	Error string `json:"error"`
}
