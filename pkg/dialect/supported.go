package dialect

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/papercomputeco/streampump/pkg/dialect/anthropic"
	"github.com/papercomputeco/streampump/pkg/dialect/gemini"
	"github.com/papercomputeco/streampump/pkg/dialect/ollama"
	"github.com/papercomputeco/streampump/pkg/dialect/openai"
	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/llm"
)

// Supported dialect tags.
const (
	Anthropic = "anthropic"
	Gemini    = "gemini"
	Ollama    = "ollama"
	OpenAI    = "openai"
)

var (
	// ErrMissingModel is returned when the request does not name a model.
	ErrMissingModel = errors.New("model id is required")

	// ErrEmptyHistory is returned when there is nothing to continue.
	ErrEmptyHistory = errors.New("history must contain at least one message")
)

// SupportedDialects returns the list of all supported dialect tags.
func SupportedDialects() []string {
	return []string{Anthropic, Gemini, Ollama, OpenAI}
}

// New creates a new Dialect for the given tag.
// Returns an error if the tag is not recognized.
func New(tag string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case Anthropic:
		return anthropic.New(), nil
	case Gemini:
		return gemini.New(), nil
	case Ollama:
		return ollama.New(), nil
	case OpenAI:
		return openai.New(), nil
	default:
		return nil, fmt.Errorf("unknown dialect: %q (supported: %v)", tag, SupportedDialects())
	}
}

// Registry resolves dialects by tag and prepares dispatches. It is read-only
// after construction and safe for concurrent use.
type Registry struct {
	dialects map[string]Dialect
	hosts    map[string]string
}

// Option configures a Registry.
type Option func(*Registry)

// WithHost overrides the default upstream base URL of a dialect. Requests
// that carry their own Access.Host still take precedence.
func WithHost(tag, host string) Option {
	return func(r *Registry) {
		if host = strings.TrimSpace(host); host != "" {
			r.hosts[tag] = host
		}
	}
}

// NewRegistry creates a registry holding every supported dialect.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		dialects: make(map[string]Dialect),
		hosts:    make(map[string]string),
	}
	for _, tag := range SupportedDialects() {
		d, _ := New(tag)
		r.dialects[tag] = d
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the dialect for tag.
func (r *Registry) Get(tag string) (Dialect, error) {
	d, ok := r.dialects[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return nil, fmt.Errorf("unknown dialect: %q (supported: %v)", tag, r.Tags())
	}
	return d, nil
}

// Tags returns the sorted tags held by the registry.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.dialects))
	for tag := range r.dialects {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Vendor returns the display name for tag, or the tag itself when unknown.
func (r *Registry) Vendor(tag string) string {
	if d, err := r.Get(tag); err == nil {
		return d.Vendor()
	}
	if tag == "" {
		return "Upstream"
	}
	return tag
}

// Prepare builds the dispatch for one request. It validates the
// dialect-independent parts of the request and returns a descriptive error,
// never a partially built dispatch, on invalid configuration.
func (r *Registry) Prepare(access llm.Access, model llm.Model, history []llm.Message) (*dispatch.Dispatch, error) {
	d, err := r.Get(access.Dialect)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(model.ID) == "" {
		return nil, ErrMissingModel
	}
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	if access.Host == "" {
		access.Host = r.hosts[d.Name()]
	}
	if access.Host == "" {
		access.Host = d.DefaultHost()
	}

	req, err := d.BuildRequest(access, model, history)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Vendor(), err)
	}

	return &dispatch.Dispatch{
		Dialect: d.Name(),
		Vendor:  d.Vendor(),
		Request: *req,
		Demuxer: d.NewDemuxer(),
		Parse:   d.NewParser(),
	}, nil
}
