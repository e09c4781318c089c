// Package gemini implements the Gemini streamGenerateContent SSE dialect.
// Request contents and response chunks use the google.golang.org/genai types,
// which carry the same JSON field names as the REST surface.
package gemini

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/genai"

	"github.com/papercomputeco/streampump/pkg/demux"
	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/llm"
)

const defaultHost = "https://generativelanguage.googleapis.com"

// generateRequest is the REST body of models.streamGenerateContent.
type generateRequest struct {
	Contents          []*genai.Content  `json:"contents"`
	SystemInstruction *genai.Content    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// streamError is the error envelope Google APIs send in-band.
type streamError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Dialect implements the Gemini streaming format.
type Dialect struct{}

// New creates a new Gemini dialect.
func New() *Dialect {
	return &Dialect{}
}

// Name returns the dialect tag.
func (d *Dialect) Name() string {
	return "gemini"
}

// Vendor returns the display name.
func (d *Dialect) Vendor() string {
	return "Gemini"
}

// DefaultHost returns the public API base URL.
func (d *Dialect) DefaultHost() string {
	return defaultHost
}

// BuildRequest builds a POST models/{id}:streamGenerateContent?alt=sse call.
func (d *Dialect) BuildRequest(access llm.Access, model llm.Model, history []llm.Message) (*dispatch.Request, error) {
	if access.APIKey == "" {
		return nil, errors.New("missing API key")
	}

	system, turns := llm.SplitSystem(history)
	if len(turns) == 0 {
		return nil, errors.New("history has no user or assistant messages")
	}

	body := generateRequest{
		Contents: make([]*genai.Content, 0, len(turns)),
	}
	if system != "" {
		body.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if model.Temperature != nil || model.MaxTokens != nil {
		body.GenerationConfig = &generationConfig{
			Temperature:     model.Temperature,
			MaxOutputTokens: model.MaxTokens,
		}
	}

	for _, msg := range turns {
		role := string(genai.RoleUser)
		if msg.Role == llm.RoleAssistant {
			role = string(genai.RoleModel)
		}
		parts, err := convertParts(msg.Content)
		if err != nil {
			return nil, err
		}
		body.Contents = append(body.Contents, &genai.Content{Role: role, Parts: parts})
	}

	modelID := strings.TrimPrefix(model.ID, "models/")
	path := "/v1beta/models/" + url.PathEscape(modelID) + ":streamGenerateContent?alt=sse"

	headers := map[string]string{
		"x-goog-api-key": access.APIKey,
	}
	for k, v := range access.Headers {
		headers[k] = v
	}

	return dispatch.NewJSONRequest(dispatch.JoinURL(access.Host, path), body, headers)
}

func convertParts(blocks []llm.ContentBlock) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case "text":
			parts = append(parts, &genai.Part{Text: block.Text})
		case "image":
			switch {
			case block.ImageBase64 != "":
				data, err := base64.StdEncoding.DecodeString(block.ImageBase64)
				if err != nil {
					return nil, fmt.Errorf("decoding inline image: %w", err)
				}
				parts = append(parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: block.MediaType, Data: data},
				})
			case block.ImageURL != "":
				parts = append(parts, &genai.Part{
					FileData: &genai.FileData{MIMEType: block.MediaType, FileURI: block.ImageURL},
				})
			}
		}
	}
	return parts, nil
}

// NewDemuxer returns an SSE demuxer.
func (d *Dialect) NewDemuxer() dispatch.Demuxer {
	return demux.NewSSE()
}

// NewParser returns a parser for GenerateContentResponse chunks.
func (d *Dialect) NewParser() dispatch.ParseFunc {
	p := &parser{}
	return p.parse
}

type parser struct {
	sentModel bool
}

func (p *parser) parse(data, _ string) ([]dispatch.Particle, error) {
	var se streamError
	if err := json.Unmarshal([]byte(data), &se); err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}
	if se.Error != nil {
		issue := se.Error.Message
		if se.Error.Status != "" {
			issue = se.Error.Status + ": " + issue
		}
		return []dispatch.Particle{
			dispatch.IssueParticle(dispatch.SymbolWarning, issue),
			dispatch.CloseParticle(),
		}, nil
	}

	var resp genai.GenerateContentResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}

	var particles []dispatch.Particle
	if !p.sentModel && resp.ModelVersion != "" {
		p.sentModel = true
		particles = append(particles, dispatch.SetParticle(map[string]any{"model": resp.ModelVersion}))
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		issue := string(fb.BlockReason)
		if fb.BlockReasonMessage != "" {
			issue += ": " + fb.BlockReasonMessage
		}
		return append(particles,
			dispatch.IssueParticle(dispatch.SymbolBlocked, "blocked: "+issue),
			dispatch.CloseParticle(),
		), nil
	}

	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part == nil || part.Thought || part.Text == "" {
					continue
				}
				particles = append(particles, dispatch.TextParticle(part.Text))
			}
		}

		switch reason := cand.FinishReason; reason {
		case "":
		case genai.FinishReasonStop, genai.FinishReasonMaxTokens:
			particles = append(particles, dispatch.SetParticle(map[string]any{"stopReason": string(reason)}))
		default:
			particles = append(particles,
				dispatch.SetParticle(map[string]any{"stopReason": string(reason)}),
				dispatch.IssueParticle(dispatch.SymbolWarning, "stopped: "+string(reason)),
			)
		}
	}

	if um := resp.UsageMetadata; um != nil {
		particles = append(particles, dispatch.SetParticle(map[string]any{
			"usage": map[string]any{
				"inputTokens":  int(um.PromptTokenCount),
				"outputTokens": int(um.CandidatesTokenCount),
			},
		}))
	}

	return particles, nil
}
