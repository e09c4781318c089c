// Package openai implements the OpenAI chat completions streaming dialect.
// Requests are built from the openai-go parameter types and stream chunks
// are decoded into openai-go's ChatCompletionChunk.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/papercomputeco/streampump/pkg/demux"
	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/llm"
)

const defaultHost = "https://api.openai.com"

// Dialect implements the OpenAI chat completions streaming format.
type Dialect struct{}

// New creates a new OpenAI dialect.
func New() *Dialect {
	return &Dialect{}
}

// Name returns the dialect tag.
func (d *Dialect) Name() string {
	return "openai"
}

// Vendor returns the display name.
func (d *Dialect) Vendor() string {
	return "OpenAI"
}

// DefaultHost returns the public API base URL.
func (d *Dialect) DefaultHost() string {
	return defaultHost
}

// BuildRequest builds a streaming POST /v1/chat/completions call.
func (d *Dialect) BuildRequest(access llm.Access, model llm.Model, history []llm.Message) (*dispatch.Request, error) {
	if access.APIKey == "" {
		return nil, errors.New("missing API key")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		param, err := toChatMessageParam(msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, param)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model.ID),
		Messages: messages,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if model.Temperature != nil {
		params.Temperature = openai.Float(*model.Temperature)
	}
	if model.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*model.MaxTokens))
	}
	params.SetExtraFields(map[string]any{"stream": true})

	headers := map[string]string{
		"Authorization": "Bearer " + access.APIKey,
	}
	if access.Organization != "" {
		headers["OpenAI-Organization"] = access.Organization
	}
	for k, v := range access.Headers {
		headers[k] = v
	}

	return dispatch.NewJSONRequest(dispatch.JoinURL(access.Host, "/v1/chat/completions"), params, headers)
}

func toChatMessageParam(msg llm.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.GetText()), nil
	case llm.RoleAssistant:
		return openai.AssistantMessage(msg.GetText()), nil
	case llm.RoleUser:
		if !hasImages(msg) {
			return openai.UserMessage(msg.GetText()), nil
		}
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				parts = append(parts, openai.TextContentPart(block.Text))
			case "image":
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: imageURL(block),
				}))
			}
		}
		return openai.UserMessage(parts), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role: %q", msg.Role)
	}
}

func hasImages(msg llm.Message) bool {
	for _, block := range msg.Content {
		if block.Type == "image" {
			return true
		}
	}
	return false
}

func imageURL(block llm.ContentBlock) string {
	if block.ImageBase64 != "" {
		return fmt.Sprintf("data:%s;base64,%s", block.MediaType, block.ImageBase64)
	}
	return block.ImageURL
}

// NewDemuxer returns an SSE demuxer.
func (d *Dialect) NewDemuxer() dispatch.Demuxer {
	return demux.NewSSE()
}

// NewParser returns a parser for the chat completion chunk stream. The
// parser is stateful: the model name is reported once per stream.
func (d *Dialect) NewParser() dispatch.ParseFunc {
	p := &parser{}
	return p.parse
}

type parser struct {
	sentModel bool
}

// streamError is the shape of errors sent in-band by OpenAI compatible
// servers after the stream has started.
type streamError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (p *parser) parse(data, _ string) ([]dispatch.Particle, error) {
	var se streamError
	if err := json.Unmarshal([]byte(data), &se); err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}
	if se.Error != nil {
		issue := se.Error.Message
		if se.Error.Type != "" {
			issue = se.Error.Type + ": " + issue
		}
		return []dispatch.Particle{
			dispatch.IssueParticle(dispatch.SymbolWarning, issue),
			dispatch.CloseParticle(),
		}, nil
	}

	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}

	var particles []dispatch.Particle
	if !p.sentModel && chunk.Model != "" {
		p.sentModel = true
		particles = append(particles, dispatch.SetParticle(map[string]any{"model": chunk.Model}))
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			particles = append(particles, dispatch.TextParticle(choice.Delta.Content))
		}
		if choice.Delta.Refusal != "" {
			particles = append(particles, dispatch.IssueParticle(dispatch.SymbolBlocked, choice.Delta.Refusal))
		}
		if reason := string(choice.FinishReason); reason != "" {
			particles = append(particles, dispatch.SetParticle(map[string]any{"stopReason": reason}))
		}
	}

	if chunk.Usage.TotalTokens > 0 {
		particles = append(particles, dispatch.SetParticle(map[string]any{
			"usage": map[string]any{
				"inputTokens":  chunk.Usage.PromptTokens,
				"outputTokens": chunk.Usage.CompletionTokens,
			},
		}))
	}

	return particles, nil
}
