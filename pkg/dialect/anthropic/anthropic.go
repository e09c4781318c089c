// Package anthropic implements the Anthropic Messages API streaming dialect.
package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/papercomputeco/streampump/pkg/demux"
	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/llm"
)

const (
	defaultHost      = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Dialect implements the Anthropic Messages streaming format.
type Dialect struct{}

// New creates a new Anthropic dialect.
func New() *Dialect {
	return &Dialect{}
}

// Name returns the dialect tag.
func (d *Dialect) Name() string {
	return "anthropic"
}

// Vendor returns the display name.
func (d *Dialect) Vendor() string {
	return "Anthropic"
}

// DefaultHost returns the public API base URL.
func (d *Dialect) DefaultHost() string {
	return defaultHost
}

// BuildRequest builds a streaming POST /v1/messages call.
func (d *Dialect) BuildRequest(access llm.Access, model llm.Model, history []llm.Message) (*dispatch.Request, error) {
	if access.APIKey == "" {
		return nil, errors.New("missing API key")
	}

	system, turns := llm.SplitSystem(history)
	if len(turns) == 0 {
		return nil, errors.New("history has no user or assistant messages")
	}

	body := messagesRequest{
		Model:       model.ID,
		System:      system,
		MaxTokens:   defaultMaxTokens,
		Temperature: model.Temperature,
		Stream:      true,
		Messages:    make([]messageParam, 0, len(turns)),
	}
	if model.MaxTokens != nil {
		body.MaxTokens = *model.MaxTokens
	}
	if access.User != "" {
		body.Metadata = &requestMetadata{UserID: access.User}
	}

	for _, msg := range turns {
		role := msg.Role
		if role != llm.RoleAssistant {
			role = llm.RoleUser
		}
		body.Messages = append(body.Messages, messageParam{
			Role:    role,
			Content: convertContent(msg.Content),
		})
	}

	headers := map[string]string{
		"x-api-key":         access.APIKey,
		"anthropic-version": apiVersion,
	}
	for k, v := range access.Headers {
		headers[k] = v
	}

	return dispatch.NewJSONRequest(dispatch.JoinURL(access.Host, "/v1/messages"), body, headers)
}

func convertContent(blocks []llm.ContentBlock) []contentBlock {
	out := make([]contentBlock, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case "text":
			out = append(out, contentBlock{Type: "text", Text: block.Text})
		case "image":
			switch {
			case block.ImageBase64 != "":
				out = append(out, contentBlock{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: block.MediaType,
						Data:      block.ImageBase64,
					},
				})
			case block.ImageURL != "":
				out = append(out, contentBlock{
					Type:   "image",
					Source: &imageSource{Type: "url", URL: block.ImageURL},
				})
			}
		}
	}
	return out
}

// NewDemuxer returns an SSE demuxer.
func (d *Dialect) NewDemuxer() dispatch.Demuxer {
	return demux.NewSSE()
}

// NewParser returns a parser for the Messages event stream.
func (d *Dialect) NewParser() dispatch.ParseFunc {
	return parse
}

func parse(data, name string) ([]dispatch.Particle, error) {
	var ev streamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", name, err)
	}
	if name == "" {
		name = ev.Type
	}

	switch name {
	case "message_start":
		if ev.Message == nil {
			return nil, errors.New("message_start without message")
		}
		set := map[string]any{"model": ev.Message.Model}
		if ev.Message.Usage != nil {
			set["usage"] = map[string]any{"inputTokens": ev.Message.Usage.InputTokens}
		}
		return []dispatch.Particle{dispatch.SetParticle(set)}, nil

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "text" && ev.ContentBlock.Text != "" {
			return []dispatch.Particle{dispatch.TextParticle(ev.ContentBlock.Text)}, nil
		}
		return nil, nil

	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			return []dispatch.Particle{dispatch.TextParticle(ev.Delta.Text)}, nil
		}
		// thinking, signature and tool input deltas are not surfaced
		return nil, nil

	case "message_delta":
		set := map[string]any{}
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			set["stopReason"] = ev.Delta.StopReason
		}
		if ev.Usage != nil {
			set["usage"] = map[string]any{"outputTokens": ev.Usage.OutputTokens}
		}
		if len(set) == 0 {
			return nil, nil
		}
		return []dispatch.Particle{dispatch.SetParticle(set)}, nil

	case "message_stop":
		return []dispatch.Particle{dispatch.CloseParticle()}, nil

	case "content_block_stop", "ping":
		return nil, nil

	case "error":
		issue := "unknown error"
		if ev.Error != nil {
			issue = ev.Error.Message
			if ev.Error.Type != "" {
				issue = ev.Error.Type + ": " + issue
			}
		}
		return []dispatch.Particle{
			dispatch.IssueParticle(dispatch.SymbolWarning, issue),
			dispatch.CloseParticle(),
		}, nil

	default:
		// new event types may appear at any time
		return nil, nil
	}
}
