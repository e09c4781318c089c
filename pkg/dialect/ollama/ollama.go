// Package ollama implements the Ollama /api/chat streaming dialect. Replies
// arrive as newline delimited JSON, one chatChunk per line.
package ollama

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/streampump/pkg/demux"
	"github.com/papercomputeco/streampump/pkg/dispatch"
	"github.com/papercomputeco/streampump/pkg/llm"
)

const defaultHost = "http://localhost:11434"

// Dialect implements the Ollama NDJSON chat stream.
type Dialect struct{}

// New creates a new Ollama dialect.
func New() *Dialect {
	return &Dialect{}
}

// Name returns the dialect tag.
func (d *Dialect) Name() string {
	return "ollama"
}

// Vendor returns the display name.
func (d *Dialect) Vendor() string {
	return "Ollama"
}

// DefaultHost returns the address of a local Ollama server.
func (d *Dialect) DefaultHost() string {
	return defaultHost
}

// BuildRequest builds a streaming POST /api/chat call. Local Ollama servers
// need no credentials; an API key, when given, is sent as a bearer token for
// hosted deployments.
func (d *Dialect) BuildRequest(access llm.Access, model llm.Model, history []llm.Message) (*dispatch.Request, error) {
	body := chatRequest{
		Model:    model.ID,
		Stream:   true,
		Messages: make([]chatMessage, 0, len(history)),
	}
	if model.Temperature != nil || model.MaxTokens != nil {
		body.Options = &modelOptions{
			Temperature: model.Temperature,
			NumPredict:  model.MaxTokens,
		}
	}

	for _, msg := range history {
		converted := chatMessage{
			Role:    msg.Role,
			Content: msg.GetText(),
		}
		for _, block := range msg.Content {
			if block.Type != "image" {
				continue
			}
			if block.ImageBase64 == "" {
				return nil, fmt.Errorf("ollama accepts inline images only, got %q", block.ImageURL)
			}
			converted.Images = append(converted.Images, block.ImageBase64)
		}
		body.Messages = append(body.Messages, converted)
	}

	headers := map[string]string{}
	if access.APIKey != "" {
		headers["Authorization"] = "Bearer " + access.APIKey
	}
	for k, v := range access.Headers {
		headers[k] = v
	}

	return dispatch.NewJSONRequest(dispatch.JoinURL(access.Host, "/api/chat"), body, headers)
}

// NewDemuxer returns an NDJSON demuxer.
func (d *Dialect) NewDemuxer() dispatch.Demuxer {
	return demux.NewNDJSON()
}

// NewParser returns a parser for chat chunks. The model name is reported
// once per stream; the chunk marked done carries usage and closes it.
func (d *Dialect) NewParser() dispatch.ParseFunc {
	sentModel := false
	return func(data, _ string) ([]dispatch.Particle, error) {
		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("decoding chunk: %w", err)
		}

		if chunk.Error != "" {
			return []dispatch.Particle{
				dispatch.IssueParticle(dispatch.SymbolWarning, chunk.Error),
				dispatch.CloseParticle(),
			}, nil
		}

		var particles []dispatch.Particle
		if !sentModel && chunk.Model != "" {
			sentModel = true
			particles = append(particles, dispatch.SetParticle(map[string]any{"model": chunk.Model}))
		}
		if chunk.Message.Content != "" {
			particles = append(particles, dispatch.TextParticle(chunk.Message.Content))
		}

		if chunk.Done {
			set := map[string]any{
				"usage": map[string]any{
					"inputTokens":  chunk.PromptEvalCount,
					"outputTokens": chunk.EvalCount,
				},
			}
			if chunk.DoneReason != "" {
				set["stopReason"] = chunk.DoneReason
			}
			particles = append(particles, dispatch.SetParticle(set), dispatch.CloseParticle())
		}

		return particles, nil
	}
}
