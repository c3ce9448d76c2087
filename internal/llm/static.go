package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dante4567/rag-provider-sub004/internal/config"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
)

// StaticProvider is the deterministic offline fallback at the end of the
// chain. Plain completions echo a canned acknowledgement; structured
// completions synthesize a minimal document that satisfies the schema's
// required fields, so the pipeline keeps moving with degraded metadata.
type StaticProvider struct {
	id    string
	model string
}

var _ Provider = (*StaticProvider)(nil)

func NewStaticProvider(cfg config.ProviderConfig) *StaticProvider {
	model := cfg.Model
	if model == "" {
		model = "static-v1"
	}
	return &StaticProvider{id: cfg.ID, model: model}
}

func (p *StaticProvider) Name() string { return p.id }

func (p *StaticProvider) Available(ctx context.Context) bool { return true }

func (p *StaticProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var text string
	if req.JSONSchema != nil {
		doc := synthesize(req.JSONSchema, req.Prompt)
		encoded, err := json.Marshal(doc)
		if err != nil {
			return nil, apperr.InternalError("failed to encode static response", err)
		}
		text = string(encoded)
	} else {
		text = "Offline mode: no language model is available to answer this request."
	}

	return &Response{
		Text:         text,
		Model:        p.model,
		InputTokens:  estimateTokens(req.Prompt),
		OutputTokens: estimateTokens(text),
		FinishReason: "stop",
	}, nil
}

// synthesize builds a value that satisfies the schema's required fields.
// Optional fields are omitted; the prompt's first line seeds string fields
// named like a title so downstream records stay recognizable.
func synthesize(schema map[string]any, prompt string) any {
	typ, _ := schema["type"].(string)
	switch typ {
	case "object":
		out := map[string]any{}
		props, _ := schema["properties"].(map[string]any)
		required, _ := schema["required"].([]any)
		for _, name := range required {
			key, ok := name.(string)
			if !ok {
				continue
			}
			propSchema, _ := props[key].(map[string]any)
			if propSchema == nil {
				propSchema = map[string]any{"type": "string"}
			}
			out[key] = synthesizeField(key, propSchema, prompt)
		}
		return out
	case "array":
		return []any{}
	case "number":
		return 0.0
	case "integer":
		return 0
	case "boolean":
		return false
	default:
		return ""
	}
}

func synthesizeField(name string, schema map[string]any, prompt string) any {
	typ, _ := schema["type"].(string)
	if typ == "string" {
		switch name {
		case "title":
			return fallbackTitle(prompt)
		case "summary", "abstract":
			return "Automatically generated placeholder summary; no model was available."
		}
		if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
			return enum[0]
		}
		if minLen, ok := schema["minLength"].(float64); ok && minLen > 0 {
			return strings.Repeat("n/a ", int(minLen)/4+1)[:int(minLen)]
		}
		return "unknown"
	}
	return synthesize(schema, prompt)
}

// fallbackTitle derives a stable title from the first content-bearing
// words of the prompt.
func fallbackTitle(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line == "" {
			continue
		}
		words := strings.Fields(line)
		if len(words) > 8 {
			words = words[:8]
		}
		title := strings.Join(words, " ")
		if len(title) > 200 {
			title = title[:200]
		}
		if len(title) >= 3 {
			return title
		}
	}
	return "Untitled document"
}
