package enrich

import "github.com/dante4567/rag-provider-sub004/internal/llm"

// metadataSchema is the structured-output contract for enrichment calls.
// Topics, projects, and places come back as plain strings; vocabulary
// validation happens after the call, never inside the model.
// List bounds are enforced after the call, not in the schema: a model
// that overshoots gets clamped instead of burning a retry.
func metadataSchema() map[string]any {
	stringList := func() map[string]any {
		return map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":      "string",
				"minLength": 3,
				"maxLength": 200,
			},
			"summary": map[string]any{
				"type":      "string",
				"maxLength": 500,
			},
			"topics":   stringList(),
			"projects": stringList(),
			"places":   stringList(),
			"entities": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"people": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name": map[string]any{"type": "string"},
								"role": map[string]any{"type": "string"},
							},
							"required":             []any{"name"},
							"additionalProperties": false,
						},
					},
					"organizations": stringList(),
					"places":        stringList(),
					"technologies":  stringList(),
					"dates": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"date":    map[string]any{"type": "string"},
								"context": map[string]any{"type": "string"},
							},
							"required":             []any{"date"},
							"additionalProperties": false,
						},
					},
					"numbers": stringList(),
				},
				"additionalProperties": false,
			},
			"reflection": map[string]any{
				"type":      "string",
				"maxLength": 500,
			},
		},
		"required":             []any{"title", "summary", "topics", "projects", "places"},
		"additionalProperties": false,
	}
}

// Schema compiles the enrichment output schema for gateway calls.
func Schema() (*llm.SchemaValidator, error) {
	return llm.CompileSchema(metadataSchema())
}
