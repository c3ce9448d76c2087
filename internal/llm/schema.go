package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
)

// SchemaValidator wraps a compiled JSON Schema. Compile once, validate
// per response.
type SchemaValidator struct {
	schema *jsonschema.Schema
	raw    map[string]any
}

// CompileSchema compiles a schema document for structured-output
// validation.
func CompileSchema(doc map[string]any) (*SchemaValidator, error) {
	// Round-trip through JSON so the compiler sees plain decoded values.
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(encoded, &schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema, raw: doc}, nil
}

// Raw returns the schema document for passing through to providers.
func (v *SchemaValidator) Raw() map[string]any { return v.raw }

// Validate parses text as JSON and validates it against the schema.
// Providers sometimes wrap JSON in markdown fences; those are stripped
// before parsing. Returns the parsed value on success.
func (v *SchemaValidator) Validate(text string) (any, error) {
	cleaned := stripFences(text)

	var value any
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return nil, apperr.SchemaViolation(
			fmt.Errorf("response is not valid JSON: %w", err), text)
	}
	if err := v.schema.Validate(value); err != nil {
		return nil, apperr.SchemaViolation(err, text)
	}
	return value, nil
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
