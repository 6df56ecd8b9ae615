package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// fillSchema describes the POST /fills body.
func fillSchema() map[string]interface{} {
	positive := map[string]interface{}{"type": "number", "exclusiveMinimum": 0}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"side":  map[string]interface{}{"type": "string", "enum": []string{"B", "A"}},
			"price": positive,
			"size":  positive,
		},
		"required":             []string{"side", "price", "size"},
		"additionalProperties": false,
	}
}

// schemaValidator wraps a compiled JSON schema.
type schemaValidator struct {
	schema *jsonschema.Schema
}

func newSchemaValidator(schemaMap map[string]interface{}) (*schemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	schemaJSON, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &schemaValidator{schema: schema}, nil
}

// validate checks a decoded JSON document. The error names the offending
// field when the schema library reports one.
func (v *schemaValidator) validate(doc interface{}) error {
	err := v.schema.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("validation failed: %w", err)
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := ve.InstanceLocation
	if field == "" {
		field = "/"
	}
	return fmt.Errorf("field '%s': %s", field, ve.Message)
}
