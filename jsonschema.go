package facet

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ValuesDocumentSchema builds the JSON Schema of a by-name values document for
// the given effective fields. A null value clears the field.
func ValuesDocumentSchema(fields []Field) map[string]any {
	properties := make(map[string]any, len(fields))
	for _, f := range fields {
		properties[f.Name] = propertySchema(f)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
}

func propertySchema(f Field) map[string]any {
	switch f.Type {
	case FieldTypeRating:
		prop := map[string]any{"type": []string{"integer", "null"}, "minimum": 1}
		if f.Config.Rating != nil {
			prop["maximum"] = f.Config.Rating.Max
		}
		return prop
	case FieldTypeNumber:
		return map[string]any{"type": []string{"number", "null"}}
	case FieldTypeSelect:
		enum := []any{nil}
		if f.Config.Select != nil {
			for _, opt := range f.Config.Select.Options {
				enum = append(enum, opt)
			}
		}
		return map[string]any{"enum": enum}
	case FieldTypeBoolean:
		return map[string]any{"type": []string{"boolean", "null"}}
	default:
		return map[string]any{"type": []string{"string", "null"}}
	}
}

// CanonicalizeValuesDocument rekeys doc by the exact field names, matching keys
// case-insensitively. Unknown names fail with UNKNOWN_FIELD.
func CanonicalizeValuesDocument(fields []Field, doc map[string]any) (map[string]any, error) {
	byName := make(map[string]string, len(fields))
	for _, f := range fields {
		byName[NormalizeName(f.Name)] = f.Name
	}

	out := make(map[string]any, len(doc))
	for key, value := range doc {
		name, ok := byName[NormalizeName(key)]
		if !ok {
			return nil, NewUnknownFieldNameError(key)
		}
		out[name] = value
	}
	return out, nil
}

// ValidateValuesDocument checks a canonical values document against the schema
// generated from fields.
func ValidateValuesDocument(fields []Field, doc map[string]any) error {
	var schema jsonschema.Schema
	schemaBytes, err := json.Marshal(ValuesDocumentSchema(fields))
	if err != nil {
		return fmt.Errorf("failed to marshal schema for validation: %w", err)
	}
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
	}

	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("failed to resolve JSON schema: %w", err)
	}

	// Round-trip so Go numeric kinds validate the same way decoded JSON does.
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return NewTypeMismatchError("", "values document is not valid JSON").WithCause(err)
	}
	var instance any
	if err := json.Unmarshal(docBytes, &instance); err != nil {
		return NewTypeMismatchError("", "values document is not valid JSON").WithCause(err)
	}

	if err := resolved.Validate(instance); err != nil {
		return NewTypeMismatchError("", fmt.Sprintf("values document rejected: %v", err)).WithCause(err)
	}
	return nil
}
