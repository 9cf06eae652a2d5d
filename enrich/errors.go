package enrich

import (
	"fmt"
)

// SchemaError reports a field the billing API was expected to return but did not.
// The record it belongs to is dropped; no value is made up in its place.
type SchemaError struct {
	Field string
	// Context names the payload the field was read from, e.g. "deployment 3f1c... itemized".
	Context string
	Record  map[string]any
}

func (e *SchemaError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("schema: missing or malformed field %q", e.Field)
	}
	return fmt.Sprintf("schema: missing or malformed field %q in %s", e.Field, e.Context)
}

func schemaErr(field, context string, record map[string]any) *SchemaError {
	return &SchemaError{Field: field, Context: context, Record: record}
}
