package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// MatchesSchema is the shape contract expressed as an OpenAPI response
// schema. A nil schema makes the rule fail, so a contract document that
// lost an endpoint cannot silently pass.
func MatchesSchema(name string, schema *openapi3.Schema) Rule {
	return Rule{
		Description: "body matches the " + name + " response schema",
		Check: func(in Input) error {
			if schema == nil {
				return fmt.Errorf("no response schema for %s in the contract document", name)
			}
			value, err := in.Envelope.Value()
			if err != nil {
				return err
			}
			if err := schema.VisitJSON(value, openapi3.MultiErrors()); err != nil {
				return errors.New(truncate(flatten(err), 500))
			}
			return nil
		},
	}
}

func flatten(err error) string {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		parts := make([]string, 0, len(multi))
		for _, e := range multi {
			parts = append(parts, flatten(e))
		}
		return strings.Join(parts, "; ")
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		path := strings.Join(schemaErr.JSONPointer(), ".")
		if path == "" {
			return schemaErr.Reason
		}
		return path + ": " + schemaErr.Reason
	}
	return err.Error()
}
