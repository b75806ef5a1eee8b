package resources

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CompileSchema compiles a JSON schema document (as raw bytes) for use as
// a Definition.Schema: optional, off by default, one schema per resource.
func CompileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("resources: adding schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("resources: compiling schema %s: %w", name, err)
	}
	return schema, nil
}

// validateParams round-trips params through JSON so the jsonschema
// validator sees the same numeric/string typing a real request body would
// produce, then validates against schema.
func validateParams(schema *jsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}
