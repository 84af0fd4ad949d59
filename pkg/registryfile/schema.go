package registryfile

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaDoc gates the one persisted document the Shell reads against a
// JSON Schema before unmarshalling, so a malformed CCP-written file fails
// with a precise path instead of a generic decode error.
const schemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "tomains": {"type": "object"},
    "bindings": {"type": "object"},
    "manifests": {"type": "object"},
    "public_keys": {"type": "object"},
    "vault": {"type": "object"},
    "rate_limits": {"type": "object"},
    "databases": {"type": "object"}
  },
  "additionalProperties": false
}`

const schemaURL = "https://axiom.run/schemas/session.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, strings.NewReader(schemaDoc)); err != nil {
			compileErr = fmt.Errorf("registryfile: add schema resource: %w", err)
			return
		}
		sch, err := c.Compile(schemaURL)
		if err != nil {
			compileErr = fmt.Errorf("registryfile: compile schema: %w", err)
			return
		}
		compiled = sch
	})
	return compiled, compileErr
}

// Validate checks raw JSON against the registry-file schema.
func Validate(v interface{}) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("registryfile: schema validation failed: %w", err)
	}
	return nil
}
