package config

import (
	"github.com/invopop/jsonschema"
	"github.com/shuntksh/openturbo/internal/workflow"
)

// Schema reflects workflow.Config into a JSON Schema document, mirroring
// the teacher's standalone schema-generation binary but wired directly into
// the `schema` subcommand instead of a separate tool.
func Schema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	schema := r.Reflect(&workflow.Config{})
	return schema.MarshalJSON()
}
