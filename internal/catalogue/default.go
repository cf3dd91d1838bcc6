package catalogue

import (
	_ "embed"

	"harmonycore/internal/entitymodel"
)

//go:embed default.yaml
var defaultDocument []byte

// DefaultDocument returns the bundled catalogue source.
func DefaultDocument() []byte {
	return append([]byte(nil), defaultDocument...)
}

// LoadDefault compiles the bundled catalogue against schema.
func LoadDefault(schema *entitymodel.Schema, transforms TransformSet) (*RuleSet, error) {
	return Parse(defaultDocument, FormatYAML, schema, transforms)
}
