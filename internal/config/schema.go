package config

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	mserrors "github.com/oblique/memsec/internal/errors"
)

//go:embed schema.json
var schemaJSON []byte

// validateSchema rejects unknown keys and mistyped values, which plain
// unmarshalling into Definition would silently ignore.
func validateSchema(data []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return yamlError(err)
	}
	if doc == nil {
		return nil
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal data for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		desc := result.Errors()[0]
		return mserrors.ConfigError{
			Field:      desc.Field(),
			Message:    desc.Description(),
			Suggestion: "Valid sections are version, metrics, soak and bench",
		}
	}

	return nil
}
