package lagosai

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
)

//go:generate go run ./schemas -pkg ./export -type Library -out schemas/cached_schemas

//go:embed schemas/cached_schemas/*.json
var schemaFiles embed.FS

// Schema returns a generated JSON Schema by name, e.g. "library".
func Schema(name string) (json.RawMessage, error) {
	schemaPath := path.Join("schemas", "cached_schemas", name+".json")
	schemaBytes, err := schemaFiles.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded schema file '%s': %w", schemaPath, err)
	}
	if !json.Valid(schemaBytes) {
		return nil, fmt.Errorf("embedded schema file '%s' is not valid JSON", schemaPath)
	}
	return json.RawMessage(schemaBytes), nil
}

func Library_Schema() (json.RawMessage, error) { return Schema("library") }
