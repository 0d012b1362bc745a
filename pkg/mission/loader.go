package mission

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a mission document from a YAML file.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mission: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a mission document from a reader.
func Load(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // strict: reject unknown fields
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &doc, nil
}

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// mission Go types.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Document{})
	s.ID = "https://github.com/ormasoftchile/cgt/schemas/mission-v0.json"
	s.Title = "Contract-based Goal Tree mission cgt/v0"
	s.Description = "Schema for cgt/v0 mission YAML documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal mission schema: %w", err)
	}
	return data, nil
}
