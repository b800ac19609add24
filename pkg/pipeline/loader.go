package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// Format of a transformation document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var jsonStd = jsoniter.ConfigCompatibleWithStandardLibrary

// requiredKeys must be present in every document, even if empty.
var requiredKeys = []string{"groupby", "aggregations", "date_columns"}

// LoadFromFile reads and validates a transformation document. The format is
// chosen from the extension: .json is JSON, anything else is YAML.
func LoadFromFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("empty transformation file")
	}

	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}

	spec, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return spec, nil
}

// Parse decodes and validates an in-memory document.
func Parse(data []byte, format Format) (*Spec, error) {
	var raw map[string]any
	var spec Spec

	switch format {
	case FormatJSON:
		if err := jsonStd.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if err := jsonStd.Unmarshal(data, &spec); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown document format %q", format)
	}

	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, &SchemaError{Field: key, Reason: "required key is missing"}
		}
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Marshal serializes the spec back to YAML, e.g. to record it next to a run.
func (s *Spec) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
