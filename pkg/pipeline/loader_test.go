package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadFromFile(t *testing.T) {
	specPath := writeTestSpec(t, "transform.yaml", getTestSpecContent())
	spec := loadAndValidateSpec(t, specPath)

	verifyFilters(t, spec)
	verifyAggregations(t, spec)
	verifyFeatures(t, spec)
}

// writeTestSpec writes a transformation document and returns its path
func writeTestSpec(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test spec: %v", err)
	}
	return path
}

// getTestSpecContent returns the YAML content for the test spec
func getTestSpecContent() string {
	return `
filters:
  - column: country
    value: BR
exclude_suffixes:
  - _raw

groupby:
  - store_id
  - created_at
date_columns:
  - created_at

aggregations:
  - column: amount
    name: total
    aggfunc: sum
  - column: status
    name: has_refund
    aggfunc: any_refund

custom_functions:
  - name: any_refund
    condition: REFUND
    true_value: 1
    false_value: 0

custom_features:
  - name: ticket
    operation: divide
    columns: [total, orders]
    fillna: 0
  - name: total_diff
    operation: diff
    column: total
    fillna: 0
  - name: total_avg
    operation: rolling_mean
    column: total
    window: 3

date_features:
  - name: dow
    operation: dayofweek
    column: created_at
`
}

func loadAndValidateSpec(t *testing.T, path string) *Spec {
	t.Helper()
	spec, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load spec: %v", err)
	}
	return spec
}

func verifyFilters(t *testing.T, spec *Spec) {
	if len(spec.Filters) != 1 || spec.Filters[0].Column != "country" || spec.Filters[0].Value != "BR" {
		t.Errorf("Unexpected filters %+v", spec.Filters)
	}
	if !reflect.DeepEqual(spec.ExcludeSuffixes, []string{"_raw"}) {
		t.Errorf("Expected exclude suffixes [_raw], got %v", spec.ExcludeSuffixes)
	}
}

func verifyAggregations(t *testing.T, spec *Spec) {
	if !reflect.DeepEqual(spec.GroupBy, []string{"store_id", "created_at"}) {
		t.Errorf("Unexpected groupby %v", spec.GroupBy)
	}
	if spec.DateColumn() != "created_at" {
		t.Errorf("Expected date column 'created_at', got '%s'", spec.DateColumn())
	}

	r, err := spec.Reducer(spec.Aggregations[1])
	if err != nil {
		t.Fatalf("Failed to resolve reducer: %v", err)
	}
	if r.Custom == nil || r.Custom.TrueValue != 1 || r.Custom.FalseValue != 0 {
		t.Errorf("Expected custom reducer any_refund, got %+v", r)
	}
}

func verifyFeatures(t *testing.T, spec *Spec) {
	if len(spec.CustomFeatures) != 3 {
		t.Fatalf("Expected 3 custom features, got %d", len(spec.CustomFeatures))
	}
	if spec.CustomFeatures[2].Window != 3 {
		t.Errorf("Expected window 3, got %d", spec.CustomFeatures[2].Window)
	}
	if spec.CustomFeatures[0].FillNA != 0 {
		t.Errorf("Expected fillna 0, got %v", spec.CustomFeatures[0].FillNA)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := writeTestSpec(t, "transform.json", `{
  "groupby": ["store_id"],
  "date_columns": [],
  "aggregations": [{"column": "amount", "name": "total", "aggfunc": "sum"}],
  "custom_features": [{"name": "half", "operation": "divide", "columns": ["total", "two"]}]
}`)

	spec := loadAndValidateSpec(t, path)
	if spec.DateColumn() != "" {
		t.Errorf("Expected no date column, got '%s'", spec.DateColumn())
	}
	if spec.CustomFeatures[0].FillNA != nil {
		t.Errorf("Expected fillna to be absent, got %v", spec.CustomFeatures[0].FillNA)
	}
}

func TestLoadFromFileEmpty(t *testing.T) {
	path := writeTestSpec(t, "empty.yaml", "")
	if _, err := LoadFromFile(path); err == nil {
		t.Errorf("Expected error for empty file")
	}
}

func TestParseMissingRequiredKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "missing groupby",
			content: "date_columns: []\naggregations: []\n",
			field:   "groupby",
		},
		{
			name:    "missing aggregations",
			content: "groupby: []\ndate_columns: []\n",
			field:   "aggregations",
		},
		{
			name:    "missing date_columns",
			content: "groupby: []\naggregations: []\n",
			field:   "date_columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), FormatYAML)
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("Expected SchemaError, got %v", err)
			}
			if schemaErr.Field != tt.field {
				t.Errorf("Expected field '%s', got '%s'", tt.field, schemaErr.Field)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	spec, err := Parse([]byte(getTestSpecContent()), FormatYAML)
	if err != nil {
		t.Fatalf("Failed to parse spec: %v", err)
	}

	out, err := spec.Marshal()
	if err != nil {
		t.Fatalf("Failed to marshal spec: %v", err)
	}

	again, err := Parse(out, FormatYAML)
	if err != nil {
		t.Fatalf("Failed to parse marshaled spec: %v", err)
	}
	if !reflect.DeepEqual(spec, again) {
		t.Errorf("Expected marshaled spec to parse back identically")
	}
}
