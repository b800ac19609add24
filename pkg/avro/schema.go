package avro

import (
	"fmt"
	"regexp"

	jsoniter "github.com/json-iterator/go"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/schema"
)

// Constants for Avro type names
const (
	avroStringType  = "string"
	avroLongType    = "long"
	avroBooleanType = "boolean"
	avroDoubleType  = "double"
	avroNullType    = "null"

	timestampMicros = "timestamp-micros"
)

var (
	jsonStd = jsoniter.ConfigCompatibleWithStandardLibrary

	invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// Field is one entry of an Avro record schema.
type Field struct {
	Name    string `json:"name"`
	Type    any    `json:"type"`    // string or complex type
	Default any    `json:"default"` // always present (null)
}

// Record is the JSON form of an Avro record schema.
type Record struct {
	Type      string  `json:"type"` // always "record"
	Name      string  `json:"name"`
	Namespace string  `json:"namespace,omitempty"`
	Fields    []Field `json:"fields"`
}

// BuildRecord derives an Avro record from the dataset schema. Every field is
// a ["null", T] union with a null default, since any column may hold missing
// values.
func BuildRecord(ds *dataset.Dataset, name, namespace string) (*Record, error) {
	rec := &Record{
		Type:      "record",
		Name:      name,
		Namespace: namespace,
		Fields:    make([]Field, 0, len(ds.Columns())),
	}

	for _, col := range ds.Columns() {
		if !validName(col) {
			return nil, fmt.Errorf("avro: column %q is not a valid field name", col)
		}
		rec.Fields = append(rec.Fields, Field{
			Name:    col,
			Type:    []any{avroNullType, columnAvroType(ds, col)},
			Default: nil,
		})
	}
	return rec, nil
}

// SchemaJSON renders BuildRecord as a schema document ready to be parsed or
// registered in a schema registry.
func SchemaJSON(ds *dataset.Dataset, name, namespace string) (string, error) {
	rec, err := BuildRecord(ds, name, namespace)
	if err != nil {
		return "", err
	}
	out, err := jsonStd.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("avro: marshal schema: %w", err)
	}
	return string(out), nil
}

// RecordName turns an arbitrary label (a topic, a file name) into a valid
// Avro record name.
func RecordName(label string) string {
	n := invalidNameChars.ReplaceAllString(label, "_")
	if n == "" || (n[0] >= '0' && n[0] <= '9') {
		n = "_" + n
	}
	return n
}

func validName(name string) bool {
	return name != "" && RecordName(name) == name
}

// columnAvroType maps a dataset column to an Avro primitive or logical type.
func columnAvroType(ds *dataset.Dataset, col string) any {
	switch ds.Schema.Types[col] {
	case schema.Numeric:
		if ds.IntegerColumn(col) {
			return avroLongType
		}
		return avroDoubleType
	case schema.Bool:
		return avroBooleanType
	case schema.Timestamp:
		return map[string]any{
			"type":        avroLongType,
			"logicalType": timestampMicros,
		}
	default:
		return avroStringType
	}
}
