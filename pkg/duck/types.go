package duck

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/schema"
)

// Format is a file format DuckDB reads and writes.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

// Column type names used between the dataset schema and DuckDB DDL.
const (
	typeString    = "string"
	typeInt64     = "int64"
	typeFloat64   = "float64"
	typeBool      = "bool"
	typeTimestamp = "timestamp"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q (want .csv, .parquet or .json)", filepath.Ext(path))
	}
}

// reader returns the table function that scans path.
func (f Format) reader(path string) string {
	switch f {
	case FormatParquet:
		return "read_parquet(" + quoteSQLString(path) + ")"
	case FormatJSON:
		return "read_json_auto(" + quoteSQLString(path) + ")"
	default:
		return "read_csv_auto(" + quoteSQLString(path) + ", header=true)"
	}
}

// copyOptions returns the option list of COPY ... TO for the format.
func (f Format) copyOptions() string {
	switch f {
	case FormatParquet:
		return "FORMAT PARQUET"
	case FormatJSON:
		return "FORMAT JSON"
	default:
		return "FORMAT CSV, HEADER"
	}
}

// typeMapping holds the mapping from column type names to DuckDB types
var typeMapping = map[string]string{
	typeString:    "VARCHAR",
	typeBool:      "BOOLEAN",
	typeInt64:     "BIGINT",
	typeFloat64:   "DOUBLE",
	typeTimestamp: "TIMESTAMP",
}

// mapToDuckDBType converts a column type name into the DuckDB type used in
// CREATE TABLE. Unknown names fall back to VARCHAR.
func mapToDuckDBType(typ string) string {
	if duckType, ok := typeMapping[strings.ToLower(strings.TrimSpace(typ))]; ok {
		return duckType
	}
	return "VARCHAR"
}

// columnTypes resolves the storage type of every dataset column. Numeric
// columns holding only integers are stored as int64.
func columnTypes(ds *dataset.Dataset) map[string]string {
	types := make(map[string]string, len(ds.Columns()))
	for _, col := range ds.Columns() {
		switch ds.Schema.Types[col] {
		case schema.Numeric:
			if ds.IntegerColumn(col) {
				types[col] = typeInt64
			} else {
				types[col] = typeFloat64
			}
		case schema.Bool:
			types[col] = typeBool
		case schema.Timestamp:
			types[col] = typeTimestamp
		default:
			types[col] = typeString
		}
	}
	return types
}

// NormalizeRecord adjusts the row values to the Go types the appender expects
// for each column. Missing values stay nil.
func NormalizeRecord(record map[string]any, typMap map[string]string) map[string]any {
	normalized := make(map[string]any, len(typMap))
	for field, typ := range typMap {
		val, ok := record[field]
		if !ok || dataset.IsMissing(val) {
			normalized[field] = nil
			continue
		}
		normalized[field] = normalizeFieldValue(val, typ)
	}
	return normalized
}

// normalizeFieldValue normalizes a single field value based on its type
func normalizeFieldValue(val any, typ string) any {
	switch typ {
	case typeInt64:
		return normalizeInt(val)
	case typeFloat64:
		return normalizeFloat(val)
	case typeBool:
		return normalizeBool(val)
	case typeTimestamp:
		return normalizeTimestamp(val)
	default:
		return normalizeString(val)
	}
}

func normalizeInt(val any) any {
	if i, ok := dataset.ToInt(val); ok {
		return i
	}
	if s, ok := val.(string); ok {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i
		}
	}
	return nil
}

func normalizeFloat(val any) any {
	if f, ok := dataset.ToFloat(val); ok {
		return f
	}
	if s, ok := val.(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return nil
}

func normalizeBool(val any) any {
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return nil
	}
}

func normalizeTimestamp(val any) any {
	if t, ok := dataset.ParseTime(val); ok {
		return t.UTC()
	}
	return nil
}

func normalizeString(val any) any {
	switch v := val.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
