package avro

import (
	"fmt"
	"time"

	havro "github.com/hamba/avro/v2"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
)

const (
	longTimestampMicrosTypeName = "long.timestamp-micros"
	nanosecondsPerMicrosecond   = 1_000
)

// NativeRecord builds the value hamba/avro encodes for one dataset row:
// only the schema fields, missing values as nil, and non-null union values
// wrapped in a map keyed by the branch name so the encoder picks it.
func NativeRecord(rs *havro.RecordSchema, row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(rs.Fields()))
	for _, f := range rs.Fields() {
		val := row[f.Name()]
		if dataset.IsMissing(val) {
			val = nil
		}

		var (
			native any
			err    error
		)
		if u, isUnion := f.Type().(*havro.UnionSchema); isUnion {
			native, err = wrapUnionValue(u, val)
		} else {
			native, err = coerce(branchName(f.Type()), val)
		}
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name(), err)
		}
		out[f.Name()] = native
	}
	return out, nil
}

// wrapUnionValue inspects a ["null", T] union and wraps the raw Go value
// in a map whose key is the non-null branch's name.
func wrapUnionValue(u *havro.UnionSchema, val any) (any, error) {
	if val == nil {
		return nil, nil
	}

	var branch havro.Schema
	for _, t := range u.Types() {
		if t.Type() == avroNullType {
			continue
		}
		branch = t
		break
	}
	if branch == nil {
		return nil, nil
	}

	name := branchName(branch)
	payload, err := coerce(name, val)
	if err != nil {
		return nil, err
	}
	return map[string]any{name: payload}, nil
}

// branchName is "primitive" or "primitive.logicalType".
func branchName(s havro.Schema) string {
	name := string(s.Type())
	if lt, ok := s.(havro.LogicalTypeSchema); ok {
		if l := lt.Logical(); l != nil {
			name += "." + string(l.Type())
		}
	}
	return name
}

// coerce converts a dataset value to the Go type the Avro branch expects.
func coerce(branch string, val any) (any, error) {
	if val == nil {
		return nil, nil
	}

	switch branch {
	case avroLongType:
		if i, ok := dataset.ToInt(val); ok {
			return i, nil
		}
	case avroDoubleType:
		if f, ok := dataset.ToFloat(val); ok {
			return f, nil
		}
	case avroBooleanType:
		if b, ok := val.(bool); ok {
			return b, nil
		}
	case avroStringType:
		if s, ok := val.(string); ok {
			return s, nil
		}
		if t, ok := val.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
		return fmt.Sprint(val), nil
	case longTimestampMicrosTypeName:
		if t, ok := dataset.ParseTime(val); ok {
			return t.UTC().UnixNano() / nanosecondsPerMicrosecond, nil
		}
	default:
		return val, nil
	}
	return nil, fmt.Errorf("cannot encode %T(%v) as %s", val, val, branch)
}
