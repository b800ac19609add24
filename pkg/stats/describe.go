package stats

import (
	"math"
	"time"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/schema"
)

// Report maps a column name to its statistics. Every value is a plain
// JSON-serializable scalar: timestamps are ISO-8601 strings and undefined
// statistics are nil.
type Report map[string]map[string]any

var percentiles = []struct {
	name string
	q    float64
}{
	{"25%", 0.25},
	{"50%", 0.5},
	{"75%", 0.75},
}

// Describe summarizes the numeric and timestamp columns of a dataset:
// count, mean, std (numeric only), min, quartiles and max.
func Describe(ds *dataset.Dataset) Report {
	report := make(Report)
	for _, col := range ds.Columns() {
		switch ds.Schema.Types[col] {
		case schema.Numeric:
			report[col] = describeNumeric(numericColumn(ds, col))
		case schema.Timestamp:
			report[col] = describeTimestamps(timestampColumn(ds, col))
		}
	}
	return report
}

func describeNumeric(x []float64) map[string]any {
	out := map[string]any{
		"count": len(x),
		"mean":  finite(Mean(x)),
		"std":   finite(Std(x, 1)),
		"min":   nil,
		"max":   nil,
	}
	for _, p := range percentiles {
		out[p.name] = nil
	}
	if len(x) == 0 {
		return out
	}

	out["min"] = finite(Quantile(x, 0))
	out["max"] = finite(Quantile(x, 1))
	for _, p := range percentiles {
		out[p.name] = finite(Quantile(x, p.q))
	}
	return out
}

func describeTimestamps(ts []time.Time) map[string]any {
	nanos := make([]float64, len(ts))
	for i, t := range ts {
		nanos[i] = float64(t.UnixNano())
	}

	stats := describeNumeric(nanos)
	delete(stats, "std")
	for k, v := range stats {
		if f, ok := v.(float64); ok {
			stats[k] = isoString(f)
		}
	}
	return stats
}

func isoString(nanos float64) string {
	return time.Unix(0, int64(nanos)).UTC().Format(time.RFC3339Nano)
}

func numericColumn(ds *dataset.Dataset, col string) []float64 {
	out := make([]float64, 0, ds.Len())
	for _, r := range ds.Rows {
		if f, ok := dataset.ToFloat(r[col]); ok {
			out = append(out, f)
		}
	}
	return out
}

func timestampColumn(ds *dataset.Dataset, col string) []time.Time {
	out := make([]time.Time, 0, ds.Len())
	for _, r := range ds.Rows {
		if t, ok := r[col].(time.Time); ok {
			out = append(out, t)
		}
	}
	return out
}

// finite maps NaN and infinities to nil so the value survives JSON encoding.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// Serializable walks maps and slices and replaces date/time values with their
// ISO-8601 string and non-finite floats with nil.
func Serializable(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Format(time.RFC3339Nano)
	case float64:
		return finite(x)
	case Report:
		out := make(map[string]any, len(x))
		for k, inner := range x {
			out[k] = Serializable(inner)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, inner := range x {
			out[k] = Serializable(inner)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, inner := range x {
			out[i] = Serializable(inner)
		}
		return out
	default:
		return v
	}
}
