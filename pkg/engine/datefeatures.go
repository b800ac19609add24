package engine

import (
	"fmt"
	"time"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/pipeline"
	"github.com/siqueiraa/TabFlow/pkg/schema"
)

const weekendStart = 5

// DeriveDateFeatures parses the date column to timestamps and appends the
// configured calendar features. Without a date column it returns the input
// unchanged.
func DeriveDateFeatures(ds *dataset.Dataset, spec *pipeline.Spec) (*dataset.Dataset, error) {
	dateCol := spec.DateColumn()
	if dateCol == "" {
		return ds, nil
	}
	if err := ds.Require(dateCol); err != nil {
		return nil, stageErr(StageDateFeatures, dateCol, err)
	}

	out := ds.Clone()
	parsed := make([]any, out.Len())
	for i, r := range out.Rows {
		v := r[dateCol]
		if dataset.IsMissing(v) {
			continue
		}
		t, ok := dataset.ParseTime(v)
		if !ok {
			return nil, stageErr(StageDateFeatures, dateCol,
				&dataset.TypeError{Column: dateCol, Row: i, Value: v, Want: "timestamp"})
		}
		parsed[i] = t
	}
	out.SetColumn(dateCol, parsed)

	for _, feature := range spec.DateFeatures {
		op, err := pipeline.ParseDateOp(feature)
		if err != nil {
			return nil, stageErr(StageDateFeatures, feature.Name, err)
		}
		values, err := dateFeature(out, feature.Column, op)
		if err != nil {
			return nil, stageErr(StageDateFeatures, feature.Name, err)
		}
		out.SetColumn(feature.Name, values)
	}
	return out, nil
}

func dateFeature(ds *dataset.Dataset, column string, op pipeline.DateOp) ([]any, error) {
	if err := ds.Require(column); err != nil {
		return nil, err
	}
	// is_weekend on an already derived day index compares it directly.
	numeric := ds.Schema.Types[column] == schema.Numeric

	values := make([]any, ds.Len())
	for i, r := range ds.Rows {
		v := r[column]
		if dataset.IsMissing(v) {
			continue
		}

		if op == pipeline.OpIsWeekend && numeric {
			day, _ := dataset.ToFloat(v)
			values[i] = weekendFlag(day >= weekendStart)
			continue
		}

		t, ok := dataset.ParseTime(v)
		if !ok {
			return nil, &dataset.TypeError{Column: column, Row: i, Value: v, Want: "timestamp"}
		}

		switch op {
		case pipeline.OpDayOfWeek:
			values[i] = dayIndex(t)
		case pipeline.OpIsWeekend:
			values[i] = weekendFlag(dayIndex(t) >= weekendStart)
		case pipeline.OpMonth:
			values[i] = int64(t.Month())
		case pipeline.OpQuarter:
			values[i] = int64((t.Month()-1)/3 + 1)
		case pipeline.OpYear:
			values[i] = int64(t.Year())
		default:
			return nil, fmt.Errorf("unhandled date operation %d", op)
		}
	}
	return values, nil
}

// dayIndex numbers the weekday from Monday=0 to Sunday=6.
func dayIndex(t time.Time) int64 {
	return int64((t.Weekday() + 6) % 7)
}

func weekendFlag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
