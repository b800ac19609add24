package engine

import (
	"fmt"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/pipeline"
)

// DeriveFeatures applies the custom_features rules in list order. Each rule
// sees the columns produced by the rules before it.
func DeriveFeatures(ds *dataset.Dataset, spec *pipeline.Spec) (*dataset.Dataset, error) {
	out := ds.Clone()
	for _, rule := range spec.CustomFeatures {
		op, err := pipeline.ParseFeatureOp(rule)
		if err != nil {
			return nil, stageErr(StageFeatures, rule.Name, err)
		}

		var values []any
		switch op {
		case pipeline.OpSubtract:
			values, err = subtract(out, rule.Columns)
		case pipeline.OpFillNA:
			values, err = fillNA(out, rule.Name, rule.Value)
		case pipeline.OpDivide:
			values, err = divide(out, rule.Columns, rule.FillNA)
		case pipeline.OpDiff:
			values, err = diff(out, rule.Column, rule.FillNA)
		case pipeline.OpRollingMean:
			values, err = rollingMean(out, rule.Column, rule.Window)
		default:
			err = fmt.Errorf("unhandled feature operation %q", rule.Operation)
		}
		if err != nil {
			return nil, stageErr(StageFeatures, rule.Name, err)
		}
		out.SetColumn(rule.Name, values)
	}
	return out, nil
}

// numericAt reads a column value as a number. ok is false for missing values;
// non-numeric values are a TypeError.
func numericAt(ds *dataset.Dataset, column string, row int) (float64, bool, error) {
	v := ds.Rows[row][column]
	if dataset.IsMissing(v) {
		return 0, false, nil
	}
	f, ok := dataset.ToFloat(v)
	if !ok {
		return 0, false, &dataset.TypeError{Column: column, Row: row, Value: v, Want: "numeric"}
	}
	return f, true, nil
}

func subtract(ds *dataset.Dataset, columns []string) ([]any, error) {
	if err := ds.Require(columns...); err != nil {
		return nil, err
	}

	values := make([]any, ds.Len())
	for i, r := range ds.Rows {
		allInt := true
		for _, c := range columns {
			if !dataset.IsInteger(r[c]) {
				allInt = false
				break
			}
		}

		if allInt {
			if acc, ok := subtractInts(r, columns); ok {
				values[i] = acc
				continue
			}
		}

		var acc float64
		missing := false
		for n, c := range columns {
			x, ok, err := numericAt(ds, c, i)
			if err != nil {
				return nil, err
			}
			if !ok {
				missing = true
				break
			}
			if n == 0 {
				acc = x
			} else {
				acc -= x
			}
		}
		if !missing {
			values[i] = acc
		}
	}
	return values, nil
}

func fillNA(ds *dataset.Dataset, column string, fill any) ([]any, error) {
	values, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if dataset.IsMissing(v) {
			values[i] = fill
		}
	}
	return values, nil
}

// subtractInts returns the integer difference of the row's columns. It
// reports false when a value does not fit int64 or the result overflows.
func subtractInts(r dataset.Row, columns []string) (int64, bool) {
	acc, ok := dataset.ToInt(r[columns[0]])
	if !ok {
		return 0, false
	}
	for _, c := range columns[1:] {
		x, ok := dataset.ToInt(r[c])
		if !ok {
			return 0, false
		}
		d := acc - x
		if (x > 0 && d > acc) || (x < 0 && d < acc) {
			return 0, false
		}
		acc = d
	}
	return acc, true
}

func divide(ds *dataset.Dataset, columns []string, fill any) ([]any, error) {
	if err := ds.Require(columns...); err != nil {
		return nil, err
	}
	num, den := columns[0], columns[1]

	values := make([]any, ds.Len())
	for i := range ds.Rows {
		a, okA, err := numericAt(ds, num, i)
		if err != nil {
			return nil, err
		}
		b, okB, err := numericAt(ds, den, i)
		if err != nil {
			return nil, err
		}

		switch {
		case okB && b == 0:
			values[i] = 0.0
		case !okA || !okB:
			values[i] = fill
		default:
			values[i] = a / b
		}
	}
	return values, nil
}

func diff(ds *dataset.Dataset, column string, fill any) ([]any, error) {
	if err := ds.Require(column); err != nil {
		return nil, err
	}

	values := make([]any, ds.Len())
	for i := range ds.Rows {
		values[i] = fill
		if i == 0 {
			continue
		}
		cur, okCur, err := numericAt(ds, column, i)
		if err != nil {
			return nil, err
		}
		prev, okPrev, err := numericAt(ds, column, i-1)
		if err != nil {
			return nil, err
		}
		if okCur && okPrev {
			values[i] = cur - prev
		}
	}
	return values, nil
}

// rollingMean averages the trailing window ending at each row. Rows without a
// full, complete window keep the column's own value.
func rollingMean(ds *dataset.Dataset, column string, window int) ([]any, error) {
	original, err := ds.Column(column)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(original))
	for i := range original {
		values[i] = original[i]
		if i+1 < window {
			continue
		}

		sum := 0.0
		complete := true
		for j := i - window + 1; j <= i; j++ {
			x, ok, err := numericAt(ds, column, j)
			if err != nil {
				return nil, err
			}
			if !ok {
				complete = false
				break
			}
			sum += x
		}
		if complete {
			values[i] = sum / float64(window)
		}
	}
	return values, nil
}
