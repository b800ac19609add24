package engine

import (
	"fmt"
	"math"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/pipeline"
	"github.com/siqueiraa/TabFlow/pkg/stats"
)

// cell is one value of a group with the index of the row it came from, kept
// for error reporting.
type cell struct {
	row   int
	value any
}

// reduce evaluates a resolved reducer over the values of one group.
func reduce(r pipeline.Reducer, column string, cells []cell) (any, error) {
	if r.Custom != nil {
		return conditional(r.Custom, cells), nil
	}

	switch r.Builtin {
	case pipeline.AggCount:
		n := int64(0)
		for _, c := range cells {
			if !dataset.IsMissing(c.value) {
				n++
			}
		}
		return n, nil
	case pipeline.AggSize:
		return int64(len(cells)), nil
	case pipeline.AggFirst:
		for _, c := range cells {
			if !dataset.IsMissing(c.value) {
				return c.value, nil
			}
		}
		return nil, nil
	case pipeline.AggLast:
		for i := len(cells) - 1; i >= 0; i-- {
			if !dataset.IsMissing(cells[i].value) {
				return cells[i].value, nil
			}
		}
		return nil, nil
	case pipeline.AggMin:
		return extreme(cells, -1), nil
	case pipeline.AggMax:
		return extreme(cells, 1), nil
	case pipeline.AggNUnique:
		return nunique(cells), nil
	case pipeline.AggSum, pipeline.AggMean, pipeline.AggMedian, pipeline.AggStd, pipeline.AggVar:
		return numericReduce(r.Builtin, column, cells)
	default:
		return nil, fmt.Errorf("unhandled reducer %s", r.Builtin)
	}
}

// conditional returns TrueValue when any value of the group equals Condition.
func conditional(fn *pipeline.CustomFunction, cells []cell) any {
	for _, c := range cells {
		if dataset.Equal(c.value, fn.Condition) {
			return fn.TrueValue
		}
	}
	return fn.FalseValue
}

// extreme returns the smallest (dir=-1) or largest (dir=1) non-missing value.
func extreme(cells []cell, dir int) any {
	var best any
	for _, c := range cells {
		if dataset.IsMissing(c.value) {
			continue
		}
		if best == nil || dataset.Compare(c.value, best)*dir > 0 {
			best = c.value
		}
	}
	return best
}

func nunique(cells []cell) int64 {
	seen := make(map[uint64][]any)
	n := int64(0)
	for _, c := range cells {
		if dataset.IsMissing(c.value) {
			continue
		}
		h := dataset.HashKey([]any{c.value})
		dup := false
		for _, v := range seen[h] {
			if dataset.Equal(v, c.value) {
				dup = true
				break
			}
		}
		if !dup {
			seen[h] = append(seen[h], c.value)
			n++
		}
	}
	return n
}

func numericReduce(f pipeline.AggFunc, column string, cells []cell) (any, error) {
	xs := make([]float64, 0, len(cells))
	allInt := true
	var intSum int64
	for _, c := range cells {
		if dataset.IsMissing(c.value) {
			continue
		}
		x, ok := dataset.ToFloat(c.value)
		if !ok {
			return nil, &dataset.TypeError{Column: column, Row: c.row, Value: c.value, Want: "numeric"}
		}
		if iv, ok := dataset.ToInt(c.value); ok && allInt && dataset.IsInteger(c.value) {
			sum := intSum + iv
			if (iv > 0 && sum < intSum) || (iv < 0 && sum > intSum) {
				allInt = false
			}
			intSum = sum
		} else {
			allInt = false
		}
		xs = append(xs, x)
	}

	var result float64
	switch f {
	case pipeline.AggSum:
		if allInt {
			return intSum, nil
		}
		return stats.Sum(xs), nil
	case pipeline.AggMean:
		result = stats.Mean(xs)
	case pipeline.AggMedian:
		result = stats.Median(xs)
	case pipeline.AggStd:
		result = stats.Std(xs, 1)
	case pipeline.AggVar:
		result = stats.Variance(xs, 1)
	}

	if math.IsNaN(result) {
		return nil, nil
	}
	return result, nil
}
