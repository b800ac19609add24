package engine

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/pipeline"
)

// group is one distinct key tuple and the rows that share it.
type group struct {
	key  []any
	rows []int
}

// groupKeys returns the key columns in output order. Group-by columns that are
// also date columns move to the end and are grouped by calendar day.
func groupKeys(spec *pipeline.Spec) ([]string, map[string]bool) {
	dates := make(map[string]bool)
	for _, d := range spec.DateColumns {
		if slices.Contains(spec.GroupBy, d) {
			dates[d] = true
		}
	}

	keys := make([]string, 0, len(spec.GroupBy))
	for _, k := range spec.GroupBy {
		if !dates[k] {
			keys = append(keys, k)
		}
	}
	for _, d := range spec.DateColumns {
		if dates[d] && !slices.Contains(keys, d) {
			keys = append(keys, d)
		}
	}
	return keys, dates
}

// Aggregate groups the rows by the configured keys and evaluates every
// aggregation per group. The output holds one row per key tuple in natural
// key order, key columns first.
func Aggregate(ctx context.Context, ds *dataset.Dataset, spec *pipeline.Spec) (*dataset.Dataset, error) {
	keys, dateKeys := groupKeys(spec)
	for _, k := range keys {
		if err := ds.Require(k); err != nil {
			return nil, stageErr(StageAggregation, k, err)
		}
	}

	reducers := make([]pipeline.Reducer, len(spec.Aggregations))
	for i, agg := range spec.Aggregations {
		if err := ds.Require(agg.Column); err != nil {
			return nil, stageErr(StageAggregation, agg.Name, err)
		}
		r, err := spec.Reducer(agg)
		if err != nil {
			return nil, stageErr(StageAggregation, agg.Name, err)
		}
		reducers[i] = r
	}

	groups, err := buildGroups(ds, keys, dateKeys)
	if err != nil {
		return nil, err
	}

	// Each aggregation owns one slot of results, so the workers never share
	// memory.
	results := make([][]any, len(spec.Aggregations))
	g, gctx := errgroup.WithContext(ctx)
	for i, agg := range spec.Aggregations {
		i, agg := i, agg
		g.Go(func() error {
			out := make([]any, len(groups))
			for j, grp := range groups {
				if err := gctx.Err(); err != nil {
					return err
				}
				cells := make([]cell, len(grp.rows))
				for n, idx := range grp.rows {
					cells[n] = cell{row: idx, value: ds.Rows[idx][agg.Column]}
				}
				v, err := reduce(reducers[i], agg.Column, cells)
				if err != nil {
					return stageErr(StageAggregation, agg.Name, err)
				}
				out[j] = v
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(keys)+len(spec.Aggregations))
	columns = append(columns, keys...)
	for _, agg := range spec.Aggregations {
		columns = append(columns, agg.Name)
	}

	rows := make([]dataset.Row, len(groups))
	for j, grp := range groups {
		row := make(dataset.Row, len(columns))
		for n, k := range keys {
			row[k] = grp.key[n]
		}
		for i, agg := range spec.Aggregations {
			row[agg.Name] = results[i][j]
		}
		rows[j] = row
	}
	return dataset.New(columns, rows), nil
}

func buildGroups(ds *dataset.Dataset, keys []string, dateKeys map[string]bool) ([]*group, error) {
	buckets := make(map[uint64][]*group)
	var groups []*group

	for idx, r := range ds.Rows {
		key, ok, err := rowKey(r, idx, keys, dateKeys)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		h := dataset.HashKey(key)
		var target *group
		for _, candidate := range buckets[h] {
			if sameKey(candidate.key, key) {
				target = candidate
				break
			}
		}
		if target == nil {
			target = &group{key: key}
			buckets[h] = append(buckets[h], target)
			groups = append(groups, target)
		}
		target.rows = append(target.rows, idx)
	}

	slices.SortStableFunc(groups, func(a, b *group) int {
		for i := range a.key {
			if c := dataset.Compare(a.key[i], b.key[i]); c != 0 {
				return c
			}
		}
		return 0
	})
	return groups, nil
}

// rowKey extracts the key tuple of a row. ok is false when any key value is
// missing, in which case the row belongs to no group.
func rowKey(r dataset.Row, idx int, keys []string, dateKeys map[string]bool) ([]any, bool, error) {
	key := make([]any, len(keys))
	for i, k := range keys {
		v := r[k]
		if dataset.IsMissing(v) {
			return nil, false, nil
		}
		if dateKeys[k] {
			t, ok := dataset.ParseTime(v)
			if !ok {
				return nil, false, stageErr(StageAggregation, k,
					&dataset.TypeError{Column: k, Row: idx, Value: v, Want: "timestamp"})
			}
			v = dataset.TruncateDay(t)
		}
		key[i] = v
	}
	return key, true, nil
}

func sameKey(a, b []any) bool {
	for i := range a {
		if !dataset.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
