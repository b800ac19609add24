package engine

import (
	"slices"
	"strings"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/pipeline"
)

// Filter keeps the rows matching every equality filter, then drops the
// columns whose name ends with one of the excluded suffixes.
func Filter(ds *dataset.Dataset, spec *pipeline.Spec) (*dataset.Dataset, error) {
	rows := ds.Rows
	for _, f := range spec.Filters {
		if err := ds.Require(f.Column); err != nil {
			return nil, stageErr(StageFilter, f.Column, err)
		}

		kept := make([]dataset.Row, 0, len(rows))
		for _, r := range rows {
			if dataset.Equal(r[f.Column], f.Value) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	out := (&dataset.Dataset{Schema: ds.Schema, Rows: rows}).Clone()
	for _, col := range slices.Clone(out.Columns()) {
		if hasAnySuffix(col, spec.ExcludeSuffixes) {
			out.DropColumn(col)
		}
	}
	return out, nil
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
