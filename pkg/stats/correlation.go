package stats

import (
	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/schema"
)

// Correlation returns the pairwise Pearson correlation matrix of the numeric
// columns, using only rows where both columns are present. Undefined
// coefficients are nil.
func Correlation(ds *dataset.Dataset) map[string]map[string]any {
	var cols []string
	for _, c := range ds.Columns() {
		if ds.Schema.Types[c] == schema.Numeric {
			cols = append(cols, c)
		}
	}

	out := make(map[string]map[string]any, len(cols))
	for _, a := range cols {
		out[a] = make(map[string]any, len(cols))
	}

	for i, a := range cols {
		for _, b := range cols[i:] {
			x, y := pairedValues(ds, a, b)
			r := finite(Pearson(x, y))
			out[a][b] = r
			out[b][a] = r
		}
	}
	return out
}

func pairedValues(ds *dataset.Dataset, a, b string) ([]float64, []float64) {
	x := make([]float64, 0, ds.Len())
	y := make([]float64, 0, ds.Len())
	for _, r := range ds.Rows {
		fa, okA := dataset.ToFloat(r[a])
		fb, okB := dataset.ToFloat(r[b])
		if okA && okB {
			x = append(x, fa)
			y = append(y, fb)
		}
	}
	return x, y
}
