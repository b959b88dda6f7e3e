// Package sampler picks a small, spread-out subset of table rows to stand in
// for the whole table inside a language-model prompt.
package sampler

import (
	"math"
	"math/rand/v2"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

// MissingValue replaces nil and absent cells before encoding.
const MissingValue = "N/A"

// SampledRow is a row drawn from a table together with its position in the
// source table.
type SampledRow struct {
	Index int
	Row   dataset.Row
}

// Result is the outcome of one selection, rows in selection order.
type Result struct {
	Columns []string
	Rows    []SampledRow
}

// Table returns the sampled rows as a table in selection order.
func (r Result) Table() dataset.Table {
	table := dataset.Table{Columns: r.Columns, Rows: make([]dataset.Row, 0, len(r.Rows))}
	for _, sampled := range r.Rows {
		table.Rows = append(table.Rows, sampled.Row)
	}
	return table
}

func (r Result) Indices() []int {
	out := make([]int, 0, len(r.Rows))
	for _, sampled := range r.Rows {
		out = append(out, sampled.Index)
	}
	return out
}

// NewRand returns a freshly seeded source for one sampling call.
func NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Select returns min(n, len(table.Rows)) rows chosen by greedy
// farthest-point selection on mean Euclidean distance. Tables that already
// fit are returned whole in their original order. A nil rng gets a fresh
// source from NewRand.
func Select(table dataset.Table, n int, rng *rand.Rand) Result {
	result := Result{Columns: table.Columns}
	if n <= 0 || len(table.Rows) == 0 {
		result.Rows = []SampledRow{}
		return result
	}
	if len(table.Rows) <= n {
		result.Rows = make([]SampledRow, 0, len(table.Rows))
		for i, row := range table.Rows {
			result.Rows = append(result.Rows, SampledRow{Index: i, Row: row})
		}
		return result
	}
	if rng == nil {
		rng = NewRand()
	}

	distances := pairwiseDistances(encode(table))
	total := len(table.Rows)
	selected := make([]int, 0, n)
	taken := make([]bool, total)

	first := rng.IntN(total)
	selected = append(selected, first)
	taken[first] = true

	for len(selected) < n {
		best := -1
		bestScore := 0.0
		for candidate := 0; candidate < total; candidate++ {
			if taken[candidate] {
				continue
			}
			sum := 0.0
			for _, chosen := range selected {
				sum += distances[candidate][chosen]
			}
			score := sum / float64(len(selected))
			if best == -1 || score > bestScore {
				best = candidate
				bestScore = score
			}
		}
		if best == -1 {
			break
		}
		selected = append(selected, best)
		taken[best] = true
	}

	result.Rows = make([]SampledRow, 0, len(selected))
	for _, index := range selected {
		result.Rows = append(result.Rows, SampledRow{Index: index, Row: table.Rows[index]})
	}
	return result
}

// encode turns the table into a row-major numeric matrix. A column stays
// numeric only when every filled cell is numeric; otherwise every cell is
// rendered as text and replaced by its categorical code.
func encode(table dataset.Table) [][]float64 {
	matrix := make([][]float64, len(table.Rows))
	for i := range matrix {
		matrix[i] = make([]float64, len(table.Columns))
	}

	for col, column := range table.Columns {
		numbers := make([]float64, len(table.Rows))
		numeric := true
		for i, row := range table.Rows {
			value, ok := numericValue(row[column])
			if !ok {
				numeric = false
				break
			}
			numbers[i] = value
		}
		if !numeric {
			texts := make([]string, len(table.Rows))
			for i, row := range table.Rows {
				texts[i] = textValue(row[column])
			}
			numbers = FitCategorical(texts).Transform(texts)
		}
		for i := range matrix {
			matrix[i][col] = numbers[i]
		}
	}
	return matrix
}

func textValue(value any) string {
	if value == nil {
		return MissingValue
	}
	return dataset.FormatValue(value)
}

func pairwiseDistances(matrix [][]float64) [][]float64 {
	out := make([][]float64, len(matrix))
	for i := range out {
		out[i] = make([]float64, len(matrix))
	}
	for i := range matrix {
		for j := i + 1; j < len(matrix); j++ {
			d := euclidean(matrix[i], matrix[j])
			out[i][j] = d
			out[j][i] = d
		}
	}
	return out
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for k := range a {
		diff := a[k] - b[k]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
