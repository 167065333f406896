package report

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/KaramelBytes/policyqa-cli/internal/analysis"
	"github.com/KaramelBytes/policyqa-cli/internal/compare"
	"github.com/KaramelBytes/policyqa-cli/internal/rules"
	"github.com/KaramelBytes/policyqa-cli/internal/table"
	"github.com/KaramelBytes/policyqa-cli/internal/utils"
)

type outlierJSON struct {
	Row        *int     `json:"row,omitempty"`
	Value      any      `json:"value"`
	Method     string   `json:"method"`
	Direction  string   `json:"direction,omitempty"`
	Count      int      `json:"count,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

type columnJSON struct {
	Classification string           `json:"classification"`
	Bounds         *analysis.Bounds `json:"bounds,omitempty"`
	Outliers       []outlierJSON    `json:"outliers"`
	Summary        analysis.Summary `json:"summary"`
}

func validationDoc(runID string, rep *rules.Report) map[string]any {
	return map[string]any{
		"run_id":             runID,
		"validation_results": rep.Results,
		"error_count":        rep.ErrorCount,
		"warning_count":      rep.WarningCount,
		"failed_validations": rep.Failed,
	}
}

func outliersDoc(runID string, res *analysis.Result, rows int) map[string]any {
	sums := analysis.Summarize(res, rows)
	cols := make(map[string]columnJSON, len(res.Columns))
	for i, c := range res.Columns {
		cj := columnJSON{Classification: c.Classification.String(), Bounds: finiteBounds(c.Bounds), Summary: sums[i]}
		for _, r := range c.Records {
			oj := outlierJSON{Value: jsonValue(r.Value), Method: r.Method, Direction: r.Direction, Count: r.Count}
			if r.Row >= 0 {
				row := r.Row
				oj.Row = &row
			}
			if r.Method == analysis.MethodRare {
				pct := r.Percentage
				oj.Percentage = &pct
			}
			cj.Outliers = append(cj.Outliers, oj)
		}
		cols[c.Column] = cj
	}
	return map[string]any{
		"run_id":         runID,
		"rows":           rows,
		"total_outliers": res.Total(),
		"columns":        cols,
	}
}

func comparisonDoc(runID string, res *compare.Result) map[string]any {
	return map[string]any{
		"run_id":           runID,
		"primary_keys":     res.Keys,
		"comparison_stats": res.Stats,
		"table_lapsed":     tableDoc(res.Lapsed),
		"table_new":        tableDoc(res.New),
	}
}

// tableDoc renders a table column-wise, matching a dataframe dict export.
func tableDoc(t *table.Table) map[string][]any {
	out := make(map[string][]any, len(t.Columns()))
	for _, c := range t.Columns() {
		vals := make([]any, len(c.Values))
		for i, v := range c.Values {
			vals[i] = jsonValue(v)
		}
		out[c.Name] = vals
	}
	return out
}

// jsonValue maps a cell to a JSON-safe primitive. Anything else, including
// times and non-finite floats, falls back to its string form.
func jsonValue(v table.Value) any {
	switch v.Kind() {
	case table.KindNull:
		return nil
	case table.KindInt:
		i, _ := v.Int()
		return i
	case table.KindFloat:
		f, _ := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return cast.ToString(f)
		}
		return f
	case table.KindBool:
		b, _ := v.Bool()
		return b
	}
	return cast.ToString(v)
}

// finiteBounds drops bounds that encoding/json cannot represent.
func finiteBounds(b *analysis.Bounds) *analysis.Bounds {
	if b == nil {
		return nil
	}
	for _, f := range []float64{b.Q1, b.Q3, b.Lower, b.Upper, b.LowerPercentile, b.UpperPercentile} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	}
	return b
}

func (g *Generator) writeJSON(kind string, doc any) (File, error) {
	data, err := utils.PrettyJSON(doc)
	if err != nil {
		return File{}, eris.Wrapf(err, "report: encode %s json", kind)
	}
	p := g.path(kind, FormatJSON)
	if err := utils.SafeWriteFile(p, data); err != nil {
		return File{}, eris.Wrapf(err, "report: write %s", p)
	}
	return File{Type: kind, Format: FormatJSON, Path: p}, nil
}
