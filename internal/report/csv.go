package report

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/KaramelBytes/policyqa-cli/internal/analysis"
	"github.com/KaramelBytes/policyqa-cli/internal/compare"
	"github.com/KaramelBytes/policyqa-cli/internal/rules"
	"github.com/KaramelBytes/policyqa-cli/internal/table"
	"github.com/KaramelBytes/policyqa-cli/internal/utils"
)

// WriteValidation writes the per-rule results.
func (g *Generator) WriteValidation(rep *rules.Report) ([]File, error) {
	var files []File
	if g.formats[FormatCSV] {
		rows := [][]string{{"rule_name", "severity", "message", "violation_count"}}
		for _, r := range rep.Results {
			rows = append(rows, []string{r.Name, string(r.Severity), r.Message, strconv.Itoa(r.Violations)})
		}
		f, err := g.writeCSV("validation", rows)
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	if g.formats[FormatJSON] {
		f, err := g.writeJSON("validation", validationDoc(g.cfg.RunID, rep))
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	return files, nil
}

// WriteOutliers writes the per-column summary and, for CSV, one row per
// flagged record.
func (g *Generator) WriteOutliers(res *analysis.Result, rows int) ([]File, error) {
	var files []File
	if g.formats[FormatCSV] {
		summary := [][]string{{"column", "outlier_count", "outlier_values"}}
		for _, s := range analysis.Summarize(res, rows) {
			summary = append(summary, []string{s.Column, strconv.Itoa(s.OutlierCount), "[" + strings.Join(s.UniqueValues, ", ") + "]"})
		}
		f, err := g.writeCSV("outliers", summary)
		if err != nil {
			return files, err
		}
		files = append(files, f)

		detail := [][]string{{"column", "classification", "row", "value", "method", "direction", "count", "percentage"}}
		for _, c := range res.Columns {
			for _, r := range c.Records {
				row, count, pct := "", "", ""
				if r.Row >= 0 {
					row = strconv.Itoa(r.Row)
				}
				if r.Method == analysis.MethodRare {
					count = strconv.Itoa(r.Count)
					pct = strconv.FormatFloat(r.Percentage, 'f', 4, 64)
				}
				detail = append(detail, []string{c.Column, c.Classification.String(), row, r.Value.String(), r.Method, r.Direction, count, pct})
			}
		}
		f, err = g.writeCSV("outlier_details", detail)
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	if g.formats[FormatJSON] {
		f, err := g.writeJSON("outliers", outliersDoc(g.cfg.RunID, res, rows))
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	return files, nil
}

// WriteComparison writes lapsed and new records as CSV tables and the stats
// with both partitions as JSON.
func (g *Generator) WriteComparison(res *compare.Result) ([]File, error) {
	var files []File
	if g.formats[FormatCSV] {
		for _, part := range []struct {
			kind string
			t    *table.Table
		}{{"lapsed_records", res.Lapsed}, {"new_records", res.New}} {
			f, err := g.writeCSV(part.kind, tableRows(part.t))
			if err != nil {
				return files, err
			}
			files = append(files, f)
		}
	}
	if g.formats[FormatJSON] {
		f, err := g.writeJSON("comparison", comparisonDoc(g.cfg.RunID, res))
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	return files, nil
}

// WriteTableCSV writes t with a header row to path.
func WriteTableCSV(path string, t *table.Table) error {
	data, err := encodeCSV(tableRows(t))
	if err != nil {
		return eris.Wrap(err, "report: encode table csv")
	}
	return eris.Wrapf(utils.SafeWriteFile(path, data), "report: write %s", path)
}

func tableRows(t *table.Table) [][]string {
	out := [][]string{t.ColumnNames()}
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = v.String()
		}
		out = append(out, rec)
	}
	return out
}

func encodeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := csv.NewWriter(&buf).WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeCSV(kind string, rows [][]string) (File, error) {
	data, err := encodeCSV(rows)
	if err != nil {
		return File{}, eris.Wrapf(err, "report: encode %s csv", kind)
	}
	p := g.path(kind, FormatCSV)
	if err := utils.SafeWriteFile(p, data); err != nil {
		return File{}, eris.Wrapf(err, "report: write %s", p)
	}
	return File{Type: kind, Format: FormatCSV, Path: p}, nil
}
