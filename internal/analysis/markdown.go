package analysis

import (
	"fmt"
	"strings"
)

// Markdown renders the result as a compact report for terminals and docs.
func (r *Result) Markdown(name string, rows int) string {
	var b strings.Builder
	b.WriteString("[OUTLIER SUMMARY]\n")
	if name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", rows))
	b.WriteString(fmt.Sprintf("Columns with outliers: %d (records %d)\n", r.Len(), r.Total()))

	for _, c := range r.Columns {
		b.WriteString(fmt.Sprintf("\n[%s] %s\n", safeName(c.Column), c.Classification))
		if c.Bounds != nil && c.Classification == Numeric {
			bd := c.Bounds
			b.WriteString(fmt.Sprintf("bounds [%.4g, %.4g] (q1 %.4g, q3 %.4g, p%.0f..p%.0f %.4g..%.4g)\n",
				bd.Lower, bd.Upper, bd.Q1, bd.Q3,
				bd.Percentile, 100-bd.Percentile, bd.LowerPercentile, bd.UpperPercentile))
		}
		if c.Bounds != nil && c.Classification == Date {
			bd := c.Bounds
			b.WriteString(fmt.Sprintf("bounds [%s, %s]\n",
				FromEpoch(int64(bd.Lower)).Format("2006-01-02"), FromEpoch(int64(bd.Upper)).Format("2006-01-02")))
		}
		b.WriteString("| value | method | direction | count | pct |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		lim := 20
		if len(c.Records) < lim {
			lim = len(c.Records)
		}
		for _, rec := range c.Records[:lim] {
			count, pct := "", ""
			if rec.Method == MethodRare {
				count = fmt.Sprintf("%d", rec.Count)
				pct = fmt.Sprintf("%.2f%%", rec.Percentage)
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				safeVal(rec.Value.String()), rec.Method, rec.Direction, count, pct))
		}
		if len(c.Records) > lim {
			b.WriteString(fmt.Sprintf("... %d more\n", len(c.Records)-lim))
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "/")
}
