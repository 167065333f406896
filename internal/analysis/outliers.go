// Package analysis classifies table columns and flags statistical outliers.
package analysis

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

// Outlier methods.
const (
	MethodIQR          = "IQR"
	MethodIQRTimestamp = "IQR-on-timestamp"
	MethodRare         = "rare-category"
)

// Directions for numeric and date outliers.
const (
	Above = "above"
	Below = "below"
)

// Config controls outlier detection.
type Config struct {
	// PercentileThreshold sets the reported lower/upper percentile bounds
	// (p and 100-p). It does not influence which values are flagged.
	PercentileThreshold float64
	// RareCategoryThreshold flags categories whose share of non-null values
	// is strictly below this percentage.
	RareCategoryThreshold float64
	// Interpolation is the quantile estimator; empty means nearest.
	Interpolation string
	// ColumnTypes forces a classification per column name.
	ColumnTypes map[string]string
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		PercentileThreshold:   10.0,
		RareCategoryThreshold: 1.0,
		Interpolation:         string(Nearest),
	}
}

// Record is one flagged value.
type Record struct {
	Column string
	// Row is the table row of a numeric or date outlier, -1 for categories.
	Row       int
	Value     table.Value
	Method    string
	Direction string
	// Count and Percentage are set for rare categories.
	Count      int
	Percentage float64
}

// Bounds are the statistics computed for a numeric or date column. Date
// bounds are epoch microseconds.
type Bounds struct {
	N               int     `json:"n"`
	Q1              float64 `json:"q1"`
	Q3              float64 `json:"q3"`
	IQR             float64 `json:"iqr"`
	Lower           float64 `json:"lower_bound"`
	Upper           float64 `json:"upper_bound"`
	LowerPercentile float64 `json:"lower_percentile"`
	UpperPercentile float64 `json:"upper_percentile"`
	// Percentile is the threshold p used for the two percentile bounds.
	Percentile float64 `json:"percentile_threshold"`
}

// ColumnOutliers groups the records flagged in one column.
type ColumnOutliers struct {
	Column         string
	Classification Classification
	Bounds         *Bounds
	Records        []Record
}

// Result holds the columns with at least one outlier, in table column order.
type Result struct {
	Columns []ColumnOutliers
}

// Get returns the records of a column, or nil.
func (r *Result) Get(column string) []Record {
	for _, c := range r.Columns {
		if c.Column == column {
			return c.Records
		}
	}
	return nil
}

// Len returns the number of columns with outliers.
func (r *Result) Len() int { return len(r.Columns) }

// Total returns the number of records across columns.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Columns {
		n += len(c.Records)
	}
	return n
}

func (r *Result) ByColumn() map[string][]Record {
	out := make(map[string][]Record, len(r.Columns))
	for _, c := range r.Columns {
		out[c.Column] = c.Records
	}
	return out
}

// Engine detects outliers column by column.
type Engine struct {
	cfg        Config
	interp     Interpolation
	classifier *Classifier
	log        *zap.Logger
}

// NewEngine validates cfg and builds an Engine. Thresholds are used as given;
// start from DefaultConfig for the stock values. A rare-category threshold of
// 0 flags nothing.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.PercentileThreshold < 0 || cfg.PercentileThreshold >= 50 {
		return nil, fmt.Errorf("percentile threshold %v out of range [0, 50)", cfg.PercentileThreshold)
	}
	if cfg.RareCategoryThreshold < 0 || cfg.RareCategoryThreshold > 100 {
		return nil, fmt.Errorf("rare category threshold %v out of range [0, 100]", cfg.RareCategoryThreshold)
	}
	in, err := ParseInterpolation(cfg.Interpolation)
	if err != nil {
		return nil, err
	}
	overrides, err := ParseOverrides(cfg.ColumnTypes)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		interp:     in,
		classifier: &Classifier{Overrides: overrides},
		log:        zap.L().Named("outliers"),
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Detect classifies every column of t and runs the matching method. A column
// that fails classification or detection is logged and skipped.
func (e *Engine) Detect(t *table.Table) *Result {
	res := &Result{}
	if t.Len() == 0 {
		return res
	}
	for _, col := range t.ColumnNames() {
		class, err := e.classifier.Classify(t, col)
		if err != nil {
			e.log.Warn("skipping column: classification failed", zap.String("column", col), zap.Error(err))
			continue
		}
		recs, bounds, err := e.DetectColumn(t, col, class)
		if err != nil {
			e.log.Warn("skipping column: detection failed",
				zap.String("column", col), zap.Stringer("classification", class), zap.Error(err))
			continue
		}
		if len(recs) == 0 {
			continue
		}
		res.Columns = append(res.Columns, ColumnOutliers{Column: col, Classification: class, Bounds: bounds, Records: recs})
	}
	return res
}

// DetectColumn runs the method for class on one column. Bounds is nil for
// categorical columns and for columns without non-null values.
func (e *Engine) DetectColumn(t *table.Table, column string, class Classification) ([]Record, *Bounds, error) {
	col, ok := t.Column(column)
	if !ok {
		return nil, nil, &SchemaError{Table: t.Name(), Column: column}
	}
	switch class {
	case Numeric:
		return e.numeric(col)
	case Date:
		return e.date(col)
	case Categorical:
		return e.categorical(col), nil, nil
	}
	return nil, nil, &UnsupportedValueError{Column: column, Row: -1, Kind: col.Type, Method: class.String()}
}

func (e *Engine) numeric(col *table.Column) ([]Record, *Bounds, error) {
	vals := make([]float64, len(col.Values))
	present := make([]bool, len(col.Values))
	var sorted []float64
	for i, v := range col.Values {
		if v.IsNull() {
			continue
		}
		f, ok := v.Float()
		if !ok {
			return nil, nil, &UnsupportedValueError{Column: col.Name, Row: i, Kind: v.Kind(), Method: MethodIQR}
		}
		vals[i], present[i] = f, true
		sorted = append(sorted, f)
	}
	if len(sorted) == 0 {
		return nil, nil, nil
	}
	b := e.bounds(sorted)
	var out []Record
	for i, f := range vals {
		if !present[i] {
			continue
		}
		if dir, ok := outside(f, b); ok {
			out = append(out, Record{Column: col.Name, Row: i, Value: col.Values[i], Method: MethodIQR, Direction: dir})
		}
	}
	return out, b, nil
}

func (e *Engine) date(col *table.Column) ([]Record, *Bounds, error) {
	vals := make([]int64, len(col.Values))
	present := make([]bool, len(col.Values))
	var sorted []float64
	for i, v := range col.Values {
		if v.IsNull() {
			continue
		}
		ts, ok := v.Time()
		if !ok {
			return nil, nil, &UnsupportedValueError{Column: col.Name, Row: i, Kind: v.Kind(), Method: MethodIQRTimestamp}
		}
		vals[i], present[i] = ToEpoch(ts), true
		sorted = append(sorted, float64(vals[i]))
	}
	if len(sorted) == 0 {
		return nil, nil, nil
	}
	b := e.bounds(sorted)
	var out []Record
	for i, us := range vals {
		if !present[i] {
			continue
		}
		if dir, ok := outside(float64(us), b); ok {
			out = append(out, Record{
				Column:    col.Name,
				Row:       i,
				Value:     col.Values[i],
				Method:    MethodIQRTimestamp,
				Direction: dir,
			})
		}
	}
	return out, b, nil
}

func (e *Engine) categorical(col *table.Column) []Record {
	type group struct {
		value table.Value
		count int
	}
	groups := map[string]*group{}
	total := 0
	for _, v := range col.Values {
		if v.IsNull() {
			continue
		}
		total++
		k := v.String()
		if g, ok := groups[k]; ok {
			g.count++
			continue
		}
		groups[k] = &group{value: v, count: 1}
	}
	if total == 0 {
		return nil
	}
	var out []Record
	for _, g := range groups {
		pct := float64(g.count) * 100.0 / float64(total)
		if pct < e.cfg.RareCategoryThreshold {
			out = append(out, Record{
				Column:     col.Name,
				Row:        -1,
				Value:      g.value,
				Method:     MethodRare,
				Count:      g.count,
				Percentage: pct,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value.String() < out[j].Value.String()
		}
		return out[i].Count < out[j].Count
	})
	return out
}

func (e *Engine) bounds(sorted []float64) *Bounds {
	sort.Float64s(sorted)
	p := e.cfg.PercentileThreshold / 100
	b := &Bounds{
		N:               len(sorted),
		Percentile:      e.cfg.PercentileThreshold,
		Q1:              quantile(sorted, 0.25, e.interp),
		Q3:              quantile(sorted, 0.75, e.interp),
		LowerPercentile: quantile(sorted, p, e.interp),
		UpperPercentile: quantile(sorted, 1-p, e.interp),
	}
	b.IQR = b.Q3 - b.Q1
	b.Lower = b.Q1 - 1.5*b.IQR
	b.Upper = b.Q3 + 1.5*b.IQR
	return b
}

func outside(v float64, b *Bounds) (string, bool) {
	if v > b.Upper {
		return Above, true
	}
	if v < b.Lower {
		return Below, true
	}
	return "", false
}

// ToEpoch converts t to microseconds since the Unix epoch.
func ToEpoch(t time.Time) int64 { return t.UnixMicro() }

// FromEpoch converts epoch microseconds back to a UTC time.
func FromEpoch(us int64) time.Time { return time.UnixMicro(us).UTC() }

// Summary is the per-column digest written to reports.
type Summary struct {
	Column         string         `json:"column"`
	Classification Classification `json:"classification"`
	OutlierCount   int            `json:"outlier_count"`
	// Percentage of table rows flagged in this column; categories count
	// every row carrying the rare value.
	Percentage   float64  `json:"percentage"`
	UniqueValues []string `json:"outlier_values"`
}

// Summarize digests a result for a table of rows rows.
func Summarize(r *Result, rows int) []Summary {
	out := make([]Summary, 0, len(r.Columns))
	for _, c := range r.Columns {
		s := Summary{Column: c.Column, Classification: c.Classification}
		seen := map[string]struct{}{}
		flagged := 0
		for _, rec := range c.Records {
			if rec.Method == MethodRare {
				flagged += rec.Count
			} else {
				flagged++
			}
			v := rec.Value.String()
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				s.UniqueValues = append(s.UniqueValues, v)
			}
		}
		s.OutlierCount = len(c.Records)
		if rows > 0 {
			s.Percentage = float64(flagged) * 100.0 / float64(rows)
		}
		out = append(out, s)
	}
	return out
}
