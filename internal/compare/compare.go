// Package compare reconciles two snapshots of the same extract by primary key.
package compare

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

// DefaultSuffix is appended to previous-year columns in the joined view.
const DefaultSuffix = "_prev"

// Engine diffs a current and previous table on PrimaryKeys.
type Engine struct {
	PrimaryKeys []string
	Suffix      string
}

// New returns an Engine for keys. An empty suffix means DefaultSuffix.
func New(keys []string, suffix string) (*Engine, error) {
	if len(keys) == 0 {
		return nil, errors.New("primary keys must be specified for comparison")
	}
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &Engine{PrimaryKeys: append([]string(nil), keys...), Suffix: suffix}, nil
}

// ValidateKeys checks that every key column exists in t and that no key
// tuple repeats. Nulls compare equal for this check, so two rows with a null
// key are duplicates.
func (e *Engine) ValidateKeys(t *table.Table, label string) error {
	idx, err := e.keyIndex(t, label)
	if err != nil {
		return err
	}
	first := make(map[string]int, t.Len())
	var dup *DuplicateKeyError
	counted := map[string]bool{}
	for i := 0; i < t.Len(); i++ {
		k, _ := t.KeyTuple(i, idx)
		j, seen := first[k]
		if !seen {
			first[k] = i
			continue
		}
		if dup == nil {
			dup = &DuplicateKeyError{Dataset: label, Keys: e.PrimaryKeys, Rows: []int{j, i}}
			for _, c := range idx {
				dup.Example = append(dup.Example, displayKey(t.Columns()[c].Values[i]))
			}
		}
		if !counted[k] {
			counted[k] = true
			dup.Groups++
		}
	}
	if dup != nil {
		return dup
	}
	return nil
}

func (e *Engine) keyIndex(t *table.Table, label string) ([]int, error) {
	idx := make([]int, 0, len(e.PrimaryKeys))
	var missing []string
	for _, k := range e.PrimaryKeys {
		i := t.Index(k)
		if i < 0 {
			missing = append(missing, k)
			continue
		}
		idx = append(idx, i)
	}
	if len(missing) > 0 {
		return nil, &MissingKeyColumnsError{Dataset: label, Columns: missing}
	}
	return idx, nil
}

func displayKey(v table.Value) string {
	if v.IsNull() {
		return "null"
	}
	return v.String()
}

// Pair links a current row to the previous row with the same key.
type Pair struct {
	Current  int
	Previous int
}

// Merge is the tagged outcome of the key join. Rows with a null key part
// never match and land on their own side.
type Merge struct {
	Matched      []Pair
	CurrentOnly  []int
	PreviousOnly []int
}

// Result is one comparison. Tables and partitions are immutable.
type Result struct {
	Current  *table.Table
	Previous *table.Table
	Keys     []string
	Suffix   string
	Merge    Merge
	// New holds current rows without a previous match, Lapsed the previous
	// rows without a current match.
	New    *table.Table
	Lapsed *table.Table
	Stats  Stats

	prevOf []int
}

// Compare validates both tables and reconciles them.
func (e *Engine) Compare(current, previous *table.Table) (*Result, error) {
	if err := e.ValidateKeys(current, "current"); err != nil {
		return nil, err
	}
	if err := e.ValidateKeys(previous, "previous"); err != nil {
		return nil, err
	}
	curIdx, _ := e.keyIndex(current, "current")
	prevIdx, _ := e.keyIndex(previous, "previous")

	prevKeys := make(map[string]int, previous.Len())
	for i := 0; i < previous.Len(); i++ {
		if k, hasNull := previous.KeyTuple(i, prevIdx); !hasNull {
			prevKeys[k] = i
		}
	}

	res := &Result{
		Current:  current,
		Previous: previous,
		Keys:     e.PrimaryKeys,
		Suffix:   e.Suffix,
		prevOf:   make([]int, current.Len()),
	}
	matchedPrev := make([]bool, previous.Len())
	for i := 0; i < current.Len(); i++ {
		res.prevOf[i] = -1
		k, hasNull := current.KeyTuple(i, curIdx)
		if !hasNull {
			if j, ok := prevKeys[k]; ok {
				res.prevOf[i] = j
				matchedPrev[j] = true
				res.Merge.Matched = append(res.Merge.Matched, Pair{Current: i, Previous: j})
				continue
			}
		}
		res.Merge.CurrentOnly = append(res.Merge.CurrentOnly, i)
	}
	for j, m := range matchedPrev {
		if !m {
			res.Merge.PreviousOnly = append(res.Merge.PreviousOnly, j)
		}
	}

	res.New = current.Select(res.Merge.CurrentOnly)
	res.Lapsed = previous.Select(res.Merge.PreviousOnly)
	res.Stats = newStats(current.Len(), previous.Len(), len(res.Merge.CurrentOnly), len(res.Merge.PreviousOnly), len(res.Merge.Matched))
	return res, nil
}

// Joined materializes the full outer join: key columns (taken from whichever
// side has the row), current non-key columns, then previous non-key columns
// with Suffix appended on a name collision, repeatedly until the name is free.
// Current rows come first in their order, followed by the previous-only rows.
func (r *Result) Joined() (*table.Table, error) {
	rows := r.Current.Len() + len(r.Merge.PreviousOnly)
	isKey := make(map[string]bool, len(r.Keys))
	for _, k := range r.Keys {
		isKey[k] = true
	}

	var cols []*table.Column
	for _, k := range r.Keys {
		cc, _ := r.Current.Column(k)
		pc, _ := r.Previous.Column(k)
		vals := make([]table.Value, 0, rows)
		vals = append(vals, cc.Values...)
		for _, j := range r.Merge.PreviousOnly {
			vals = append(vals, pc.Values[j])
		}
		cols = append(cols, &table.Column{Name: k, Type: cc.Type, Values: vals})
	}

	suffix := r.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	taken := map[string]bool{}
	for _, k := range r.Keys {
		taken[k] = true
	}
	for _, cc := range r.Current.Columns() {
		if isKey[cc.Name] {
			continue
		}
		vals := make([]table.Value, rows)
		copy(vals, cc.Values)
		cols = append(cols, &table.Column{Name: cc.Name, Type: cc.Type, Values: vals})
		taken[cc.Name] = true
	}
	for _, pc := range r.Previous.Columns() {
		if isKey[pc.Name] {
			continue
		}
		name := pc.Name
		for taken[name] {
			name += suffix
		}
		taken[name] = true
		vals := make([]table.Value, rows)
		for i, j := range r.prevOf {
			if j >= 0 {
				vals[i] = pc.Values[j]
			}
		}
		for n, j := range r.Merge.PreviousOnly {
			vals[r.Current.Len()+n] = pc.Values[j]
		}
		cols = append(cols, &table.Column{Name: name, Type: pc.Type, Values: vals})
	}
	return table.New("joined", cols...)
}

// Stats summarizes a comparison.
type Stats struct {
	TotalCurrent  int
	TotalPrevious int
	NewCount      int
	LapsedCount   int
	MatchedCount  int
	// RetentionRate is NaN when RetentionDefined is false.
	RetentionRate    float64
	RetentionDefined bool
}

func newStats(cur, prev, added, lapsed, matched int) Stats {
	s := Stats{
		TotalCurrent:  cur,
		TotalPrevious: prev,
		NewCount:      added,
		LapsedCount:   lapsed,
		MatchedCount:  matched,
		RetentionRate: math.NaN(),
	}
	if prev > 0 {
		s.RetentionRate = float64(cur-added) / float64(prev) * 100
		s.RetentionDefined = true
	}
	return s
}

// Retention returns the retention rate in percent.
func (s Stats) Retention() (float64, error) {
	if !s.RetentionDefined {
		return math.NaN(), ErrRetentionUndefined
	}
	return s.RetentionRate, nil
}

type statsJSON struct {
	TotalCurrent   int      `json:"total_records_current"`
	TotalPrevious  int      `json:"total_records_previous"`
	LapsedCount    int      `json:"lapsed_records"`
	NewCount       int      `json:"new_records"`
	MatchedCount   int      `json:"matched_records"`
	RetentionRate  *float64 `json:"retention_rate"`
	RetentionError string   `json:"retention_error,omitempty"`
}

// MarshalJSON renders an undefined retention rate as null with an error
// message, and a defined one rounded to two decimals.
func (s Stats) MarshalJSON() ([]byte, error) {
	out := statsJSON{
		TotalCurrent:  s.TotalCurrent,
		TotalPrevious: s.TotalPrevious,
		LapsedCount:   s.LapsedCount,
		NewCount:      s.NewCount,
		MatchedCount:  s.MatchedCount,
	}
	if r, err := s.Retention(); err != nil {
		out.RetentionError = err.Error()
	} else {
		rounded := math.Round(r*100) / 100
		out.RetentionRate = &rounded
	}
	return json.Marshal(out)
}

// Map returns the stats as a flat key/value set for tabular reports. An
// undefined retention rate maps to nil.
func (s Stats) Map() map[string]any {
	m := map[string]any{
		"total_records_current":  s.TotalCurrent,
		"total_records_previous": s.TotalPrevious,
		"lapsed_records":         s.LapsedCount,
		"new_records":            s.NewCount,
		"matched_records":        s.MatchedCount,
		"retention_rate":         nil,
	}
	if r, err := s.Retention(); err == nil {
		m["retention_rate"] = math.Round(r*100) / 100
	}
	return m
}
