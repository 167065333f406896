package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

// Check returns the indices of violating rows. cols are the rule's columns
// in declaration order; params come from configuration.
type Check func(cols []*table.Column, params map[string]any) ([]int, error)

var (
	checksMu sync.RWMutex
	checks   = map[string]Check{}
)

// Register makes a check selectable by tag in configuration.
func Register(tag string, c Check) {
	checksMu.Lock()
	defer checksMu.Unlock()
	checks[strings.ToLower(tag)] = c
}

func lookup(tag string) (Check, bool) {
	checksMu.RLock()
	defer checksMu.RUnlock()
	c, ok := checks[strings.ToLower(tag)]
	return c, ok
}

// Checks lists the registered tags.
func Checks() []string {
	checksMu.RLock()
	defer checksMu.RUnlock()
	out := make([]string, 0, len(checks))
	for k := range checks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("not_null", notNull)
	Register("positive", positive)
	Register("min_value", minValue)
	Register("date_order", dateOrder)
	Register("one_of", oneOf)
	Register("less_than", lessThan)
}

func rows(cols []*table.Column) int {
	if len(cols) == 0 {
		return 0
	}
	return len(cols[0].Values)
}

func wantColumns(tag string, cols []*table.Column, n int) error {
	if len(cols) != n {
		return fmt.Errorf("%s: expects %d column(s), got %d", tag, n, len(cols))
	}
	return nil
}

// notNull flags rows where any column is null.
func notNull(cols []*table.Column, _ map[string]any) ([]int, error) {
	var out []int
	for i := 0; i < rows(cols); i++ {
		for _, c := range cols {
			if c.Values[i].IsNull() {
				out = append(out, i)
				break
			}
		}
	}
	return out, nil
}

// positive flags null, non-numeric and non-positive values.
func positive(cols []*table.Column, _ map[string]any) ([]int, error) {
	if err := wantColumns("positive", cols, 1); err != nil {
		return nil, err
	}
	var out []int
	for i, v := range cols[0].Values {
		f, ok := v.Float()
		if !ok || f <= 0 {
			out = append(out, i)
		}
	}
	return out, nil
}

// minValue flags numeric values below params["min"]. Nulls pass.
func minValue(cols []*table.Column, params map[string]any) ([]int, error) {
	if err := wantColumns("min_value", cols, 1); err != nil {
		return nil, err
	}
	floor, err := cast.ToFloat64E(params["min"])
	if err != nil {
		return nil, fmt.Errorf("min_value: param min: %w", err)
	}
	var out []int
	for i, v := range cols[0].Values {
		if f, ok := v.Float(); ok && f < floor {
			out = append(out, i)
		}
	}
	return out, nil
}

// dateOrder flags rows where the first column is before the second, when
// both are present.
func dateOrder(cols []*table.Column, _ map[string]any) ([]int, error) {
	if err := wantColumns("date_order", cols, 2); err != nil {
		return nil, err
	}
	var out []int
	for i := 0; i < rows(cols); i++ {
		if c, ok := compareValues(cols[0].Values[i], cols[1].Values[i]); ok && c < 0 {
			out = append(out, i)
		}
	}
	return out, nil
}

// lessThan flags rows where the first column is not strictly below the
// second, when both are present.
func lessThan(cols []*table.Column, _ map[string]any) ([]int, error) {
	if err := wantColumns("less_than", cols, 2); err != nil {
		return nil, err
	}
	var out []int
	for i := 0; i < rows(cols); i++ {
		if c, ok := compareValues(cols[0].Values[i], cols[1].Values[i]); ok && c >= 0 {
			out = append(out, i)
		}
	}
	return out, nil
}

// oneOf flags non-null values outside params["values"].
func oneOf(cols []*table.Column, params map[string]any) ([]int, error) {
	if err := wantColumns("one_of", cols, 1); err != nil {
		return nil, err
	}
	vals, err := cast.ToStringSliceE(params["values"])
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("one_of: param values must be a non-empty list")
	}
	allowed := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		allowed[v] = struct{}{}
	}
	var out []int
	for i, v := range cols[0].Values {
		if v.IsNull() {
			continue
		}
		if _, ok := allowed[v.String()]; !ok {
			out = append(out, i)
		}
	}
	return out, nil
}

// compareValues orders two present values of comparable kinds.
func compareValues(a, b table.Value) (int, bool) {
	if a.IsNull() || b.IsNull() {
		return 0, false
	}
	if ta, ok := a.Time(); ok {
		tb, ok := b.Time()
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	fa, okA := a.Float()
	fb, okB := b.Float()
	if !okA || !okB {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	}
	return 0, true
}
