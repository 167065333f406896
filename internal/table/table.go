// Package table holds the in-memory columnar representation of one period's
// policy extract.
package table

import (
	"fmt"
	"sort"
	"strings"
)

// keySep separates the encoded parts of a key tuple. Parts are length
// prefixed where needed, so the separator never makes two tuples collide.
const keySep = "\x1f"

// Column is a named, ordered sequence of cells. Type is the logical type the
// loader declared; a cell that failed to parse as Type is kept as a string.
type Column struct {
	Name   string
	Type   Kind
	Values []Value
}

// NonNull returns the number of non-null cells.
func (c *Column) NonNull() int {
	n := 0
	for _, v := range c.Values {
		if !v.IsNull() {
			n++
		}
	}
	return n
}

// Table is an immutable set of equal-length columns. Callers must not modify
// the columns returned by its accessors.
type Table struct {
	name  string
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a table from columns. All columns must have the same length and
// distinct names.
func New(name string, cols ...*Column) (*Table, error) {
	t := &Table{name: name, cols: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		t.index[c.Name] = i
		if i == 0 {
			t.rows = len(c.Values)
		} else if len(c.Values) != t.rows {
			return nil, fmt.Errorf("column %q has %d values, want %d", c.Name, len(c.Values), t.rows)
		}
	}
	return t, nil
}

// FromRows builds a table from a header and row-major values. Column types
// are taken from the first non-null value of each column.
func FromRows(name string, header []string, rows [][]Value) (*Table, error) {
	cols := make([]*Column, len(header))
	for j, h := range header {
		cols[j] = &Column{Name: h, Values: make([]Value, len(rows))}
	}
	for i, r := range rows {
		if len(r) != len(header) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(r), len(header))
		}
		for j, v := range r {
			cols[j].Values[i] = v
			if cols[j].Type == KindNull {
				cols[j].Type = v.Kind()
			}
		}
	}
	return New(name, cols...)
}

func (t *Table) Name() string { return t.name }
func (t *Table) Len() int     { return t.rows }

func (t *Table) Columns() []*Column { return t.cols }

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of a column or -1.
func (t *Table) Index(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Row returns a copy of row i in column order.
func (t *Table) Row(i int) []Value {
	out := make([]Value, len(t.cols))
	for j, c := range t.cols {
		out[j] = c.Values[i]
	}
	return out
}

// Select returns a new table holding the given rows in the given order.
func (t *Table) Select(rows []int) *Table {
	cols := make([]*Column, len(t.cols))
	for j, c := range t.cols {
		vals := make([]Value, len(rows))
		for k, r := range rows {
			vals[k] = c.Values[r]
		}
		cols[j] = &Column{Name: c.Name, Type: c.Type, Values: vals}
	}
	out, _ := New(t.name, cols...)
	return out
}

// KeyTuple encodes the values of row at the given column positions. hasNull
// reports whether any part of the tuple is null.
func (t *Table) KeyTuple(row int, idx []int) (key string, hasNull bool) {
	var b strings.Builder
	for k, j := range idx {
		if k > 0 {
			b.WriteString(keySep)
		}
		v := t.cols[j].Values[row]
		if v.IsNull() {
			hasNull = true
		}
		b.WriteString(v.KeyPart())
	}
	return b.String(), hasNull
}

// ColumnMismatchError reports that two snapshots do not share the same
// columns in the same order.
type ColumnMismatchError struct {
	MissingInCurrent  []string
	MissingInPrevious []string
	OrderDiffers      bool
}

func (e *ColumnMismatchError) Error() string {
	var parts []string
	if len(e.MissingInCurrent) > 0 {
		parts = append(parts, fmt.Sprintf("columns missing in current year: %v", e.MissingInCurrent))
	}
	if len(e.MissingInPrevious) > 0 {
		parts = append(parts, fmt.Sprintf("columns missing in previous year: %v", e.MissingInPrevious))
	}
	if e.OrderDiffers {
		parts = append(parts, "columns are in different order")
	}
	return strings.Join(parts, "; ")
}

// CheckCompatible verifies that current and previous have identical column
// names in identical order.
func CheckCompatible(current, previous *Table) error {
	cur := current.ColumnNames()
	prev := previous.ColumnNames()
	if equalStrings(cur, prev) {
		return nil
	}
	e := &ColumnMismatchError{
		MissingInCurrent:  difference(prev, cur),
		MissingInPrevious: difference(cur, prev),
	}
	if len(e.MissingInCurrent) == 0 && len(e.MissingInPrevious) == 0 {
		e.OrderDiffers = true
	}
	return e
}

// difference returns the sorted names in a that are absent from b.
func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := in[s]; !ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
