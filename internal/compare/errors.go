package compare

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRetentionUndefined is returned by Stats.Retention when the previous
// snapshot has no rows.
var ErrRetentionUndefined = errors.New("retention rate undefined: previous year dataset has no records")

// MissingKeyColumnsError lists every primary-key column absent from a dataset.
type MissingKeyColumnsError struct {
	Dataset string
	Columns []string
}

func (e *MissingKeyColumnsError) Error() string {
	return fmt.Sprintf("primary keys [%s] not found in %s year dataset", strings.Join(e.Columns, ", "), e.Dataset)
}

// DuplicateKeyError reports key tuples that occur more than once in a
// dataset. Example holds the display values of the first duplicated tuple.
type DuplicateKeyError struct {
	Dataset string
	Keys    []string
	// Groups is the number of distinct tuples with more than one row.
	Groups  int
	Example []string
	Rows    []int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate primary keys found in %s year dataset: %d duplicated key(s) on [%s], e.g. (%s) at rows %v",
		e.Dataset, e.Groups, strings.Join(e.Keys, ", "), strings.Join(e.Example, ", "), e.Rows)
}
