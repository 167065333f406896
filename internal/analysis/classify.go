package analysis

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

// Classification selects the outlier method for a column.
type Classification int

const (
	Numeric Classification = iota + 1
	Categorical
	Date
)

func (c Classification) String() string {
	switch c {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Date:
		return "date"
	default:
		return "unknown"
	}
}

func (c Classification) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// ParseClassification accepts numeric, categorical or date (case-insensitive).
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "numeric", "number":
		return Numeric, nil
	case "categorical", "category", "text":
		return Categorical, nil
	case "date", "datetime", "time":
		return Date, nil
	}
	return 0, fmt.Errorf("unknown column classification %q (want numeric|categorical|date)", s)
}

// Classifier assigns a Classification to a column from the kind of its first
// non-null value. Only one value is sampled, so a numeric column whose first
// value is a stray string classifies as Categorical. Overrides pin a column's
// classification when that approximation is wrong for a dataset; a column
// also matches an override keyed by its lower-cased name, since config keys
// arrive lower-cased.
type Classifier struct {
	Overrides map[string]Classification
}

// Classify returns the classification of column in t.
func (c *Classifier) Classify(t *table.Table, column string) (Classification, error) {
	col, ok := t.Column(column)
	if !ok {
		return 0, &SchemaError{Table: t.Name(), Column: column}
	}
	if c != nil {
		if cl, ok := c.Overrides[column]; ok {
			return cl, nil
		}
		if cl, ok := c.Overrides[strings.ToLower(column)]; ok {
			return cl, nil
		}
	}
	for _, v := range col.Values {
		if v.IsNull() {
			continue
		}
		switch v.Kind() {
		case table.KindInt, table.KindFloat:
			return Numeric, nil
		case table.KindTime:
			return Date, nil
		default:
			return Categorical, nil
		}
	}
	return 0, &EmptyColumnError{Column: column}
}

// Classify uses a Classifier without overrides.
func Classify(t *table.Table, column string) (Classification, error) {
	return (*Classifier)(nil).Classify(t, column)
}

// ParseOverrides converts a column -> name map from configuration.
func ParseOverrides(m map[string]string) (map[string]Classification, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]Classification, len(m))
	for col, name := range m {
		cl, err := ParseClassification(name)
		if err != nil {
			return nil, fmt.Errorf("column_types[%s]: %w", col, err)
		}
		out[col] = cl
	}
	return out, nil
}
