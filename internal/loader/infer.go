package loader

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

var thousandsRe = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// typeColumn votes a logical type over the non-null cells of one column and
// parses every cell as that type. Ties go to numeric, then date, then bool.
// A cell that does not parse as the winner is kept as a string.
func typeColumn(name string, cells []string, opt Options) *table.Column {
	var intCnt, numCnt, dtCnt, boolCnt, txtCnt int
	for _, raw := range cells {
		s := strings.TrimSpace(raw)
		if isNull(s, opt) {
			continue
		}
		if _, ok := parseInt(s); ok {
			intCnt++
			numCnt++
			continue
		}
		if _, ok := parseFloat(s); ok {
			numCnt++
			continue
		}
		if _, ok := parseTime(s, opt.DateLayouts); ok {
			dtCnt++
			continue
		}
		if _, ok := parseBool(s); ok {
			boolCnt++
			continue
		}
		txtCnt++
	}

	kind := table.KindString
	switch {
	case numCnt+dtCnt+boolCnt+txtCnt == 0:
	case numCnt >= dtCnt && numCnt >= boolCnt && numCnt >= txtCnt:
		kind = table.KindFloat
		if intCnt == numCnt {
			kind = table.KindInt
		}
	case dtCnt >= boolCnt && dtCnt >= txtCnt:
		kind = table.KindTime
	case boolCnt >= txtCnt:
		kind = table.KindBool
	}

	col := &table.Column{Name: name, Type: kind, Values: make([]table.Value, len(cells))}
	for i, raw := range cells {
		s := strings.TrimSpace(raw)
		if isNull(s, opt) {
			continue
		}
		col.Values[i] = parseAs(kind, s, opt)
	}
	return col
}

func parseAs(kind table.Kind, s string, opt Options) table.Value {
	switch kind {
	case table.KindInt:
		if v, ok := parseInt(s); ok {
			return table.IntValue(v)
		}
	case table.KindFloat:
		if v, ok := parseFloat(s); ok {
			return table.FloatValue(v)
		}
	case table.KindTime:
		if v, ok := parseTime(s, opt.DateLayouts); ok {
			return table.TimeValue(v)
		}
	case table.KindBool:
		if v, ok := parseBool(s); ok {
			return table.BoolValue(v)
		}
	}
	return table.StringValue(s)
}

func isNull(s string, opt Options) bool {
	if s == "" {
		return true
	}
	for _, n := range opt.NullValues {
		if s == n {
			return true
		}
	}
	return false
}

func parseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(stripThousands(s), 10, 64)
	return v, err == nil
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(stripThousands(s), 64)
	if err != nil {
		return 0, false
	}
	// reject inf/nan spellings that would otherwise turn text columns numeric
	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") {
		return 0, false
	}
	return v, true
}

func stripThousands(s string) string {
	if thousandsRe.MatchString(s) {
		return strings.ReplaceAll(s, ",", "")
	}
	return s
}

// parseTime parses s with the first matching layout. Layouts without a zone
// yield UTC.
func parseTime(s string, layouts []string) (time.Time, bool) {
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
