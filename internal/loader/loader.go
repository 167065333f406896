// Package loader reads policy extracts from CSV, TSV and XLSX files into
// typed tables.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

// Options controls how files are read and typed.
type Options struct {
	// Delimiter for delimited text. If 0, inferred from the extension.
	Delimiter rune
	// Encoding is a WHATWG label such as utf-8, latin1 or windows-1252.
	Encoding string
	// SheetName selects an XLSX sheet; when empty SheetIndex is used.
	SheetName  string
	SheetIndex int
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
	// DateLayouts are tried in order when typing date cells.
	DateLayouts []string
	// NullValues are cell texts treated as null besides the empty string.
	NullValues []string
}

// DefaultDateLayouts are the layouts tried when Options.DateLayouts is empty.
var DefaultDateLayouts = []string{
	"2006-01-02", "2006-01-02T15:04:05Z07:00", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

// DefaultOptions returns utf-8 decoding and the default date layouts.
func DefaultOptions() Options {
	return Options{Encoding: "utf-8", DateLayouts: DefaultDateLayouts}
}

// Reader turns a file into a header and raw string rows.
type Reader interface {
	CanRead(path string) bool
	Read(path string, opt Options) (header []string, rows [][]string, err error)
}

var registry []Reader

// Register adds a reader. Later registrations do not override earlier ones
// for the same extension.
func Register(r Reader) {
	registry = append(registry, r)
}

func init() {
	Register(delimitedReader{})
	Register(xlsxReader{})
}

// UnsupportedFormatError indicates a file extension no reader handles.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q for %s (supported: .csv, .tsv, .xlsx)", e.Ext, e.Path)
}

// Load reads path with the first registered reader that accepts it and
// types every column.
func Load(path string, opt Options) (*table.Table, error) {
	var rd Reader
	for _, r := range registry {
		if r.CanRead(path) {
			rd = r
			break
		}
	}
	if rd == nil {
		return nil, &UnsupportedFormatError{Path: path, Ext: strings.ToLower(filepath.Ext(path))}
	}
	if len(opt.DateLayouts) == 0 {
		opt.DateLayouts = DefaultDateLayouts
	}

	header, rows, err := rd.Read(path, opt)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, eris.Errorf("loader: %s has no header row", path)
	}
	header = normalizeHeader(header)
	if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
		rows = rows[:opt.MaxRows]
	}

	cols := make([]*table.Column, len(header))
	cells := make([]string, len(rows))
	short := 0
	for j, name := range header {
		for i, r := range rows {
			if j < len(r) {
				cells[i] = r[j]
			} else {
				cells[i] = ""
				if j == len(header)-1 {
					short++
				}
			}
		}
		cols[j] = typeColumn(name, cells, opt)
	}
	if short > 0 {
		zap.L().Debug("rows shorter than header padded with nulls", zap.String("path", path), zap.Int("rows", short))
	}
	t, err := table.New(filepath.Base(path), cols...)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: build table from %s", path)
	}
	zap.L().Info("loaded dataset",
		zap.String("path", path), zap.Int("rows", t.Len()), zap.Int("columns", len(cols)))
	return t, nil
}

// LoadPair loads both snapshots and checks they share the same columns in
// the same order.
func LoadPair(currentPath, previousPath string, opt Options) (current, previous *table.Table, err error) {
	current, err = Load(currentPath, opt)
	if err != nil {
		return nil, nil, eris.Wrap(err, "loader: current year")
	}
	previous, err = Load(previousPath, opt)
	if err != nil {
		return nil, nil, eris.Wrap(err, "loader: previous year")
	}
	if err := table.CheckCompatible(current, previous); err != nil {
		return nil, nil, err
	}
	return current, previous, nil
}

func normalizeHeader(h []string) []string {
	out := make([]string, len(h))
	for i, s := range h {
		s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
		if s == "" {
			s = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = s
	}
	return out
}
