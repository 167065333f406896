package loader

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

type delimitedReader struct{}

func (delimitedReader) CanRead(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

func (delimitedReader) Read(path string, opt Options) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "loader: open file")
	}
	defer f.Close()

	src, err := decode(f, opt.Encoding)
	if err != nil {
		return nil, nil, err
	}

	r := csv.NewReader(src)
	r.Comma = opt.Delimiter
	if r.Comma == 0 {
		r.Comma = sniffDelimiter(path)
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var header []string
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrapf(err, "loader: read %s", filepath.Base(path))
		}
		if header == nil {
			header = rec
			continue
		}
		if opt.MaxRows > 0 && len(rows) >= opt.MaxRows {
			break
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

// decode wraps r so it yields UTF-8 for the given WHATWG encoding label.
func decode(r io.Reader, label string) (io.Reader, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return r, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: unsupported encoding %q", label)
	}
	return enc.NewDecoder().Reader(r), nil
}

func sniffDelimiter(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}
