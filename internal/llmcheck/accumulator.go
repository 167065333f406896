package llmcheck

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
	"github.com/KaramelBytes/policyqa-cli/internal/utils"
)

// Row is the outcome for one checked record.
type Row struct {
	Keys  []table.Value
	Tests map[string]int
	// Err is the call or parse failure that forced all tests to 0.
	Err error
}

// Accumulator owns the results of a check run and checkpoints them to a CSV
// file. Every Flush rewrites the whole file so a crash leaves the last
// checkpoint intact.
type Accumulator struct {
	path    string
	keys    []string
	rows    []Row
	flushed int
}

func NewAccumulator(path string, keys []string) *Accumulator {
	return &Accumulator{path: path, keys: keys}
}

func (a *Accumulator) Add(r Row) { a.rows = append(a.rows, r) }

func (a *Accumulator) Len() int { return len(a.rows) }

func (a *Accumulator) Rows() []Row { return a.rows }

// Flushed returns how many rows the last checkpoint contained.
func (a *Accumulator) Flushed() int { return a.flushed }

func (a *Accumulator) Path() string { return a.path }

// Flush writes the key columns and test columns for every row collected so far.
func (a *Accumulator) Flush() error {
	if a.path == "" {
		a.flushed = len(a.rows)
		return nil
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append(append([]string{}, a.keys...), Tests...)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "llmcheck: encode header")
	}
	for _, r := range a.rows {
		rec := make([]string, 0, len(header))
		for _, k := range r.Keys {
			rec = append(rec, k.String())
		}
		for _, name := range Tests {
			rec = append(rec, strconv.Itoa(r.Tests[name]))
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrap(err, "llmcheck: encode row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "llmcheck: encode csv")
	}
	if err := utils.SafeWriteFile(a.path, buf.Bytes()); err != nil {
		return eris.Wrapf(err, "llmcheck: write %s", a.path)
	}
	a.flushed = len(a.rows)
	return nil
}
