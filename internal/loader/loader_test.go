package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "extract.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadCSVTypesColumns(t *testing.T) {
	p := writeFile(t, "current.csv", "\ufeffPolicyID,MonthlyPremium,CoverStartDate,Gender,Active,Notes\n"+
		"1,12.50,2024-01-05,M,true,\n"+
		"2,\"1,200.00\",2024-02-10,F,false,n/a\n"+
		"3,,not a date,M,true,ok\n")

	tbl, err := Load(p, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "current.csv", tbl.Name())
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"PolicyID", "MonthlyPremium", "CoverStartDate", "Gender", "Active", "Notes"}, tbl.ColumnNames())

	id, _ := tbl.Column("PolicyID")
	assert.Equal(t, table.KindInt, id.Type)

	prem, _ := tbl.Column("MonthlyPremium")
	assert.Equal(t, table.KindFloat, prem.Type)
	f, ok := prem.Values[1].Float()
	require.True(t, ok)
	assert.Equal(t, 1200.0, f)
	assert.True(t, prem.Values[2].IsNull())

	start, _ := tbl.Column("CoverStartDate")
	assert.Equal(t, table.KindTime, start.Type)
	ts, ok := start.Values[0].Time()
	require.True(t, ok)
	assert.True(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC).Equal(ts))
	assert.Equal(t, table.KindString, start.Values[2].Kind(), "unparseable cell stays a string")

	gender, _ := tbl.Column("Gender")
	assert.Equal(t, table.KindString, gender.Type)

	active, _ := tbl.Column("Active")
	assert.Equal(t, table.KindBool, active.Type)

	notes, _ := tbl.Column("Notes")
	assert.Equal(t, table.KindString, notes.Type)
	assert.True(t, notes.Values[0].IsNull())
}

func TestLoadTSVAndMaxRows(t *testing.T) {
	p := writeFile(t, "prev.tsv", "a\tb\n1\tx\n2\ty\n3\tz\n")
	tbl, err := Load(p, Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"a", "b"}, tbl.ColumnNames())
}

func TestLoadNullValuesAndShortRows(t *testing.T) {
	p := writeFile(t, "c.csv", "a,b,c\n1,NA,3\n2\n")
	tbl, err := Load(p, Options{NullValues: []string{"NA"}})
	require.NoError(t, err)
	b, _ := tbl.Column("b")
	c, _ := tbl.Column("c")
	assert.True(t, b.Values[0].IsNull())
	assert.True(t, b.Values[1].IsNull())
	assert.True(t, c.Values[1].IsNull())
	assert.Equal(t, table.KindInt, c.Type)
}

func TestLoadLatin1(t *testing.T) {
	p := writeFile(t, "legacy.csv", "Name,City\nJos\xe9,Z\xfcrich\n")
	tbl, err := Load(p, Options{Encoding: "latin1"})
	require.NoError(t, err)
	row := tbl.Row(0)
	assert.Equal(t, "José", row[0].String())
	assert.Equal(t, "Zürich", row[1].String())

	_, err = Load(p, Options{Encoding: "klingon-8"})
	assert.Error(t, err)
}

func TestLoadXLSX(t *testing.T) {
	p := createTestXLSX(t, map[string][][]string{
		"Policies": {
			{"PolicyID", "MonthlyPremium", "CoverStartDate"},
			{"10", "25.5", "2023-12-01"},
			{"11", "30", "2024-01-15"},
			{"", "", ""},
		},
	})

	tbl, err := Load(p, Options{SheetName: "Policies"})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	prem, _ := tbl.Column("MonthlyPremium")
	assert.Equal(t, table.KindFloat, prem.Type)
	start, _ := tbl.Column("CoverStartDate")
	assert.Equal(t, table.KindTime, start.Type)

	_, err = Load(p, Options{SheetName: "Nope"})
	assert.Error(t, err)
	_, err = Load(p, Options{SheetIndex: 3})
	assert.Error(t, err)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	p := writeFile(t, "data.parquet", "PAR1")
	_, err := Load(p, DefaultOptions())
	var uf *UnsupportedFormatError
	require.True(t, errors.As(err, &uf))
	assert.Equal(t, ".parquet", uf.Ext)
}

func TestLoadPairChecksColumns(t *testing.T) {
	cur := writeFile(t, "cur.csv", "id,premium,region\n1,2,n\n")
	prev := writeFile(t, "prev.csv", "id,region,premium\n1,n,2\n")

	_, _, err := LoadPair(cur, prev, DefaultOptions())
	var mm *table.ColumnMismatchError
	require.True(t, errors.As(err, &mm))
	assert.True(t, mm.OrderDiffers)

	same := writeFile(t, "same.csv", "id,premium,region\n2,3,s\n")
	c, p, err := LoadPair(cur, same, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, p.Len())
}

func TestTypeColumnTieBreaks(t *testing.T) {
	col := typeColumn("x", []string{"1", "abc"}, DefaultOptions())
	assert.Equal(t, table.KindInt, col.Type, "numeric wins ties")
	assert.Equal(t, table.KindString, col.Values[1].Kind())

	col = typeColumn("y", []string{"", ""}, DefaultOptions())
	assert.Equal(t, table.KindString, col.Type)
	assert.True(t, col.Values[0].IsNull())

	col = typeColumn("z", []string{"1.5", "2", "inf"}, DefaultOptions())
	assert.Equal(t, table.KindFloat, col.Type)
	assert.Equal(t, table.KindString, col.Values[2].Kind())
}
