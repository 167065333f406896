package report

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/policyqa-cli/internal/analysis"
	"github.com/KaramelBytes/policyqa-cli/internal/compare"
	"github.com/KaramelBytes/policyqa-cli/internal/rules"
	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newGen(t *testing.T, formats ...string) *Generator {
	t.Helper()
	g, err := New(Config{
		OutputDir:   filepath.Join(t.TempDir(), "reports"),
		CompanyName: "Acme Life",
		Formats:     formats,
		RunID:       "run-1",
		Clock:       clockwork.NewFakeClockAt(fixedNow),
	})
	require.NoError(t, err)
	return g
}

func inputs(t *testing.T) Inputs {
	t.Helper()
	header := []string{"id", "premium", "start"}
	start := table.TimeValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cur, err := table.FromRows("current", header, [][]table.Value{
		{table.IntValue(1), table.FloatValue(10), start},
		{table.IntValue(2), table.FloatValue(11), start},
		{table.IntValue(3), table.FloatValue(12), start},
		{table.IntValue(4), table.FloatValue(900), table.Null()},
	})
	require.NoError(t, err)
	prev, err := table.FromRows("previous", header, [][]table.Value{
		{table.IntValue(2), table.FloatValue(11), start},
		{table.IntValue(3), table.FloatValue(12), start},
		{table.IntValue(4), table.FloatValue(13), start},
		{table.IntValue(6), table.FloatValue(14), start},
	})
	require.NoError(t, err)

	eng, err := compare.New([]string{"id"}, "")
	require.NoError(t, err)
	cmp, err := eng.Compare(cur, prev)
	require.NoError(t, err)

	oe, err := analysis.NewEngine(analysis.DefaultConfig())
	require.NoError(t, err)

	v, err := rules.New(rules.Config{})
	require.NoError(t, err)

	return Inputs{CurrentRows: cur.Len(), Validation: v.Validate(cur), Outliers: oe.Detect(cur), Comparison: cmp}
}

func readCSV(t *testing.T, p string) [][]string {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func filesByType(files []File, format string) map[string]string {
	m := map[string]string{}
	for _, f := range files {
		if f.Format == format {
			m[f.Type] = f.Path
		}
	}
	return m
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Config{OutputDir: t.TempDir(), Formats: []string{"html"}})
	assert.Error(t, err)
	_, err = New(Config{})
	assert.Error(t, err)
}

func TestNewGeneratesRunID(t *testing.T) {
	g, err := New(Config{OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Len(t, g.RunID(), 36)
	assert.True(t, g.Enabled(FormatCSV))
	assert.False(t, g.Enabled(FormatSQLite))
}

func TestGenerateAllCSV(t *testing.T) {
	g := newGen(t, "csv")
	files, err := g.GenerateAll(context.Background(), inputs(t))
	require.NoError(t, err)

	csvs := filesByType(files, FormatCSV)
	require.Len(t, csvs, 5)
	assert.Equal(t, "acme_life_validation_20250314_092653.csv", filepath.Base(csvs["validation"]))

	val := readCSV(t, csvs["validation"])
	assert.Equal(t, []string{"rule_name", "severity", "message", "violation_count"}, val[0])
	assert.Len(t, val, 5)

	out := readCSV(t, csvs["outliers"])
	assert.Equal(t, []string{"column", "outlier_count", "outlier_values"}, out[0])
	assert.Equal(t, []string{"premium", "1", "[900]"}, out[1])

	detail := readCSV(t, csvs["outlier_details"])
	assert.Equal(t, []string{"premium", "numeric", "3", "900", "IQR", "above", "", ""}, detail[1])

	lapsed := readCSV(t, csvs["lapsed_records"])
	assert.Equal(t, [][]string{{"id", "premium", "start"}, {"6", "14", "2024-01-01"}}, lapsed)
	added := readCSV(t, csvs["new_records"])
	assert.Equal(t, [][]string{{"id", "premium", "start"}, {"1", "10", "2024-01-01"}}, added)
}

func TestGenerateAllJSON(t *testing.T) {
	g := newGen(t, "json")
	files, err := g.GenerateAll(context.Background(), inputs(t))
	require.NoError(t, err)
	js := filesByType(files, FormatJSON)
	require.Len(t, js, 3)

	var cmp map[string]any
	raw, err := os.ReadFile(js["comparison"])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &cmp))
	stats := cmp["comparison_stats"].(map[string]any)
	assert.Equal(t, 75.0, stats["retention_rate"])
	assert.Equal(t, float64(1), stats["new_records"])
	lapsed := cmp["table_lapsed"].(map[string]any)
	assert.Equal(t, []any{float64(6)}, lapsed["id"])
	assert.Equal(t, []any{"2024-01-01"}, lapsed["start"])

	var out map[string]any
	raw, err = os.ReadFile(js["outliers"])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))
	prem := out["columns"].(map[string]any)["premium"].(map[string]any)
	assert.Equal(t, "numeric", prem["classification"])
	assert.Equal(t, "numeric", prem["summary"].(map[string]any)["classification"])

	var val map[string]any
	raw, err = os.ReadFile(js["validation"])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &val))
	assert.Equal(t, "run-1", val["run_id"])
	assert.Contains(t, val, "failed_validations")
}

func TestGenerateAllSQLite(t *testing.T) {
	g := newGen(t, "sqlite")
	ctx := context.Background()
	files, err := g.GenerateAll(ctx, inputs(t))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, DatabaseName, filepath.Base(files[0].Path))

	db, err := sql.Open("sqlite", files[0].Path)
	require.NoError(t, err)
	defer db.Close()

	var runs int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, "run-1").Scan(&runs))
	assert.Equal(t, 1, runs)

	var rate float64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT retention_rate FROM comparison_stats WHERE run_id = ?`, "run-1").Scan(&rate))
	assert.InDelta(t, 75.0, rate, 1e-9)

	var rules int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM validation_results WHERE run_id = ?`, "run-1").Scan(&rules))
	assert.Equal(t, 4, rules)

	var value, method string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT value, method FROM outliers WHERE run_id = ?`, "run-1").Scan(&value, &method))
	assert.Equal(t, "900", value)
	assert.Equal(t, analysis.MethodIQR, method)

	_, err = g.WriteDatabase(ctx, Inputs{})
	assert.Error(t, err, "same run id cannot be stored twice")
}

func TestUndefinedRetentionStoredAsNull(t *testing.T) {
	g := newGen(t, "sqlite", "json")
	cur, err := table.FromRows("current", []string{"id"}, [][]table.Value{{table.IntValue(1)}})
	require.NoError(t, err)
	prev, err := table.FromRows("previous", []string{"id"}, nil)
	require.NoError(t, err)
	eng, _ := compare.New([]string{"id"}, "")
	cmp, err := eng.Compare(cur, prev)
	require.NoError(t, err)

	ctx := context.Background()
	files, err := g.GenerateAll(ctx, Inputs{CurrentRows: 1, Comparison: cmp})
	require.NoError(t, err)

	db, err := sql.Open("sqlite", filesByType(files, FormatSQLite)["history"])
	require.NoError(t, err)
	defer db.Close()
	var rate sql.NullFloat64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT retention_rate FROM comparison_stats`).Scan(&rate))
	assert.False(t, rate.Valid)

	raw, err := os.ReadFile(filesByType(files, FormatJSON)["comparison"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"retention_rate": null`)
}
