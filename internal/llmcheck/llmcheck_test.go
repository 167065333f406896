package llmcheck

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KaramelBytes/policyqa-cli/internal/ai"
	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

type fakeRuntime struct {
	replies []string
	errs    []error
	prompts []string
	onCall  func(n int)
}

func (f *fakeRuntime) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	n := len(f.prompts)
	f.prompts = append(f.prompts, req.Prompt)
	if f.onCall != nil {
		f.onCall(n)
	}
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	text := `{"ColourTest": 1, "DateConsistencyTest": 1, "PremiumTests": 1}`
	if n < len(f.replies) {
		text = f.replies[n]
	}
	return &ai.GenerateResponse{Text: text}, nil
}

func policies(t *testing.T, n int) *table.Table {
	t.Helper()
	rows := make([][]table.Value, n)
	for i := range rows {
		rows[i] = []table.Value{table.IntValue(int64(i + 1)), table.StringValue("Red"), table.FloatValue(99.5)}
	}
	tbl, err := table.FromRows("policies.csv", []string{"PolicyID", "VehicleColour", "MonthlyPremium"}, rows)
	require.NoError(t, err)
	return tbl
}

func newChecker(t *testing.T, rt ai.Runtime, batch int) *Checker {
	t.Helper()
	c, err := New(rt, Options{PrimaryKeys: []string{"PolicyID"}, BatchSize: batch, Delay: -1})
	require.NoError(t, err)
	return c
}

func readResults(t *testing.T, p string) [][]string {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(policies(t, 1), 0, 0)
	assert.True(t, strings.HasPrefix(p, "Please analyze this insurance record"))
	for _, name := range Tests {
		assert.Contains(t, p, name)
	}
	assert.True(t, strings.HasSuffix(p, "\nPolicyID: 1\nVehicleColour: Red\nMonthlyPremium: 99.5"))
}

func TestBuildPromptTruncatesRecord(t *testing.T) {
	full := BuildPrompt(policies(t, 1), 0, 0)
	limit := len([]rune(instructions))/4 + 5
	short := BuildPrompt(policies(t, 1), 0, limit)
	assert.True(t, strings.HasPrefix(short, instructions))
	assert.Less(t, len(short), len(full))
	assert.Equal(t, instructions+"\nPolicyID: 1\nVehicle", short)
}

func TestParseResponse(t *testing.T) {
	got, err := ParseResponse("Sure! Here you go:\n```json\n{\"ColourTest\": 1, \"DateConsistencyTest\": \"0\", \"PremiumTests\": true}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{ColourTest: 1, DateConsistencyTest: 0, PremiumTests: 1}, got)

	got, err = ParseResponse(`{"ColourTest": "yes please"}`)
	require.NoError(t, err)
	assert.Equal(t, Failed(), got)

	_, err = ParseResponse("no json here")
	assert.Error(t, err)
	_, err = ParseResponse("} backwards {")
	assert.Error(t, err)
	_, err = ParseResponse("{not: json}")
	assert.Error(t, err)
}

func TestRunDegradesPerRow(t *testing.T) {
	rt := &fakeRuntime{
		replies: []string{"", "garbage", `{"ColourTest": 0, "DateConsistencyTest": 1, "PremiumTests": 1}`},
		errs:    []error{&ai.UnreachableError{Host: "http://127.0.0.1:11434", Err: errors.New("connection refused")}},
	}
	out := filepath.Join(t.TempDir(), "llm", "results.csv")
	acc := NewAccumulator(out, []string{"PolicyID"})
	c := newChecker(t, rt, 100)
	core, logs := observer.New(zap.WarnLevel)
	c.log = zap.New(core)

	sum, err := c.Run(context.Background(), policies(t, 4), acc)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Rows)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, map[string]int{ColourTest: 1, DateConsistencyTest: 2, PremiumTests: 2}, sum.Passing)
	assert.Len(t, rt.prompts, 4)
	assert.Equal(t, 1, logs.FilterMessage("model call failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("unparsable model response").Len())

	assert.Equal(t, [][]string{
		{"PolicyID", ColourTest, DateConsistencyTest, PremiumTests},
		{"1", "0", "0", "0"},
		{"2", "0", "0", "0"},
		{"3", "0", "1", "1"},
		{"4", "1", "1", "1"},
	}, readResults(t, out))
}

func TestRunCheckpointsEveryBatch(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.csv")
	acc := NewAccumulator(out, []string{"PolicyID"})
	rt := &fakeRuntime{}
	var sizes []int
	rt.onCall = func(n int) {
		if _, err := os.Stat(out); err == nil {
			sizes = append(sizes, len(readResults(t, out))-1)
		} else {
			sizes = append(sizes, 0)
		}
	}
	_, err := newChecker(t, rt, 2).Run(context.Background(), policies(t, 5), acc)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 2, 2, 4}, sizes)
	assert.Len(t, readResults(t, out), 6)
	assert.Equal(t, 5, acc.Flushed())
}

func TestRunCancelFlushesCollectedRows(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.csv")
	acc := NewAccumulator(out, []string{"PolicyID"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt := &fakeRuntime{}
	rt.onCall = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	sum, err := newChecker(t, rt, 100).Run(ctx, policies(t, 10), acc)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, sum.Rows)
	assert.Len(t, readResults(t, out), 3)
}

func TestRunMissingKey(t *testing.T) {
	c, err := New(&fakeRuntime{}, Options{PrimaryKeys: []string{"PolicyNo"}})
	require.NoError(t, err)
	_, err = c.Run(context.Background(), policies(t, 1), NewAccumulator("", []string{"PolicyNo"}))
	assert.ErrorContains(t, err, "PolicyNo")
}

func TestNewDefaults(t *testing.T) {
	_, err := New(nil, Options{PrimaryKeys: []string{"id"}})
	assert.Error(t, err)
	_, err = New(&fakeRuntime{}, Options{})
	assert.Error(t, err)

	c, err := New(&fakeRuntime{}, Options{PrimaryKeys: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model)
	assert.Equal(t, DefaultBatchSize, c.BatchSize)
	assert.InDelta(t, 10, float64(c.Limiter.Limit()), 1e-9)
}
