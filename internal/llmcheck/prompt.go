package llmcheck

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
	"github.com/KaramelBytes/policyqa-cli/internal/utils"
)

// Names of the row tests the model is asked to run, in output column order.
const (
	ColourTest          = "ColourTest"
	DateConsistencyTest = "DateConsistencyTest"
	PremiumTests        = "PremiumTests"
)

// Tests lists every test field.
var Tests = []string{ColourTest, DateConsistencyTest, PremiumTests}

const instructions = `Please analyze this insurance record and perform the following tests.
Respond with JSON only, containing test results (1 for pass, 0 for fail):
{
    "ColourTest": 1 or 0,
    "DateConsistencyTest": 1 or 0,
    "PremiumTests": 1 or 0
}

Tests to perform:
1. ColourTest: Check if VehicleColour is a real color
2. DateConsistencyTest: If CoverEndDate is blank then return 1, otherwise verify if CoverEndDate is after CoverStartDate
3. PremiumTests: Verify MonthlyPremium is positive and less than SumInsured

Record values:
`

// BuildPrompt renders row i of t as a prompt. When maxTokens is positive the
// record section is truncated so the whole prompt stays within it.
func BuildPrompt(t *table.Table, i, maxTokens int) string {
	var b strings.Builder
	for j, v := range t.Row(i) {
		b.WriteString("\n")
		b.WriteString(t.Columns()[j].Name)
		b.WriteString(": ")
		b.WriteString(v.String())
	}
	record := b.String()
	if maxTokens > 0 {
		budget := maxTokens - utils.CountTokens(instructions)
		if utils.CountTokens(record) > budget {
			record = utils.TruncateToTokenLimit(record, budget)
		}
	}
	return instructions + record
}

// Failed returns a result with every test at 0.
func Failed() map[string]int {
	out := make(map[string]int, len(Tests))
	for _, name := range Tests {
		out[name] = 0
	}
	return out
}

// ParseResponse extracts the JSON object between the first '{' and the last
// '}' of text. Test fields are coerced to 1 or 0; absent or unreadable
// fields count as 0.
func ParseResponse(text string) (map[string]int, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("no JSON object found in response")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, eris.Wrap(err, "parse response json")
	}
	out := Failed()
	for _, name := range Tests {
		if ok, err := cast.ToBoolE(raw[name]); err == nil && ok {
			out[name] = 1
		}
	}
	return out, nil
}
