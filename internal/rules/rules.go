// Package rules applies declarative business rules to a policy extract.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

// Severity of a rule.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func parseSeverity(s string) (Severity, error) {
	switch sv := Severity(strings.ToLower(strings.TrimSpace(s))); sv {
	case "":
		return SeverityError, nil
	case SeverityError, SeverityWarning, SeverityInfo:
		return sv, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// RuleConfig declares a rule in configuration. Check is a registered tag.
type RuleConfig struct {
	Name     string         `mapstructure:"name" yaml:"name"`
	Check    string         `mapstructure:"check" yaml:"check"`
	Columns  []string       `mapstructure:"columns" yaml:"columns"`
	Severity string         `mapstructure:"severity" yaml:"severity"`
	Message  string         `mapstructure:"message" yaml:"message"`
	Params   map[string]any `mapstructure:"params" yaml:"params,omitempty"`
}

// Config selects the built-in rule parameters and custom rules.
type Config struct {
	MinPremium   float64      `mapstructure:"min_premium" yaml:"min_premium"`
	GenderValues []string     `mapstructure:"gender_values" yaml:"gender_values"`
	CustomRules  []RuleConfig `mapstructure:"custom_rules" yaml:"custom_rules"`
}

// Rule is a compiled rule.
type Rule struct {
	Name     string
	Columns  []string
	Severity Severity
	Message  string
	params   map[string]any
	check    Check
}

// Validator applies an ordered set of rules.
type Validator struct {
	rules []Rule
}

// BuiltinRules returns the standard policy rules for cfg.
func BuiltinRules(cfg Config) []RuleConfig {
	out := []RuleConfig{
		{Name: "inception_date_not_null", Check: "not_null", Columns: []string{"CoverStartDate"},
			Message: "CoverStartDate cannot be null"},
		{Name: "cancellation_after_inception", Check: "date_order", Columns: []string{"CoverEndDate", "CoverStartDate"},
			Message: "CoverEndDate must be after CoverStartDate"},
		{Name: "premium_not_zero", Check: "positive", Columns: []string{"MonthlyPremium"},
			Message: "MonthlyPremium must be greater than zero"},
		{Name: "premium_exceeds_minimum", Check: "min_value", Columns: []string{"MonthlyPremium"},
			Severity: string(SeverityWarning), Params: map[string]any{"min": cfg.MinPremium},
			Message: fmt.Sprintf("MonthlyPremium below minimum threshold of %v", cfg.MinPremium)},
	}
	if len(cfg.GenderValues) > 0 {
		out = append(out, RuleConfig{Name: "gender_in_allowed_values", Check: "one_of", Columns: []string{"Gender"},
			Severity: string(SeverityWarning), Params: map[string]any{"values": cfg.GenderValues},
			Message: fmt.Sprintf("Gender must be one of %v", cfg.GenderValues)})
	}
	return out
}

// New compiles the built-in rules followed by cfg.CustomRules. An unknown
// check tag or severity is an error.
func New(cfg Config) (*Validator, error) {
	v := &Validator{}
	for _, rc := range append(BuiltinRules(cfg), cfg.CustomRules...) {
		r, err := compile(rc)
		if err != nil {
			return nil, err
		}
		v.rules = append(v.rules, r)
	}
	return v, nil
}

func compile(rc RuleConfig) (Rule, error) {
	if rc.Name == "" {
		return Rule{}, fmt.Errorf("rule with check %q has no name", rc.Check)
	}
	c, ok := lookup(rc.Check)
	if !ok {
		return Rule{}, fmt.Errorf("rule %s: unknown check %q (available: %s)", rc.Name, rc.Check, strings.Join(Checks(), ", "))
	}
	if len(rc.Columns) == 0 {
		return Rule{}, fmt.Errorf("rule %s: no columns", rc.Name)
	}
	sev, err := parseSeverity(rc.Severity)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", rc.Name, err)
	}
	msg := rc.Message
	if msg == "" {
		msg = rc.Name
	}
	return Rule{Name: rc.Name, Columns: rc.Columns, Severity: sev, Message: msg, params: rc.Params, check: c}, nil
}

// Rules returns the compiled rules in evaluation order.
func (v *Validator) Rules() []Rule { return v.rules }

// Result is the outcome of one rule.
type Result struct {
	Name       string   `json:"rule_name"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Violations int      `json:"violation_count"`
	Sample     []string `json:"sample,omitempty"`
	Rows       []int    `json:"-"`
}

// Report aggregates rule results. ErrorCount and WarningCount sum violations.
type Report struct {
	Results      []Result `json:"validation_results"`
	ErrorCount   int      `json:"error_count"`
	WarningCount int      `json:"warning_count"`
	Failed       []string `json:"failed_validations"`
}

// Validate applies every rule to t. A rule whose columns are missing yields a
// result with zero violations and a message naming them.
func (v *Validator) Validate(t *table.Table) *Report {
	rep := &Report{Failed: []string{}}
	for _, r := range v.rules {
		res := v.apply(t, r)
		if res.Violations > 0 {
			rep.Failed = append(rep.Failed, r.Name)
			switch r.Severity {
			case SeverityError:
				rep.ErrorCount += res.Violations
			case SeverityWarning:
				rep.WarningCount += res.Violations
			}
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}

func (v *Validator) apply(t *table.Table, r Rule) Result {
	res := Result{Name: r.Name, Severity: r.Severity, Message: r.Message}
	cols, missing := resolve(t, r.Columns)
	if len(missing) > 0 {
		res.Message = fmt.Sprintf("Missing columns: [%s]", strings.Join(missing, ", "))
		return res
	}
	bad, err := r.check(cols, r.params)
	if err != nil {
		res.Message = fmt.Sprintf("%s: check failed: %v", r.Message, err)
		return res
	}
	res.Rows = bad
	res.Violations = len(bad)
	if len(bad) > 0 {
		for _, c := range cols {
			res.Sample = append(res.Sample, fmt.Sprintf("%s=%s", c.Name, display(c.Values[bad[0]])))
		}
		res.Message = fmt.Sprintf("%s. Sample violations: {%s}", r.Message, strings.Join(res.Sample, ", "))
	}
	return res
}

// InvalidRows returns the sorted distinct rows violating any error rule, and
// warning rules too when includeWarnings is set.
func (v *Validator) InvalidRows(t *table.Table, includeWarnings bool) []int {
	seen := map[int]struct{}{}
	for _, r := range v.rules {
		if r.Severity == SeverityInfo || (r.Severity == SeverityWarning && !includeWarnings) {
			continue
		}
		cols, missing := resolve(t, r.Columns)
		if len(missing) > 0 {
			continue
		}
		bad, err := r.check(cols, r.params)
		if err != nil {
			continue
		}
		for _, i := range bad {
			seen[i] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func resolve(t *table.Table, names []string) ([]*table.Column, []string) {
	var cols []*table.Column
	var missing []string
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		cols = append(cols, c)
	}
	return cols, missing
}

func display(v table.Value) string {
	if v.IsNull() {
		return "null"
	}
	return v.String()
}
