// Package pipeline runs a full reconciliation of two policy extracts.
package pipeline

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KaramelBytes/policyqa-cli/internal/ai"
	"github.com/KaramelBytes/policyqa-cli/internal/analysis"
	"github.com/KaramelBytes/policyqa-cli/internal/compare"
	"github.com/KaramelBytes/policyqa-cli/internal/config"
	"github.com/KaramelBytes/policyqa-cli/internal/llmcheck"
	"github.com/KaramelBytes/policyqa-cli/internal/loader"
	"github.com/KaramelBytes/policyqa-cli/internal/report"
	"github.com/KaramelBytes/policyqa-cli/internal/rules"
	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

// Deps overrides collaborators, mainly for tests. Zero values select the
// real implementations.
type Deps struct {
	Clock   clockwork.Clock
	RunID   string
	Runtime ai.Runtime
}

// Outcome collects everything one run produced.
type Outcome struct {
	RunID      string
	Current    *table.Table
	Previous   *table.Table
	Outliers   *analysis.Result
	Comparison *compare.Result
	Validation *rules.Report
	Files      []report.File
	LLM        *llmcheck.Summary
	LLMOutput  string
}

// Run executes the pipeline with real collaborators.
func Run(ctx context.Context, cfg *config.Config) (*Outcome, error) {
	return RunWith(ctx, cfg, Deps{})
}

// RunWith loads both extracts, checks they are compatible, scans the current
// extract for outliers, compares the two, validates business rules and writes
// reports. The optional LLM check runs last. A failure before the report step
// returns without writing anything.
func RunWith(ctx context.Context, cfg *config.Config, deps Deps) (*Outcome, error) {
	if err := cfg.Validate("run"); err != nil {
		return nil, err
	}
	log := zap.L().Named("pipeline")

	outliers, err := analysis.NewEngine(cfg.OutlierEngineConfig())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: outlier config")
	}
	cmp, err := compare.New(cfg.PrimaryKeys, cfg.Comparison.Suffix)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: comparison config")
	}
	validator, err := rules.New(cfg.Validator)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: validator config")
	}

	out := &Outcome{}
	log.Info("loading datasets", zap.String("current", cfg.Files.CurrentYear), zap.String("previous", cfg.Files.PreviousYear))
	out.Current, out.Previous, err = loader.LoadPair(cfg.Files.CurrentYear, cfg.Files.PreviousYear, cfg.LoaderOptions())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out.Outliers = outliers.Detect(out.Current)
	log.Info("outlier detection complete", zap.Int("columns", out.Outliers.Len()), zap.Int("outliers", out.Outliers.Total()))

	out.Comparison, err = cmp.Compare(out.Current, out.Previous)
	if err != nil {
		return nil, err
	}
	log.Info("comparison complete",
		zap.Int("new", out.Comparison.Stats.NewCount), zap.Int("lapsed", out.Comparison.Stats.LapsedCount))

	out.Validation = validator.Validate(out.Current)
	log.Info("validation complete",
		zap.Int("errors", out.Validation.ErrorCount), zap.Int("warnings", out.Validation.WarningCount))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gen, err := report.New(report.Config{
		OutputDir:   cfg.Reporter.OutputDir,
		CompanyName: cfg.Reporter.CompanyName,
		Formats:     cfg.Reporter.ReportFormats,
		RunID:       deps.RunID,
		Clock:       deps.Clock,
	})
	if err != nil {
		return nil, err
	}
	out.RunID = gen.RunID()
	out.Files, err = gen.GenerateAll(ctx, report.Inputs{
		CurrentRows: out.Current.Len(),
		Validation:  out.Validation,
		Outliers:    out.Outliers,
		Comparison:  out.Comparison,
	})
	if err != nil {
		return out, err
	}

	if cfg.LLMValidator.Enabled {
		sum, err := LLMCheck(ctx, cfg, out.Current, deps.Runtime)
		if sum != nil {
			out.LLM = sum
			out.LLMOutput = cfg.LLMValidator.OutputPath
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// LLMCheck runs the model-based row check over t and writes results to the
// configured output path. rt may be nil to build the configured runtime.
func LLMCheck(ctx context.Context, cfg *config.Config, t *table.Table, rt ai.Runtime) (*llmcheck.Summary, error) {
	llm := cfg.LLMValidator
	if rt == nil {
		var ok bool
		rt, ok = ai.GetRuntime(llm.Provider, ai.RuntimeConfig{Host: llm.OllamaURL, HTTPTimeout: llm.Timeout()})
		if !ok {
			return nil, eris.Errorf("pipeline: unknown llm provider %q (available: %v)", llm.Provider, ai.Providers())
		}
	}
	delay := llm.Delay()
	if delay <= 0 {
		delay = -1
	}
	checker, err := llmcheck.New(rt, llmcheck.Options{
		Model:           llm.ModelName,
		PrimaryKeys:     cfg.PrimaryKeys,
		BatchSize:       llm.BatchSize,
		Delay:           delay,
		Temperature:     llm.Temperature,
		MaxPromptTokens: llm.MaxPromptTokens,
	})
	if err != nil {
		return nil, err
	}
	acc := llmcheck.NewAccumulator(llm.OutputPath, cfg.PrimaryKeys)
	sum, err := checker.Run(ctx, t, acc)
	if acc.Len() == 0 && err != nil {
		return nil, err
	}
	return &sum, err
}
