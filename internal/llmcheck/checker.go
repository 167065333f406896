package llmcheck

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/policyqa-cli/internal/ai"
	"github.com/KaramelBytes/policyqa-cli/internal/table"
)

// Defaults applied by New.
const (
	DefaultModel     = "llama3.1"
	DefaultBatchSize = 100
	DefaultDelay     = 100 * time.Millisecond
)

// Options configures a Checker.
type Options struct {
	Model       string
	PrimaryKeys []string
	BatchSize   int
	// Delay is the minimum spacing between model calls. Negative disables it.
	Delay           time.Duration
	Temperature     float64
	MaxPromptTokens int
}

// Checker sends one prompt per record to a Runtime and records three
// pass/fail tests per row. Records are processed sequentially.
type Checker struct {
	Runtime         ai.Runtime
	Model           string
	PrimaryKeys     []string
	BatchSize       int
	Limiter         *rate.Limiter
	Temperature     float64
	MaxPromptTokens int

	log *zap.Logger
}

func New(rt ai.Runtime, opt Options) (*Checker, error) {
	if rt == nil {
		return nil, eris.New("llmcheck: runtime is required")
	}
	if len(opt.PrimaryKeys) == 0 {
		return nil, eris.New("llmcheck: at least one primary key is required")
	}
	if opt.Model == "" {
		opt.Model = DefaultModel
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = DefaultBatchSize
	}
	if opt.Delay == 0 {
		opt.Delay = DefaultDelay
	}
	limit := rate.Inf
	if opt.Delay > 0 {
		limit = rate.Every(opt.Delay)
	}
	return &Checker{
		Runtime:         rt,
		Model:           opt.Model,
		PrimaryKeys:     opt.PrimaryKeys,
		BatchSize:       opt.BatchSize,
		Limiter:         rate.NewLimiter(limit, 1),
		Temperature:     opt.Temperature,
		MaxPromptTokens: opt.MaxPromptTokens,
		log:             zap.L().Named("llmcheck"),
	}, nil
}

// Summary counts outcomes of a run.
type Summary struct {
	Rows    int            `json:"rows"`
	Failed  int            `json:"failed_calls"`
	Passing map[string]int `json:"passing"`
}

// Run checks every row of t, appending to acc and flushing every BatchSize
// rows and once at the end. A failed call or unparsable reply marks all
// tests 0 for that row and the run continues. When ctx is cancelled the
// rows collected so far are flushed and ctx.Err() is returned.
func (c *Checker) Run(ctx context.Context, t *table.Table, acc *Accumulator) (Summary, error) {
	idx := make([]int, len(c.PrimaryKeys))
	var missing []string
	for i, k := range c.PrimaryKeys {
		idx[i] = t.Index(k)
		if idx[i] < 0 {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Summary{}, eris.Errorf("llmcheck: primary keys %v not found in %s", missing, t.Name())
	}

	if c.log == nil {
		c.log = zap.L().Named("llmcheck")
	}
	batch := c.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	sum := Summary{Passing: map[string]int{}}
	total := t.Len()
	c.log.Info("starting llm check", zap.Int("rows", total), zap.String("model", c.Model))
	for i := 0; i < total; i++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return sum, c.stop(ctx, acc, err)
			}
		}
		row := c.check(ctx, t, i)
		if ctx.Err() != nil {
			return sum, c.stop(ctx, acc, ctx.Err())
		}
		row.Keys = make([]table.Value, len(idx))
		for j, col := range idx {
			row.Keys[j] = t.Columns()[col].Values[i]
		}
		acc.Add(row)
		sum.Rows++
		if row.Err != nil {
			sum.Failed++
		}
		for name, v := range row.Tests {
			sum.Passing[name] += v
		}
		if acc.Len()%batch == 0 {
			if err := acc.Flush(); err != nil {
				return sum, err
			}
			c.log.Debug("checkpoint written", zap.Int("rows", acc.Len()), zap.String("path", acc.Path()))
		}
	}
	if acc.Flushed() != acc.Len() || acc.Len() == 0 {
		if err := acc.Flush(); err != nil {
			return sum, err
		}
	}
	c.log.Info("llm check complete", zap.Int("rows", sum.Rows), zap.Int("failed_calls", sum.Failed))
	return sum, nil
}

func (c *Checker) check(ctx context.Context, t *table.Table, i int) Row {
	prompt := BuildPrompt(t, i, c.MaxPromptTokens)
	resp, err := c.Runtime.Generate(ctx, ai.GenerateRequest{Model: c.Model, Prompt: prompt, Temperature: c.Temperature})
	if err != nil {
		c.log.Warn("model call failed", zap.Int("row", i), zap.Error(err))
		return Row{Tests: Failed(), Err: err}
	}
	c.log.Debug("model response", zap.Int("row", i), zap.String("request_id", resp.RequestID), zap.String("response", resp.Text))
	tests, err := ParseResponse(resp.Text)
	if err != nil {
		c.log.Warn("unparsable model response", zap.Int("row", i), zap.Error(err))
		return Row{Tests: Failed(), Err: err}
	}
	return Row{Tests: tests}
}

func (c *Checker) stop(ctx context.Context, acc *Accumulator, cause error) error {
	c.log.Warn("llm check interrupted", zap.Int("rows", acc.Len()), zap.Error(cause))
	if err := acc.Flush(); err != nil {
		return eris.Wrap(err, "llmcheck: flush after interrupt")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return cause
}
