// Package report writes validation, outlier and comparison results to disk.
package report

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KaramelBytes/policyqa-cli/internal/analysis"
	"github.com/KaramelBytes/policyqa-cli/internal/compare"
	"github.com/KaramelBytes/policyqa-cli/internal/rules"
	"github.com/KaramelBytes/policyqa-cli/internal/utils"
)

// Supported output formats.
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// DatabaseName is the run history database created in the output directory.
const DatabaseName = "policyqa.db"

type Config struct {
	OutputDir   string
	CompanyName string
	Formats     []string
	// RunID identifies the run in file contents and the database; a UUID is
	// generated when empty.
	RunID string
	Clock clockwork.Clock
}

// File is one written report.
type File struct {
	Type   string `json:"type"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

// Generator names and writes report files for a single run.
type Generator struct {
	cfg     Config
	formats map[string]bool
	started time.Time
	stamp   string
}

// New validates cfg and creates the output directory.
func New(cfg Config) (*Generator, error) {
	if cfg.OutputDir == "" {
		return nil, eris.New("report: output directory is required")
	}
	if cfg.CompanyName == "" {
		cfg.CompanyName = "company"
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{FormatCSV, FormatJSON}
	}
	formats := map[string]bool{}
	for _, f := range cfg.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case FormatCSV, FormatJSON, FormatSQLite:
			formats[f] = true
		default:
			return nil, eris.Errorf("report: unsupported format %q (want csv, json or sqlite)", f)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if err := utils.EnsureDir(cfg.OutputDir); err != nil {
		return nil, eris.Wrap(err, "report: create output dir")
	}
	now := cfg.Clock.Now()
	return &Generator{cfg: cfg, formats: formats, started: now, stamp: now.Format("20060102_150405")}, nil
}

func (g *Generator) RunID() string { return g.cfg.RunID }

// Enabled reports whether a format was requested.
func (g *Generator) Enabled(format string) bool { return g.formats[format] }

// path builds {company}_{type}_{timestamp}.{ext} inside the output dir.
func (g *Generator) path(kind, ext string) string {
	company := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(g.cfg.CompanyName)), " ", "_")
	return filepath.Join(g.cfg.OutputDir, fmt.Sprintf("%s_%s_%s.%s", company, kind, g.stamp, ext))
}

// Inputs are the results of one run. Comparison may be nil when only a
// single snapshot was analysed.
type Inputs struct {
	CurrentRows int
	Validation  *rules.Report
	Outliers    *analysis.Result
	Comparison  *compare.Result
}

// GenerateAll writes every requested format for every available result.
func (g *Generator) GenerateAll(ctx context.Context, in Inputs) ([]File, error) {
	var files []File
	if in.Validation != nil {
		fs, err := g.WriteValidation(in.Validation)
		if err != nil {
			return files, err
		}
		files = append(files, fs...)
	}
	if in.Outliers != nil {
		fs, err := g.WriteOutliers(in.Outliers, in.CurrentRows)
		if err != nil {
			return files, err
		}
		files = append(files, fs...)
	}
	if in.Comparison != nil {
		fs, err := g.WriteComparison(in.Comparison)
		if err != nil {
			return files, err
		}
		files = append(files, fs...)
	}
	if g.formats[FormatSQLite] {
		f, err := g.WriteDatabase(ctx, in)
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	for _, f := range files {
		zap.L().Debug("report written", zap.String("type", f.Type), zap.String("format", f.Format), zap.String("path", f.Path))
	}
	return files, nil
}
