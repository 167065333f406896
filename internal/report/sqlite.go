package report

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/policyqa-cli/internal/analysis"
	"github.com/KaramelBytes/policyqa-cli/internal/compare"
	"github.com/KaramelBytes/policyqa-cli/internal/rules"
)

// Store keeps run history in SQLite so results can be queried across runs.
type Store struct {
	db *sql.DB
}

// OpenStore opens the database at dsn and applies pragmas.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	company       TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	current_rows  INTEGER NOT NULL,
	error_count   INTEGER NOT NULL DEFAULT 0,
	warning_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outliers (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	column_name    TEXT NOT NULL,
	classification TEXT NOT NULL,
	row_index      INTEGER,
	value          TEXT,
	method         TEXT NOT NULL,
	direction      TEXT,
	count          INTEGER,
	percentage     REAL
);

CREATE TABLE IF NOT EXISTS comparison_stats (
	run_id                 TEXT PRIMARY KEY REFERENCES runs(id),
	total_records_current  INTEGER NOT NULL,
	total_records_previous INTEGER NOT NULL,
	new_records            INTEGER NOT NULL,
	lapsed_records         INTEGER NOT NULL,
	matched_records        INTEGER NOT NULL,
	retention_rate         REAL
);

CREATE TABLE IF NOT EXISTS validation_results (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	rule_name       TEXT NOT NULL,
	severity        TEXT NOT NULL,
	message         TEXT NOT NULL,
	violation_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outliers_run_id ON outliers(run_id);
CREATE INDEX IF NOT EXISTS idx_validation_results_run_id ON validation_results(run_id);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes a run and all of its results in one transaction.
func (s *Store) SaveRun(ctx context.Context, g *Generator, in Inputs) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var errs, warns int
	if in.Validation != nil {
		errs, warns = in.Validation.ErrorCount, in.Validation.WarningCount
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, company, started_at, current_rows, error_count, warning_count) VALUES (?, ?, ?, ?, ?, ?)`,
		g.cfg.RunID, g.cfg.CompanyName, g.started.UTC(), in.CurrentRows, errs, warns,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert run")
	}
	if in.Outliers != nil {
		if err = insertOutliers(ctx, tx, g.cfg.RunID, in.Outliers); err != nil {
			return err
		}
	}
	if in.Comparison != nil {
		if err = insertStats(ctx, tx, g.cfg.RunID, in.Comparison.Stats); err != nil {
			return err
		}
	}
	if in.Validation != nil {
		if err = insertValidation(ctx, tx, g.cfg.RunID, in.Validation); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func insertOutliers(ctx context.Context, tx *sql.Tx, runID string, res *analysis.Result) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outliers (run_id, column_name, classification, row_index, value, method, direction, count, percentage)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare outliers")
	}
	defer stmt.Close()
	for _, c := range res.Columns {
		for _, r := range c.Records {
			var row, count sql.NullInt64
			var pct sql.NullFloat64
			if r.Row >= 0 {
				row = sql.NullInt64{Int64: int64(r.Row), Valid: true}
			}
			if r.Method == analysis.MethodRare {
				count = sql.NullInt64{Int64: int64(r.Count), Valid: true}
				pct = sql.NullFloat64{Float64: r.Percentage, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, runID, c.Column, c.Classification.String(), row,
				r.Value.String(), r.Method, r.Direction, count, pct); err != nil {
				return eris.Wrapf(err, "sqlite: insert outlier for %s", c.Column)
			}
		}
	}
	return nil
}

func insertStats(ctx context.Context, tx *sql.Tx, runID string, s compare.Stats) error {
	var rate sql.NullFloat64
	if r, err := s.Retention(); err == nil {
		rate = sql.NullFloat64{Float64: r, Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO comparison_stats (run_id, total_records_current, total_records_previous, new_records, lapsed_records, matched_records, retention_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, s.TotalCurrent, s.TotalPrevious, s.NewCount, s.LapsedCount, s.MatchedCount, rate)
	return eris.Wrap(err, "sqlite: insert comparison stats")
}

func insertValidation(ctx context.Context, tx *sql.Tx, runID string, rep *rules.Report) error {
	for _, r := range rep.Results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO validation_results (run_id, rule_name, severity, message, violation_count) VALUES (?, ?, ?, ?, ?)`,
			runID, r.Name, string(r.Severity), r.Message, r.Violations,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert validation result %s", r.Name)
		}
	}
	return nil
}

// WriteDatabase appends this run to the history database in the output dir.
func (g *Generator) WriteDatabase(ctx context.Context, in Inputs) (File, error) {
	p := filepath.Join(g.cfg.OutputDir, DatabaseName)
	st, err := OpenStore(p)
	if err != nil {
		return File{}, err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return File{}, err
	}
	if err := st.SaveRun(ctx, g, in); err != nil {
		return File{}, err
	}
	return File{Type: "history", Format: FormatSQLite, Path: p}, nil
}
