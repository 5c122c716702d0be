package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uicheck/internal/reporting"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store keeps the history of suite runs in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Open connects to databaseURL. The returned close function releases the pool.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

const (
	sqlCreateRuns = `
        CREATE TABLE IF NOT EXISTS uicheck_runs (
            run_id      UUID PRIMARY KEY,
            tool        TEXT NOT NULL,
            version     TEXT NOT NULL,
            base_url    TEXT NOT NULL,
            started_at  TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL,
            total       INTEGER NOT NULL,
            passed      INTEGER NOT NULL,
            failed      INTEGER NOT NULL,
            errored     INTEGER NOT NULL,
            suite_error TEXT NOT NULL DEFAULT ''
        );
    `
	sqlCreateResults = `
        CREATE TABLE IF NOT EXISTS uicheck_scenario_results (
            run_id        UUID NOT NULL REFERENCES uicheck_runs (run_id) ON DELETE CASCADE,
            idx           INTEGER NOT NULL,
            scenario      TEXT NOT NULL,
            outcome       TEXT NOT NULL,
            error_kind    TEXT NOT NULL DEFAULT '',
            error         TEXT NOT NULL DEFAULT '',
            failed_step   INTEGER NOT NULL,
            steps         JSONB NOT NULL,
            evidence_path TEXT NOT NULL DEFAULT '',
            started_at    TIMESTAMPTZ NOT NULL,
            duration_ms   BIGINT NOT NULL,
            PRIMARY KEY (run_id, idx)
        );
    `
	sqlInsertRun = `
        INSERT INTO uicheck_runs (run_id, tool, version, base_url, started_at, finished_at, total, passed, failed, errored, suite_error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `
	sqlInsertResult = `
        INSERT INTO uicheck_scenario_results (run_id, idx, scenario, outcome, error_kind, error, failed_step, steps, evidence_path, started_at, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `
	sqlFailingScenarios = `
        SELECT r.run_id::text, r.finished_at, s.scenario, s.outcome, s.error
        FROM uicheck_scenario_results s
        JOIN uicheck_runs r ON r.run_id = s.run_id
        WHERE s.outcome <> 'passed'
        ORDER BY r.finished_at DESC, s.idx ASC
        LIMIT $1;
    `
)

// EnsureSchema creates the history tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateRuns, sqlCreateResults} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// PersistReport writes one run row and one row per scenario in a single transaction.
func (s *Store) PersistReport(ctx context.Context, report *reporting.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	summary := report.Summary()
	if _, err := tx.Exec(ctx, sqlInsertRun,
		report.RunID, report.Tool, report.Version, report.BaseURL,
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
		summary.Total, summary.Passed, summary.Failed, summary.Errored, report.SuiteError,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}

	for _, e := range report.Entries {
		steps, err := jsonAPI.Marshal(e.Steps)
		if err != nil {
			return fmt.Errorf("failed to encode steps of %q: %w", e.Scenario, err)
		}
		if e.Steps == nil {
			steps = []byte("[]")
		}
		evidencePath := ""
		if e.Evidence != nil {
			evidencePath = e.Evidence.Path
		}
		if _, err := tx.Exec(ctx, sqlInsertResult,
			report.RunID, e.Index, e.Scenario, string(e.Outcome), e.ErrorKind, e.Error, e.FailedStep,
			steps, evidencePath, e.StartedAt.UTC(), e.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("failed to insert result for %q: %w", e.Scenario, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	s.log.Info("Run persisted.", zap.String("run_id", report.RunID), zap.Int("scenarios", len(report.Entries)))
	return nil
}

// FailingScenario is one non-passing result from an earlier run.
type FailingScenario struct {
	RunID      string
	FinishedAt time.Time
	Scenario   string
	Outcome    reporting.Outcome
	Error      string
}

// RecentFailures lists the latest failed or errored scenarios, newest run first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]FailingScenario, error) {
	rows, err := s.pool.Query(ctx, sqlFailingScenarios, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var out []FailingScenario
	for rows.Next() {
		var f FailingScenario
		var outcome string
		if err := rows.Scan(&f.RunID, &f.FinishedAt, &f.Scenario, &outcome, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}
		f.Outcome = reporting.Outcome(outcome)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
