package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/uicheck/internal/evidence"
	"github.com/xkilldash9x/uicheck/internal/reporting"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// pingPool only answers Ping; the other methods are never reached by New.
type pingPool struct {
	DBPool
	err error
}

func (p pingPool) Ping(context.Context) error { return p.err }

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return &Store{pool: mockPool, log: logger}, mockPool
}

var started = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleReport() *reporting.Report {
	return &reporting.Report{
		RunID:      "0b4e7f1c-2d3a-4e5f-8a9b-0c1d2e3f4a5b",
		Tool:       reporting.ToolName,
		Version:    "v1.0.0",
		BaseURL:    "https://www.amazon.com",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Entries: []reporting.Entry{
			{
				Index: 0, Scenario: "product-search-results", Outcome: reporting.OutcomePassed, FailedStep: -1,
				Steps:     []reporting.StepRecord{{Index: 0, Kind: reporting.StepNavigate, Description: "navigate to /", Status: reporting.StepPassed}},
				Evidence:  &evidence.Artifact{Path: "screenshots/1-000001-product-search-results.png"},
				StartedAt: started, Duration: 2500 * time.Millisecond,
			},
			{
				Index: 1, Scenario: "footer-links-presence", Outcome: reporting.OutcomeFailed, FailedStep: 2,
				Error: "assertion failed: expected element link=Careers in id=navFooter to be displayed, but it is absent", ErrorKind: "assertion_failure",
				StartedAt: started.Add(3 * time.Second), Duration: time.Second,
			},
		},
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		pingErr := errors.New("database unavailable")
		_, err := New(context.Background(), pingPool{err: pingErr}, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
	})

	t.Run("should succeed when ping succeeds", func(t *testing.T) {
		s, err := New(context.Background(), pingPool{}, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, s)
	})
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("creates both tables", func(t *testing.T) {
		s, mockPool := newMockStore(t, zaptest.NewLogger(t))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateRuns)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateResults)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

		require.NoError(t, s.EnsureSchema(ctx))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zaptest.NewLogger(t))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateRuns)).WillReturnError(errors.New("permission denied for schema public"))

		err := s.EnsureSchema(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create schema")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPersistReport(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist the run and every scenario without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		report := sampleReport()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(report.RunID, reporting.ToolName, "v1.0.0", "https://www.amazon.com",
				started, started.Add(time.Minute), 2, 1, 1, 0, "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertResult)).
			WithArgs(report.RunID, 0, "product-search-results", "passed", "", "", -1,
				pgxmock.AnyArg(), "screenshots/1-000001-product-search-results.png", started, int64(2500)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertResult)).
			WithArgs(report.RunID, 1, "footer-links-presence", "failed", "assertion_failure", report.Entries[1].Error, 2,
				[]byte("[]"), "", started.Add(3*time.Second), int64(1000)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()

		require.NoError(t, s.PersistReport(ctx, report))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, observedLogs.Len(), "no rollback is attempted after a commit")
	})

	t.Run("should roll back when a scenario insert fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zaptest.NewLogger(t))
		report := sampleReport()
		dbErr := errors.New("value too long for type")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertResult)).WillReturnError(dbErr)
		mockPool.ExpectRollback()

		err := s.PersistReport(ctx, report)
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), `"product-search-results"`)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report begin failures", func(t *testing.T) {
		s, mockPool := newMockStore(t, zaptest.NewLogger(t))
		mockPool.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := s.PersistReport(ctx, sampleReport())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when commit fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zaptest.NewLogger(t))
		report := sampleReport()
		report.Entries = nil

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			0, 0, 0, 0, pgxmock.AnyArg(),
		).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit().WillReturnError(errors.New("serialization failure"))
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		err := s.PersistReport(ctx, report)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
	})
}

func TestRecentFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("scans rows in order", func(t *testing.T) {
		s, mockPool := newMockStore(t, zaptest.NewLogger(t))
		finished := started.Add(time.Minute)
		rows := pgxmock.NewRows([]string{"run_id", "finished_at", "scenario", "outcome", "error"}).
			AddRow("0b4e7f1c-2d3a-4e5f-8a9b-0c1d2e3f4a5b", finished, "footer-links-presence", "failed", "assertion failed").
			AddRow("0b4e7f1c-2d3a-4e5f-8a9b-0c1d2e3f4a5b", finished, "search-suggestions", "errored", "scenario panicked: boom")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlFailingScenarios)).WithArgs(10).WillReturnRows(rows)

		got, err := s.RecentFailures(ctx, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "footer-links-presence", got[0].Scenario)
		assert.Equal(t, reporting.OutcomeErrored, got[1].Outcome)
		assert.Equal(t, finished, got[1].FinishedAt)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("propagates query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zaptest.NewLogger(t))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlFailingScenarios)).WithArgs(5).
			WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "uicheck_runs" does not exist`})

		_, err := s.RecentFailures(ctx, 5)
		require.Error(t, err)
		var pgErr *pgconn.PgError
		require.ErrorAs(t, err, &pgErr)
		assert.Equal(t, "42P01", pgErr.Code)
	})
}
