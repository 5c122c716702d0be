// Package harness runs scenarios against a browser session, isolating each
// scenario's failure and collecting one report entry per scenario.
package harness

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/config"
	"github.com/xkilldash9x/uicheck/internal/observability"
	"github.com/xkilldash9x/uicheck/internal/reporting"
)

const (
	defaultEvidenceTimeout = 30 * time.Second
	defaultPersistTimeout  = 30 * time.Second
)

// Runner executes a suite. Each worker owns one SessionManager; with a single
// worker scenarios run strictly in declared order.
type Runner struct {
	suite      config.SuiteConfig
	newManager ManagerFactory
	evidence   EvidenceCapturer
	report     ReportCollector
	sink       Sink
	logger     *zap.Logger

	evidenceTimeout time.Duration
	persistTimeout  time.Duration
	owners          atomic.Uint64
}

// NewRunner wires a runner. sink may be nil.
func NewRunner(suite config.SuiteConfig, newManager ManagerFactory, ev EvidenceCapturer, report ReportCollector, sink Sink, logger *zap.Logger) *Runner {
	return &Runner{
		suite:           suite,
		newManager:      newManager,
		evidence:        ev,
		report:          report,
		sink:            sink,
		logger:          logger.Named("runner"),
		evidenceTimeout: defaultEvidenceTimeout,
		persistTimeout:  defaultPersistTimeout,
	}
}

// Run executes every scenario exactly once, tears the browsers down, flushes
// the report and hands it to the sink. Each of the three finalisation steps
// runs even if an earlier one failed. The returned error is only about the
// report itself; scenario outcomes live in the report.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*reporting.Report, error) {
	baseURL, err := url.Parse(r.suite.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", r.suite.BaseURL, err)
	}

	workers := r.suite.Workers
	if workers < 1 {
		workers = 1
	}
	// No scenarios means no browser; the empty report is still flushed.
	if workers > len(scenarios) {
		workers = len(scenarios)
	}

	queue := make(chan int, len(scenarios))
	for i := range scenarios {
		queue <- i
	}
	close(queue)

	r.logger.Info("Starting suite.", zap.Int("scenarios", len(scenarios)), zap.Int("workers", workers),
		zap.String("base_url", baseURL.String()))
	start := time.Now()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			r.runWorker(ctx, w, baseURL, scenarios, queue)
			return nil
		})
	}
	_ = g.Wait()

	flushErr := r.report.Flush()
	if flushErr != nil {
		r.logger.Error("Failed to flush report.", zap.Error(flushErr))
	}
	report := r.report.Snapshot()

	if r.sink != nil {
		persistCtx, cancel := context.WithTimeout(browser.Detach(ctx), r.persistTimeout)
		if err := r.sink.PersistReport(persistCtx, report); err != nil {
			r.logger.Error("Failed to persist run history.", zap.String("run_id", report.RunID), zap.Error(err))
		}
		cancel()
	}

	summary := report.Summary()
	r.logger.Info("Suite finished.", zap.Int("passed", summary.Passed), zap.Int("failed", summary.Failed),
		zap.Int("errored", summary.Errored), zap.Duration("duration", time.Since(start)))

	if flushErr != nil {
		return report, fmt.Errorf("flushing report: %w", flushErr)
	}
	return report, nil
}

func (r *Runner) runWorker(ctx context.Context, id int, baseURL *url.URL, scenarios []Scenario, queue <-chan int) {
	logger := r.logger.With(zap.Int("worker", id))
	mgr := r.newManager(id)

	// Teardown runs on every exit path, including a panic escaping below.
	defer func() {
		res := mgr.Stop(browser.Detach(ctx))
		if !res.OK() {
			logger.Warn("Browser teardown reported an error.", zap.Error(res.Err), zap.Duration("duration", res.Duration))
		}
	}()

	startErr := mgr.Start(ctx)
	if startErr != nil {
		var sse *browser.SessionStartError
		if !errors.As(startErr, &sse) {
			startErr = &browser.SessionStartError{Err: startErr}
		}
		logger.Error("Browser session could not be started; scenarios will be recorded as errored.", zap.Error(startErr))
		r.report.SetSuiteError(startErr)
	}

	for idx := range queue {
		sc := scenarios[idx]
		var entry reporting.Entry
		switch {
		case startErr != nil:
			entry = r.notRun(idx, sc, startErr)
		case ctx.Err() != nil:
			entry = r.notRun(idx, sc, notStarted(ctx))
		default:
			entry = r.runScenario(ctx, idx, sc, mgr, baseURL, logger)
		}
		if err := r.report.Record(entry); err != nil {
			logger.Error("Failed to record scenario.", zap.String("scenario", sc.Name), zap.Error(err))
		}
	}
}

// notStarted keeps both the context error and a custom cause in the chain.
func notStarted(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil || cause == ctx.Err() {
		return fmt.Errorf("scenario not started: %w", ctx.Err())
	}
	return fmt.Errorf("scenario not started: %w: %w", ctx.Err(), cause)
}

func (r *Runner) notRun(idx int, sc Scenario, cause error) reporting.Entry {
	outcome, kind := Classify(cause)
	return reporting.Entry{
		Index:       idx,
		Scenario:    sc.Name,
		Description: sc.Description,
		Outcome:     outcome,
		FailedStep:  -1,
		Error:       cause.Error(),
		ErrorKind:   kind,
		StartedAt:   time.Now(),
		Err:         cause,
	}
}

func (r *Runner) runScenario(ctx context.Context, idx int, sc Scenario, mgr SessionManager, baseURL *url.URL, workerLogger *zap.Logger) reporting.Entry {
	logger, capture := observability.NewCapturingLogger(workerLogger.With(zap.String("scenario", sc.Name)), zapcore.DebugLevel)
	entry := reporting.Entry{
		Index:       idx,
		Scenario:    sc.Name,
		Description: sc.Description,
		Outcome:     reporting.OutcomeRunning,
		FailedStep:  -1,
		StartedAt:   time.Now(),
	}
	logger.Info("Scenario started.")

	page, err := mgr.Page()
	if err != nil {
		entry.Outcome, entry.ErrorKind = Classify(err)
		entry.Error, entry.Err = err.Error(), err
		logger.Error("No browser page for scenario.", zap.Error(err))
		entry.Duration = time.Since(entry.StartedAt)
		entry.Logs = capture.Lines()
		return entry
	}

	opts := browser.WaitOptions{Timeout: r.suite.DefaultTimeout, Interval: r.suite.PollInterval}
	sctx := newScenarioContext(sc.Name, baseURL, page, r.owners.Add(1), opts, logger)
	err = execute(ctx, sc, sctx)

	entry.Steps = sctx.Steps()
	entry.FailedStep = sctx.FailedStep()
	entry.Outcome, entry.ErrorKind = Classify(err)
	if err != nil {
		entry.Error, entry.Err = err.Error(), err
	}

	// Evidence is taken whatever the outcome and never changes it.
	capStart := time.Now()
	capCtx, cancel := context.WithTimeout(browser.Detach(ctx), r.evidenceTimeout)
	artifact, evErr := r.evidence.Capture(capCtx, page, sc.Name)
	cancel()
	capStep := reporting.StepRecord{
		Index:       len(entry.Steps),
		Kind:        reporting.StepCapture,
		Description: "capture screenshot",
		Status:      reporting.StepPassed,
		Duration:    time.Since(capStart),
	}
	if evErr != nil {
		capStep.Status = reporting.StepFailed
		capStep.Error = evErr.Error()
		entry.EvidenceError = evErr.Error()
		logger.Warn("Evidence capture failed.", zap.Error(evErr))
	} else {
		entry.Evidence = &artifact
	}
	entry.Steps = append(entry.Steps, capStep)
	entry.Duration = time.Since(entry.StartedAt)

	switch entry.Outcome {
	case reporting.OutcomePassed:
		logger.Info("Scenario passed.", zap.Duration("duration", entry.Duration))
	case reporting.OutcomeFailed:
		logger.Warn("Scenario failed.", zap.Int("failed_step", entry.FailedStep), zap.Error(err))
	default:
		logger.Error("Scenario errored.", zap.String("kind", entry.ErrorKind), zap.Error(err))
	}
	entry.Logs = capture.Lines()
	return entry
}

// execute runs the body, converting a panic into a *PanicError. The first
// failed step's error wins over whatever the body returned.
func execute(ctx context.Context, sc Scenario, sctx *ScenarioContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	if sc.Body == nil {
		return fmt.Errorf("scenario %q has no body", sc.Name)
	}
	bodyErr := sc.Body(ctx, sctx)
	if stepErr := sctx.Err(); stepErr != nil {
		return stepErr
	}
	return bodyErr
}
