package reporting

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uicheck/internal/config"
)

// ErrAlreadyFlushed is returned by Record and Flush once the report has been written.
var ErrAlreadyFlushed = errors.New("reporting: report already flushed")

// Collector accumulates entries as scenarios finish and writes the report once.
// It is safe for concurrent use.
type Collector struct {
	cfg         config.ReportConfig
	toolVersion string
	logger      *zap.Logger
	now         func() time.Time
	newReporter func(format, path, version string) (Reporter, error)

	mu      sync.Mutex
	report  Report
	flushed bool
	written []string
}

// NewCollector starts a report for a run against baseURL.
func NewCollector(cfg config.ReportConfig, baseURL, toolVersion string, logger *zap.Logger) *Collector {
	c := &Collector{
		cfg:         cfg,
		toolVersion: toolVersion,
		logger:      logger.Named("report"),
		now:         time.Now,
		newReporter: New,
	}
	c.report = Report{
		RunID:     uuid.NewString(),
		Tool:      ToolName,
		Version:   toolVersion,
		BaseURL:   baseURL,
		StartedAt: c.now(),
	}
	return c
}

// RunID identifies this run in every output format.
func (c *Collector) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report.RunID
}

// Record appends a finished scenario. Entries must carry a terminal outcome.
func (c *Collector) Record(entry Entry) error {
	if !entry.Outcome.Terminal() {
		return fmt.Errorf("entry %q has non-terminal outcome %q", entry.Scenario, entry.Outcome)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flushed {
		return ErrAlreadyFlushed
	}
	c.report.Entries = append(c.report.Entries, entry)
	return nil
}

// SetSuiteError records a suite-level failure such as a browser that never started.
func (c *Collector) SetSuiteError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.report.SuiteError == "" {
		c.report.SuiteError = err.Error()
	} else {
		c.report.SuiteError += "; " + err.Error()
	}
}

// Snapshot returns a copy of the report with entries in declared order.
func (c *Collector) Snapshot() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Collector) snapshotLocked() *Report {
	r := c.report
	r.Entries = append([]Entry(nil), c.report.Entries...)
	sort.SliceStable(r.Entries, func(i, j int) bool { return r.Entries[i].Index < r.Entries[j].Index })
	return &r
}

// Flush writes every configured format exactly once. A second call returns
// ErrAlreadyFlushed. A failing format does not stop the others; their errors
// are joined.
func (c *Collector) Flush() error {
	c.mu.Lock()
	if c.flushed {
		c.mu.Unlock()
		return ErrAlreadyFlushed
	}
	c.flushed = true
	c.report.FinishedAt = c.now()
	report := c.snapshotLocked()
	c.report.Entries = report.Entries
	c.mu.Unlock()

	var errs []error
	var written []string
	for _, format := range c.cfg.Formats {
		format = strings.ToLower(format)
		path := PathFor(c.cfg.Path, format)
		if err := c.writeFormat(format, path, report); err != nil {
			c.logger.Error("Failed to write report.", zap.String("format", format), zap.String("path", path), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s report: %w", format, err))
			continue
		}
		written = append(written, path)
		c.logger.Info("Report written.", zap.String("format", format), zap.String("path", path))
	}

	c.mu.Lock()
	c.written = written
	c.mu.Unlock()
	return errors.Join(errs...)
}

func (c *Collector) writeFormat(format, path string, report *Report) error {
	r, err := c.newReporter(format, path, c.toolVersion)
	if err != nil {
		return err
	}
	writeErr := r.Write(report)
	closeErr := r.Close()
	return errors.Join(writeErr, closeErr)
}

// Written lists the files produced by Flush.
func (c *Collector) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// Flushed reports whether Flush has been called.
func (c *Collector) Flushed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushed
}
