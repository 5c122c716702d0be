package harness_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/config"
	"github.com/xkilldash9x/uicheck/internal/evidence"
	"github.com/xkilldash9x/uicheck/internal/harness"
	"github.com/xkilldash9x/uicheck/internal/mocks"
	"github.com/xkilldash9x/uicheck/internal/reporting"
)

const testBaseURL = "https://shop.example.test"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// fakePage is a scripted storefront. Elements are keyed by locator string.
type fakePage struct {
	mu        sync.Mutex
	title     string
	elements  map[string]browser.ProbeResult
	probeErr  error
	shotErr   error
	navigated []string
	actions   []string
	onSubmit  func(p *fakePage)
}

func newFakePage() *fakePage {
	return &fakePage{title: "Storefront", elements: map[string]browser.ProbeResult{}}
}

// show makes n visible, clickable matches of loc.
func (p *fakePage) show(loc browser.Locator, n int) *fakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[loc.String()] = browser.ProbeResult{Count: n, Visible: n > 0, Clickable: n > 0}
	return p
}

func (p *fakePage) set(loc browser.Locator, res browser.ProbeResult) *fakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[loc.String()] = res
	return p
}

func (p *fakePage) Probe(_ context.Context, loc browser.Locator, _ int) (browser.ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probeErr != nil {
		return browser.ProbeResult{}, p.probeErr
	}
	return p.elements[loc.String()], nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Title(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *fakePage) Click(_ context.Context, el browser.Element) error {
	if err := el.Allows(browser.ActionClick); err != nil {
		return err
	}
	p.record("click " + el.Locator.String())
	return nil
}

func (p *fakePage) SendKeys(_ context.Context, el browser.Element, text string) error {
	if err := el.Allows(browser.ActionType); err != nil {
		return err
	}
	p.record("type " + text)
	return nil
}

func (p *fakePage) Submit(_ context.Context, el browser.Element) error {
	if err := el.Allows(browser.ActionSubmit); err != nil {
		return err
	}
	p.record("submit " + el.Locator.String())
	if p.onSubmit != nil {
		p.onSubmit(p)
	}
	return nil
}

func (p *fakePage) Screenshot(context.Context, bool, int) ([]byte, error) {
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	return append([]byte(nil), pngHeader...), nil
}

func (p *fakePage) record(action string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, action)
}

func (p *fakePage) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// countingCollector wraps the real collector to observe Flush.
type countingCollector struct {
	*reporting.Collector
	flushes        atomic.Int32
	entriesAtFlush int
	flushErr       error
}

func (c *countingCollector) Flush() error {
	c.flushes.Add(1)
	c.entriesAtFlush = len(c.Collector.Snapshot().Entries)
	if err := c.Collector.Flush(); err != nil {
		return err
	}
	return c.flushErr
}

type fixture struct {
	suite     config.SuiteConfig
	report    *countingCollector
	evidence  *evidence.Collector
	evidenceD string
	logger    *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)
	ev, err := evidence.NewCollector(config.EvidenceConfig{Dir: filepath.Join(dir, "screenshots"), Quality: 90}, logger)
	require.NoError(t, err)
	rc := reporting.NewCollector(config.ReportConfig{Path: filepath.Join(dir, "report.html"), Formats: []string{"json"}},
		testBaseURL, "v-test", logger)
	return &fixture{
		suite: config.SuiteConfig{
			BaseURL:        testBaseURL,
			DefaultTimeout: 200 * time.Millisecond,
			PollInterval:   20 * time.Millisecond,
			Workers:        1,
		},
		report:    &countingCollector{Collector: rc},
		evidence:  ev,
		evidenceD: filepath.Join(dir, "screenshots"),
		logger:    logger,
	}
}

// healthyManager starts cleanly and serves page.
func healthyManager(page harness.Page) *mocks.MockSessionManager {
	m := new(mocks.MockSessionManager)
	m.On("Start", mock.Anything).Return(nil).Once()
	m.On("Page").Return(page, nil)
	m.On("Stop", mock.Anything).Return(browser.TeardownResult{Duration: time.Millisecond}).Once()
	return m
}

func (f *fixture) runner(m harness.SessionManager, sink harness.Sink) *harness.Runner {
	return harness.NewRunner(f.suite, func(int) harness.SessionManager { return m }, f.evidence, f.report, sink, f.logger)
}

func (f *fixture) run(t *testing.T, m harness.SessionManager, scenarios ...harness.Scenario) *reporting.Report {
	t.Helper()
	report, err := f.runner(m, nil).Run(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, report.Entries, len(scenarios))
	return report
}

func passing(name string) harness.Scenario {
	return harness.Scenario{Name: name, Body: func(ctx context.Context, sc *harness.ScenarioContext) error {
		return sc.Navigate(ctx, "/")
	}}
}

var errBoom = errors.New("boom")
