package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/config"
	"github.com/xkilldash9x/uicheck/internal/harness"
	"github.com/xkilldash9x/uicheck/internal/mocks"
	"github.com/xkilldash9x/uicheck/internal/observability"
)

const suiteYAML = `
scenarios:
  - name: home-title
    description: Homepage title mentions the store.
    steps:
      - {action: navigate, url: /}
      - {action: assert_title_contains, text: Amazon}
  - name: footer
    description: Footer renders.
    steps:
      - {action: navigate, url: /}
      - {action: wait_visible, locator: id=navFooter}
`

// resetForTest provides the single source of truth for resetting test state.
func resetForTest(t *testing.T) {
	t.Helper()
	cfgFile = ""
	// A silent logger wins the initialization race so commands never open a log file.
	observability.ResetForTest()
	observability.Initialize(config.LoggerConfig{Level: "fatal", Format: "console"}, zapcore.AddSync(io.Discard))
	t.Cleanup(func() {
		cfgFile = ""
		observability.ResetForTest()
	})
}

// writeFile creates name under a fresh temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// testConfig returns a valid config whose outputs live under t.TempDir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Logger.LogFile = ""
	cfg.Suite.BaseURL = "https://shop.example.test"
	cfg.Suite.DefaultTimeout = 100 * time.Millisecond
	cfg.Suite.PollInterval = 10 * time.Millisecond
	cfg.Suite.ScenarioFile = writeFile(t, "suite.yaml", suiteYAML)
	cfg.Evidence.Dir = filepath.Join(dir, "shots")
	cfg.Report.Path = filepath.Join(dir, "report.html")
	cfg.Report.Formats = []string{"json"}
	return cfg
}

// stubPage renders a fixed title and shows every element.
type stubPage struct {
	mu      sync.Mutex
	title   string
	visited []string
}

func (p *stubPage) Probe(context.Context, browser.Locator, int) (browser.ProbeResult, error) {
	return browser.ProbeResult{Count: 1, Visible: true, Clickable: true}, nil
}

func (p *stubPage) Screenshot(context.Context, bool, int) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\nstub"), nil
}

func (p *stubPage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visited = append(p.visited, url)
	return nil
}

func (p *stubPage) Title(context.Context) (string, error) { return p.title, nil }

func (p *stubPage) Click(context.Context, browser.Element) error            { return nil }
func (p *stubPage) SendKeys(context.Context, browser.Element, string) error { return nil }
func (p *stubPage) Submit(context.Context, browser.Element) error           { return nil }

// stubDeps runs every worker against page and fails the history database
// unless sink is given.
func stubDeps(page harness.Page, sink harness.Sink) (runDeps, *bool) {
	closed := new(bool)
	return runDeps{
		newManager: func(*config.Config, *zap.Logger) harness.ManagerFactory {
			return func(int) harness.SessionManager {
				m := new(mocks.MockSessionManager)
				m.On("Start", mock.Anything).Return(nil)
				m.On("Page").Return(page, nil)
				m.On("Stop", mock.Anything).Return(browser.TeardownResult{Duration: time.Millisecond})
				return m
			}
		},
		openStore: func(context.Context, string, *zap.Logger) (harness.Sink, func(), error) {
			if sink == nil {
				return nil, nil, errConnRefused
			}
			return sink, func() { *closed = true }, nil
		},
	}, closed
}
