package harness

import (
	"context"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/evidence"
	"github.com/xkilldash9x/uicheck/internal/reporting"
)

// Page is the part of a browser session a scenario drives.
type Page interface {
	browser.Prober
	evidence.Shooter
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	Click(ctx context.Context, el browser.Element) error
	SendKeys(ctx context.Context, el browser.Element, text string) error
	Submit(ctx context.Context, el browser.Element) error
}

// SessionManager owns one browser for one worker.
type SessionManager interface {
	Start(ctx context.Context) error
	Page() (Page, error)
	// Stop never fails; problems are reported in the result.
	Stop(ctx context.Context) browser.TeardownResult
}

// ManagerFactory builds the session manager for the given worker.
type ManagerFactory func(worker int) SessionManager

// EvidenceCapturer takes the per-scenario screenshot.
type EvidenceCapturer interface {
	Capture(ctx context.Context, shooter evidence.Shooter, scenario string) (evidence.Artifact, error)
}

// ReportCollector accumulates entries and writes the report once.
type ReportCollector interface {
	Record(entry reporting.Entry) error
	SetSuiteError(err error)
	Flush() error
	Snapshot() *reporting.Report
}

// Sink persists a flushed report, for example to the run history database.
type Sink interface {
	PersistReport(ctx context.Context, report *reporting.Report) error
}

type browserManager struct {
	*browser.Manager
}

// FromBrowser adapts a chromedp-backed manager to SessionManager.
func FromBrowser(m *browser.Manager) SessionManager {
	return browserManager{Manager: m}
}

func (m browserManager) Page() (Page, error) {
	s, err := m.Session()
	if err != nil {
		return nil, err
	}
	return s, nil
}
