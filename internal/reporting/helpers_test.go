package reporting

import (
	"bytes"
	"errors"
	"time"

	"github.com/xkilldash9x/uicheck/internal/evidence"
)

// bufferWriteCloser captures output and can simulate I/O failures.
type bufferWriteCloser struct {
	bytes.Buffer
	failWrite bool
	failClose bool
	closed    bool
}

func (b *bufferWriteCloser) Write(p []byte) (int, error) {
	if b.failWrite {
		return 0, errors.New("simulated write failure")
	}
	return b.Buffer.Write(p)
}

func (b *bufferWriteCloser) Close() error {
	b.closed = true
	if b.failClose {
		return errors.New("simulated close failure")
	}
	return nil
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// sampleReport has one entry per terminal outcome, in declared order.
func sampleReport(evidenceDir string) *Report {
	return &Report{
		RunID:      "6f1c1f5e-1111-4222-8333-444455556666",
		Tool:       ToolName,
		Version:    "v0.0.0-test",
		BaseURL:    "https://shop.example.test",
		StartedAt:  testStart,
		FinishedAt: testStart.Add(42 * time.Second),
		Entries: []Entry{
			{
				Index:      0,
				Scenario:   "product-search-results",
				Outcome:    OutcomePassed,
				FailedStep: -1,
				Steps: []StepRecord{
					{Index: 0, Kind: StepNavigate, Description: "navigate to /", Status: StepPassed, Duration: time.Second},
					{Index: 1, Kind: StepAssert, Description: `title contains "Headphones"`, Status: StepPassed},
				},
				Logs:      []string{"12:00:01.000\tINFO\tsearching"},
				StartedAt: testStart,
				Duration:  3 * time.Second,
				Evidence: &evidence.Artifact{
					Scenario: "product-search-results",
					Path:     evidenceDir + "/1772366400000-000001-product-search-results.png",
					Size:     10,
				},
			},
			{
				Index:      1,
				Scenario:   "footer-links-presence",
				Outcome:    OutcomeFailed,
				FailedStep: 2,
				Steps: []StepRecord{
					{Index: 0, Kind: StepNavigate, Description: "navigate to /", Status: StepPassed},
					{Index: 1, Kind: StepWait, Description: "wait until id=navFooter is visible", Status: StepPassed},
					{Index: 2, Kind: StepAssert, Description: "link=Careers in id=navFooter is present", Status: StepFailed, Error: "expected element link=Careers in id=navFooter to be present"},
				},
				Error:     "assertion failed: expected element link=Careers in id=navFooter to be present",
				ErrorKind: "assertion_failure",
				StartedAt: testStart.Add(3 * time.Second),
				Duration:  2 * time.Second,
				Evidence: &evidence.Artifact{
					Scenario: "footer-links-presence",
					Path:     evidenceDir + "/1772366403000-000002-footer-links-presence.png",
				},
			},
			{
				Index:         2,
				Scenario:      "search-suggestions",
				Outcome:       OutcomeErrored,
				FailedStep:    -1,
				Error:         "scenario panicked: boom",
				ErrorKind:     "panic",
				EvidenceError: "evidence capture for \"search-suggestions\" failed: disk full",
				StartedAt:     testStart.Add(5 * time.Second),
				Duration:      time.Second,
			},
		},
	}
}
