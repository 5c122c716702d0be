package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// JUnitReporter writes the run as a JUnit XML document for CI systems.
// Failed scenarios become <failure>, errored ones <error>.
type JUnitReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: writer}
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func (r *JUnitReporter) Write(report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := report.Summary()
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", report.Tool)
	suites.CreateAttr("tests", fmt.Sprint(summary.Total))
	suites.CreateAttr("failures", fmt.Sprint(summary.Failed))
	suites.CreateAttr("errors", fmt.Sprint(summary.Errored))
	suites.CreateAttr("time", seconds(report.Duration()))

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", report.Tool)
	suite.CreateAttr("id", report.RunID)
	suite.CreateAttr("tests", fmt.Sprint(summary.Total))
	suite.CreateAttr("failures", fmt.Sprint(summary.Failed))
	suite.CreateAttr("errors", fmt.Sprint(summary.Errored))
	suite.CreateAttr("time", seconds(report.Duration()))
	suite.CreateAttr("timestamp", report.StartedAt.UTC().Format("2006-01-02T15:04:05"))

	props := suite.CreateElement("properties")
	prop := props.CreateElement("property")
	prop.CreateAttr("name", "base_url")
	prop.CreateAttr("value", report.BaseURL)
	if report.SuiteError != "" {
		prop = props.CreateElement("property")
		prop.CreateAttr("name", "suite_error")
		prop.CreateAttr("value", report.SuiteError)
	}

	for _, e := range report.Entries {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", e.Scenario)
		tc.CreateAttr("classname", report.Tool)
		tc.CreateAttr("time", seconds(e.Duration))

		var problem *etree.Element
		switch e.Outcome {
		case OutcomePassed:
		case OutcomeFailed:
			problem = tc.CreateElement("failure")
		default:
			problem = tc.CreateElement("error")
		}
		if problem != nil {
			problem.CreateAttr("message", e.Error)
			if e.ErrorKind != "" {
				problem.CreateAttr("type", e.ErrorKind)
			}
			var details strings.Builder
			if step, ok := e.Failing(); ok {
				fmt.Fprintf(&details, "failed at step %d (%s): %s\n", step.Index, step.Kind, step.Description)
			}
			details.WriteString(e.Error)
			problem.SetText(details.String())
		}

		if len(e.Logs) > 0 {
			tc.CreateElement("system-out").SetText(strings.Join(e.Logs, "\n"))
		}
		if e.Evidence != nil || e.EvidenceError != "" {
			var errOut strings.Builder
			if e.Evidence != nil {
				fmt.Fprintf(&errOut, "[[ATTACHMENT|%s]]", e.Evidence.Path)
			}
			if e.EvidenceError != "" {
				fmt.Fprintf(&errOut, "evidence capture failed: %s", e.EvidenceError)
			}
			tc.CreateElement("system-err").SetText(errOut.String())
		}
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(r.writer); err != nil {
		return fmt.Errorf("failed to write JUnit report: %w", err)
	}
	return nil
}

func (r *JUnitReporter) Close() error {
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}
