// internal/reporting/sarif_reporter.go
package reporting

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uicheck/internal/observability"
	"github.com/xkilldash9x/uicheck/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "uicheck"
	ToolInfoURI  = "https://github.com/xkilldash9x/uicheck"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer collapses everything but alphanumerics, underscore and dot into one hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFReporter turns failed and errored scenarios into SARIF 2.1.0 results.
// Passed scenarios produce nothing. One rule is registered per error kind.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the rule index.
	mu    sync.Mutex
	rules map[string]bool
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						Rules:          []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer: writer,
		logger: observability.GetLogger().Named("sarif_reporter"),
		log:    log,
		rules:  make(map[string]bool),
	}
}

// Write buffers a result for every failed or errored entry. The document is
// encoded on Close.
func (r *SARIFReporter) Write(report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	for _, e := range report.Entries {
		if e.Outcome == OutcomePassed {
			continue
		}
		ruleID := r.ensureRule(e.ErrorKind)

		msg := fmt.Sprintf("Scenario %q %s", e.Scenario, e.Outcome)
		if step, ok := e.Failing(); ok {
			msg += fmt.Sprintf(" at step %d (%s: %s)", step.Index, step.Kind, step.Description)
		}
		if e.Error != "" {
			msg += ": " + e.Error
		}

		run.Results = append(run.Results, &sarif.Result{
			RuleID:     ruleID,
			Message:    &sarif.Message{Text: pString(msg)},
			Level:      mapOutcomeToSARIFLevel(e.Outcome),
			Locations:  r.createLocations(report, e),
			Properties: &sarif.PropertyBag{
				"scenario": e.Scenario,
				"outcome":  string(e.Outcome),
				"index":    e.Index,
			},
		})
	}

	inv := &sarif.Invocation{
		ExecutionSuccessful: report.SuiteError == "",
		StartTimeUTC:        pString(report.StartedAt.UTC().Format(time.RFC3339)),
	}
	if !report.FinishedAt.IsZero() {
		inv.EndTimeUTC = pString(report.FinishedAt.UTC().Format(time.RFC3339))
	}
	if report.SuiteError != "" {
		inv.ToolExecutionNotes = []*sarif.Notif{{
			Level:   sarif.LevelError,
			Message: &sarif.Message{Text: pString(report.SuiteError)},
		}}
	}
	run.Invocations = []*sarif.Invocation{inv}
	return nil
}

// Close encodes the SARIF log and closes the writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug("Finalizing SARIF report",
		zap.Int("total_results", len(r.log.Runs[0].Results)),
		zap.Int("total_rules", len(r.log.Runs[0].Tool.Driver.Rules)),
	)

	encoder := jsonAPI.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

func sanitizeRuleName(kind string) string {
	name := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(kind), "-"), "-")
	if name == "" {
		return "SCENARIO-ERROR"
	}
	return name
}

// ensureRule registers the rule for an error kind once and returns its ID.
// Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(kind string) string {
	ruleID := "UICHECK-" + sanitizeRuleName(kind)
	if r.rules[ruleID] {
		return ruleID
	}
	r.rules[ruleID] = true

	label := kind
	if label == "" {
		label = "scenario error"
	}
	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               ruleID,
		Name:             pString(label),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString("UI scenario ended with " + label)},
		Properties: &sarif.PropertyBag{
			"tags": []string{"ui", "uicheck"},
		},
	})
	return ruleID
}

// createLocations points at the screenshot when one exists, otherwise at the target site.
func (r *SARIFReporter) createLocations(report *Report, e Entry) []*sarif.Location {
	uri := report.BaseURL
	text := "Target site"
	if e.Evidence != nil {
		uri = relativeHref(".", e.Evidence.Path)
		text = "Screenshot of the page when the scenario ended"
	}
	return []*sarif.Location{{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(uri)},
		},
		Message: &sarif.Message{Text: pString(text)},
	}}
}

func mapOutcomeToSARIFLevel(o Outcome) sarif.Level {
	if o == OutcomeFailed {
		return sarif.LevelError
	}
	return sarif.LevelWarning
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
