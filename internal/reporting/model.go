package reporting

import (
	"time"

	"github.com/xkilldash9x/uicheck/internal/evidence"
)

// Outcome is the state of a scenario. Passed, Failed and Errored are terminal.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeRunning Outcome = "running"
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeErrored Outcome = "errored"
)

// Terminal reports whether no further transition is possible.
func (o Outcome) Terminal() bool {
	return o == OutcomePassed || o == OutcomeFailed || o == OutcomeErrored
}

// StepKind classifies a recorded step.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepLocate   StepKind = "locate"
	StepWait     StepKind = "wait"
	StepAct      StepKind = "act"
	StepAssert   StepKind = "assert"
	StepCapture  StepKind = "capture"
)

// StepStatus is the result of one step.
type StepStatus string

const (
	StepPassed StepStatus = "passed"
	StepFailed StepStatus = "failed"
)

// StepRecord is one executed step of a scenario.
type StepRecord struct {
	Index       int           `json:"index"`
	Kind        StepKind      `json:"kind"`
	Description string        `json:"description"`
	Status      StepStatus    `json:"status"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Entry is the recorded result of one scenario.
type Entry struct {
	// Index is the scenario's position in declared order.
	Index       int     `json:"index"`
	Scenario    string  `json:"scenario"`
	Description string  `json:"description,omitempty"`
	Outcome     Outcome `json:"outcome"`
	// FailedStep is the index into Steps of the step that ended the scenario, or -1.
	FailedStep    int                `json:"failed_step"`
	Steps         []StepRecord       `json:"steps"`
	Logs          []string           `json:"logs,omitempty"`
	Evidence      *evidence.Artifact `json:"evidence,omitempty"`
	EvidenceError string             `json:"evidence_error,omitempty"`
	// Error is the message of the failure or error cause; ErrorKind names its type.
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Err keeps the original error for in-process inspection.
	Err error `json:"-"`
}

// Failing returns the step that ended the scenario, if any.
func (e *Entry) Failing() (StepRecord, bool) {
	if e.FailedStep < 0 || e.FailedStep >= len(e.Steps) {
		return StepRecord{}, false
	}
	return e.Steps[e.FailedStep], true
}

// Report aggregates the entries of one suite run.
type Report struct {
	RunID      string    `json:"run_id"`
	Tool       string    `json:"tool"`
	Version    string    `json:"version"`
	BaseURL    string    `json:"base_url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Entries    []Entry   `json:"entries"`
	// SuiteError is set when the suite could not run normally, e.g. the browser did not start.
	SuiteError string `json:"suite_error,omitempty"`
}

// Summary counts entries per outcome.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Entries)}
	for _, e := range r.Entries {
		switch e.Outcome {
		case OutcomePassed:
			s.Passed++
		case OutcomeFailed:
			s.Failed++
		default:
			s.Errored++
		}
	}
	return s
}

// Passed reports whether every entry passed.
func (r *Report) Passed() bool {
	s := r.Summary()
	return s.Passed == s.Total
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
