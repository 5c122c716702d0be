package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/reporting"
)

// ErrScenarioAborted is returned by every step helper after a step of the
// same scenario has failed. The browser is not touched again.
var ErrScenarioAborted = errors.New("harness: scenario aborted after a failed step")

// AssertionFailure reports an expectation about the page that did not hold.
type AssertionFailure struct {
	// Locator is set when the assertion was about an element.
	Locator *browser.Locator
	Message string
}

func (e *AssertionFailure) Error() string {
	return "assertion failed: " + e.Message
}

// PanicError wraps a value recovered from a scenario body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("scenario panicked: %v", e.Value)
}

// Error kinds recorded on report entries.
const (
	KindAssertion    = "assertion_failure"
	KindWaitTimeout  = "wait_timeout"
	KindSessionStart = "session_start"
	KindNoSession    = "no_active_session"
	KindUnconfirmed  = "unconfirmed_element"
	KindStaleElement = "stale_element"
	KindPanic        = "panic"
	KindCanceled     = "canceled"
	KindUnknown      = "error"
)

// Classify maps the error a scenario ended with to its terminal outcome and
// error kind. Assertion failures and wait timeouts anywhere in the chain fail
// the scenario; everything else errors it.
func Classify(err error) (reporting.Outcome, string) {
	if err == nil {
		return reporting.OutcomePassed, ""
	}

	var assertion *AssertionFailure
	if errors.As(err, &assertion) {
		return reporting.OutcomeFailed, KindAssertion
	}
	var timeout *browser.WaitTimeoutError
	if errors.As(err, &timeout) {
		return reporting.OutcomeFailed, KindWaitTimeout
	}

	var startErr *browser.SessionStartError
	var panicErr *PanicError
	switch {
	case errors.As(err, &startErr):
		return reporting.OutcomeErrored, KindSessionStart
	case errors.As(err, &panicErr):
		return reporting.OutcomeErrored, KindPanic
	case errors.Is(err, browser.ErrNoActiveSession):
		return reporting.OutcomeErrored, KindNoSession
	case errors.Is(err, browser.ErrUnconfirmedElement):
		return reporting.OutcomeErrored, KindUnconfirmed
	case errors.Is(err, browser.ErrStaleElement):
		return reporting.OutcomeErrored, KindStaleElement
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reporting.OutcomeErrored, KindCanceled
	default:
		return reporting.OutcomeErrored, KindUnknown
	}
}
