package browser

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoActiveSession is returned when the session is requested before Start or after Stop.
	ErrNoActiveSession = errors.New("browser: no active session")
	// ErrSessionActive is returned by Start when the manager already owns a live session.
	ErrSessionActive = errors.New("browser: a session is already active")
	// ErrUnconfirmedElement means an interaction was attempted on an element whose
	// confirmed condition does not cover it (clicking an element only known to be present).
	ErrUnconfirmedElement = errors.New("browser: element not confirmed for this interaction")
	// ErrStaleElement means the element was obtained by a different scenario.
	ErrStaleElement = errors.New("browser: element belongs to another scenario")
)

// SessionStartError reports that the browser could not be launched or did not respond.
type SessionStartError struct {
	Err error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("failed to start browser session: %v", e.Err)
}

func (e *SessionStartError) Unwrap() error { return e.Err }

// WaitTimeoutError reports a wait whose condition was not met within its timeout.
// Elapsed is never smaller than Timeout.
type WaitTimeoutError struct {
	Locator   Locator
	Condition Condition
	Elapsed   time.Duration
	Timeout   time.Duration
	// LastErr is the most recent probe error, if any probe failed.
	LastErr error
}

func (e *WaitTimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s to be %s (timeout %s)",
		e.Elapsed.Round(time.Millisecond), e.Locator, e.Condition, e.Timeout)
	if e.LastErr != nil {
		msg += fmt.Sprintf(": last probe error: %v", e.LastErr)
	}
	return msg
}

func (e *WaitTimeoutError) Unwrap() error { return e.LastErr }

// TeardownError wraps a failure that happened while closing the browser.
type TeardownError struct {
	Err error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("browser teardown failed: %v", e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// TeardownResult is what Stop reports instead of returning an error.
type TeardownResult struct {
	// Err is nil or a *TeardownError.
	Err      error
	Duration time.Duration
}

// OK reports whether teardown completed cleanly.
func (r TeardownResult) OK() bool { return r.Err == nil }
