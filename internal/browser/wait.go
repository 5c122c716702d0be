package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/uicheck/internal/config"
)

// Condition is the closed set of states a wait can confirm.
type Condition int

const (
	// Present: the element is attached to the DOM.
	Present Condition = iota + 1
	// Visible: present, rendered, and with a non-empty box.
	Visible
	// Clickable: visible and neither disabled nor excluded from pointer events.
	Clickable
)

func (c Condition) String() string {
	switch c {
	case Present:
		return "present"
	case Visible:
		return "visible"
	case Clickable:
		return "clickable"
	default:
		return fmt.Sprintf("condition(%d)", int(c))
	}
}

// ParseCondition maps "present", "visible" or "clickable" to a Condition.
func ParseCondition(s string) (Condition, error) {
	for _, c := range []Condition{Present, Visible, Clickable} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown condition %q", s)
}

func (c Condition) satisfiedBy(res ProbeResult, index int) bool {
	switch c {
	case Present:
		return res.Count > index
	case Visible:
		return res.Count > index && res.Visible
	case Clickable:
		return res.Count > index && res.Clickable
	default:
		return false
	}
}

// ProbeResult is one observation of the live DOM for a locator.
type ProbeResult struct {
	Count     int  `json:"count"`
	Visible   bool `json:"visible"`
	Clickable bool `json:"clickable"`
}

// Prober observes the page. Visible and Clickable describe the index-th match.
type Prober interface {
	Probe(ctx context.Context, loc Locator, index int) (ProbeResult, error)
}

const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 250 * time.Millisecond
)

// WaitOptions tunes a single wait. Zero values fall back to the defaults.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
	// Index selects which match must satisfy the condition.
	Index int
	// Owner is stamped on the returned Element.
	Owner uint64
}

func (o WaitOptions) normalized() WaitOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Interval > config.MaxPollInterval {
		o.Interval = config.MaxPollInterval
	}
	if o.Index < 0 {
		o.Index = 0
	}
	return o
}

// WaitFor polls p until the locator's match satisfies cond or the timeout elapses.
//
// Probe errors count as "not yet"; the last one is attached to the timeout
// error. The loop never sleeps past the deadline and always probes once more
// at the deadline, so a timeout is reported no earlier than opts.Timeout and
// no later than one interval after it. Cancellation of ctx returns the
// context's cause instead of a WaitTimeoutError.
func WaitFor(ctx context.Context, p Prober, loc Locator, cond Condition, opts WaitOptions) (Element, error) {
	opts = opts.normalized()
	start := time.Now()
	deadline := start.Add(opts.Timeout)

	var lastErr error
	for {
		now := time.Now()
		probeBudget := deadline.Sub(now)
		if probeBudget < opts.Interval {
			probeBudget = opts.Interval
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeBudget)
		res, err := p.Probe(probeCtx, loc, opts.Index)
		cancel()

		if err == nil && cond.satisfiedBy(res, opts.Index) {
			return Element{Locator: loc, Index: opts.Index, Confirmed: cond, owner: opts.Owner}, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return Element{}, fmt.Errorf("waiting for %s to be %s: %w", loc, cond, context.Cause(ctx))
		}

		now = time.Now()
		if !now.Before(deadline) {
			return Element{}, &WaitTimeoutError{
				Locator:   loc,
				Condition: cond,
				Elapsed:   now.Sub(start),
				Timeout:   opts.Timeout,
				LastErr:   lastErr,
			}
		}

		sleep := opts.Interval
		if remaining := deadline.Sub(now); remaining < sleep {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Element{}, fmt.Errorf("waiting for %s to be %s: %w", loc, cond, context.Cause(ctx))
		case <-timer.C:
		}
	}
}
