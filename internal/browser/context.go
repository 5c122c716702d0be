package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary that is also canceled when
// secondary ends. Values (the chromedp target in particular) come from
// primary only. When secondary ends first, its error is recorded as the cause
// so context.Cause reports a secondary timeout as a deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel(context.Cause(secondary))
		case <-combined.Done():
		}
	}()

	return combined, func() { cancel(context.Canceled) }
}

// valueOnlyContext keeps the parent's values but drops its deadline and
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                    { return nil }
func (valueOnlyContext) Err() error                               { return nil }

// Detach returns a context that carries ctx's values but is never canceled by it.
// Teardown and evidence capture use it so they still run once the suite context ends.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
