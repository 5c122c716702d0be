package harness

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/reporting"
)

// Scenario is one independent test case.
type Scenario struct {
	Name        string
	Description string
	Body        func(ctx context.Context, sc *ScenarioContext) error
}

// ScenarioContext is handed to a scenario body. Every helper records a step;
// after the first failing step the remaining helpers return
// ErrScenarioAborted without touching the page.
//
// A ScenarioContext belongs to one scenario and is not safe for concurrent use.
type ScenarioContext struct {
	name     string
	baseURL  *url.URL
	page     Page
	owner    uint64
	waitOpts browser.WaitOptions
	logger   *zap.Logger

	steps      []reporting.StepRecord
	failedStep int
	err        error
}

func newScenarioContext(name string, baseURL *url.URL, page Page, owner uint64, waitOpts browser.WaitOptions, logger *zap.Logger) *ScenarioContext {
	waitOpts.Owner = owner
	return &ScenarioContext{
		name:       name,
		baseURL:    baseURL,
		page:       page,
		owner:      owner,
		waitOpts:   waitOpts,
		logger:     logger,
		failedStep: -1,
	}
}

// Name of the running scenario.
func (s *ScenarioContext) Name() string { return s.name }

// BaseURL is the site under test.
func (s *ScenarioContext) BaseURL() *url.URL {
	u := *s.baseURL
	return &u
}

// Logger writes to the suite log and to the scenario's report entry.
func (s *ScenarioContext) Logger() *zap.Logger { return s.logger }

// Err returns the error of the first failed step, or nil.
func (s *ScenarioContext) Err() error { return s.err }

// Steps returns the steps recorded so far.
func (s *ScenarioContext) Steps() []reporting.StepRecord {
	return append([]reporting.StepRecord(nil), s.steps...)
}

// FailedStep is the index of the failed step, or -1.
func (s *ScenarioContext) FailedStep() int { return s.failedStep }

func (s *ScenarioContext) step(kind reporting.StepKind, description string, fn func() error) error {
	if s.err != nil {
		return ErrScenarioAborted
	}

	start := time.Now()
	err := fn()
	rec := reporting.StepRecord{
		Index:       len(s.steps),
		Kind:        kind,
		Description: description,
		Status:      reporting.StepPassed,
		Duration:    time.Since(start),
	}
	if err != nil {
		rec.Status = reporting.StepFailed
		rec.Error = err.Error()
		s.err = err
		s.failedStep = rec.Index
		s.logger.Warn("Step failed.", zap.Int("step", rec.Index), zap.String("kind", string(kind)),
			zap.String("description", description), zap.Error(err))
	} else {
		s.logger.Debug("Step passed.", zap.Int("step", rec.Index), zap.String("kind", string(kind)),
			zap.String("description", description), zap.Duration("duration", rec.Duration))
	}
	s.steps = append(s.steps, rec)
	return err
}

// Navigate loads target. Relative targets resolve against the base URL.
func (s *ScenarioContext) Navigate(ctx context.Context, target string) error {
	return s.step(reporting.StepNavigate, "navigate to "+target, func() error {
		u, err := s.baseURL.Parse(target)
		if err != nil {
			return fmt.Errorf("invalid navigation target %q: %w", target, err)
		}
		return s.page.Navigate(ctx, u.String())
	})
}

// Wait blocks until loc meets cond. A zero timeout uses the suite default.
func (s *ScenarioContext) Wait(ctx context.Context, loc browser.Locator, cond browser.Condition, timeout time.Duration) (browser.Element, error) {
	var el browser.Element
	opts := s.waitOpts
	if timeout > 0 {
		opts.Timeout = timeout
	}
	err := s.step(reporting.StepWait, fmt.Sprintf("wait until %s is %s", loc, cond), func() error {
		var err error
		el, err = browser.WaitFor(ctx, s.page, loc, cond, opts)
		return err
	})
	return el, err
}

func (s *ScenarioContext) WaitVisible(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	return s.Wait(ctx, loc, browser.Visible, 0)
}

func (s *ScenarioContext) WaitPresent(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	return s.Wait(ctx, loc, browser.Present, 0)
}

func (s *ScenarioContext) WaitClickable(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	return s.Wait(ctx, loc, browser.Clickable, 0)
}

// FindAll returns every current match of loc without waiting. No match is
// not a failure.
func (s *ScenarioContext) FindAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	var elements []browser.Element
	err := s.step(reporting.StepLocate, "find all "+loc.String(), func() error {
		res, err := s.page.Probe(ctx, loc, 0)
		if err != nil {
			return fmt.Errorf("locating %s: %w", loc, err)
		}
		elements = browser.FindAll(res, loc, s.owner)
		return nil
	})
	return elements, err
}

func (s *ScenarioContext) Type(ctx context.Context, el browser.Element, text string) error {
	return s.step(reporting.StepAct, fmt.Sprintf("type %q into %s", text, el.Locator), func() error {
		if err := el.OwnedBy(s.owner); err != nil {
			return err
		}
		return s.page.SendKeys(ctx, el, text)
	})
}

func (s *ScenarioContext) Submit(ctx context.Context, el browser.Element) error {
	return s.step(reporting.StepAct, "submit "+el.Locator.String(), func() error {
		if err := el.OwnedBy(s.owner); err != nil {
			return err
		}
		return s.page.Submit(ctx, el)
	})
}

func (s *ScenarioContext) Click(ctx context.Context, el browser.Element) error {
	return s.step(reporting.StepAct, "click "+el.Locator.String(), func() error {
		if err := el.OwnedBy(s.owner); err != nil {
			return err
		}
		return s.page.Click(ctx, el)
	})
}

// Displayed reports whether the element is currently rendered.
func (s *ScenarioContext) Displayed(ctx context.Context, el browser.Element) (bool, error) {
	var shown bool
	err := s.step(reporting.StepLocate, "check "+el.Locator.String()+" is displayed", func() error {
		if err := el.OwnedBy(s.owner); err != nil {
			return err
		}
		res, err := s.page.Probe(ctx, el.Locator, el.Index)
		if err != nil {
			return fmt.Errorf("probing %s: %w", el.Locator, err)
		}
		shown = res.Count > el.Index && res.Visible
		return nil
	})
	return shown, err
}

// Title reads the page title.
func (s *ScenarioContext) Title(ctx context.Context) (string, error) {
	var title string
	err := s.step(reporting.StepLocate, "read page title", func() error {
		var err error
		title, err = s.page.Title(ctx)
		return err
	})
	return title, err
}

func (s *ScenarioContext) AssertTitleContains(ctx context.Context, substr string) error {
	return s.step(reporting.StepAssert, fmt.Sprintf("title contains %q", substr), func() error {
		title, err := s.page.Title(ctx)
		if err != nil {
			return fmt.Errorf("reading title: %w", err)
		}
		if !strings.Contains(title, substr) {
			return &AssertionFailure{Message: fmt.Sprintf("expected title %q to contain %q", title, substr)}
		}
		return nil
	})
}

// AssertDisplayed checks, without waiting, that the first match of loc is visible.
func (s *ScenarioContext) AssertDisplayed(ctx context.Context, loc browser.Locator) error {
	return s.step(reporting.StepAssert, loc.String()+" is displayed", func() error {
		res, err := s.page.Probe(ctx, loc, 0)
		if err != nil {
			return fmt.Errorf("probing %s: %w", loc, err)
		}
		switch {
		case res.Count == 0:
			return &AssertionFailure{Locator: &loc, Message: fmt.Sprintf("expected element %s to be displayed, but it is absent", loc)}
		case !res.Visible:
			return &AssertionFailure{Locator: &loc, Message: fmt.Sprintf("expected element %s to be displayed, but it is hidden", loc)}
		}
		return nil
	})
}

// AssertElementDisplayed checks that an element obtained earlier in the
// scenario is still rendered. Unlike Displayed, a hidden element fails the step.
func (s *ScenarioContext) AssertElementDisplayed(ctx context.Context, el browser.Element) error {
	loc := el.Locator
	return s.step(reporting.StepAssert, loc.String()+" is still displayed", func() error {
		if err := el.OwnedBy(s.owner); err != nil {
			return err
		}
		res, err := s.page.Probe(ctx, loc, el.Index)
		if err != nil {
			return fmt.Errorf("probing %s: %w", loc, err)
		}
		switch {
		case res.Count <= el.Index:
			return &AssertionFailure{Locator: &loc, Message: fmt.Sprintf("expected element %s to be displayed, but it is gone", loc)}
		case !res.Visible:
			return &AssertionFailure{Locator: &loc, Message: fmt.Sprintf("expected element %s to be displayed, but it is hidden", loc)}
		}
		return nil
	})
}

// AssertPresent checks, without waiting, that loc matches at least one element.
func (s *ScenarioContext) AssertPresent(ctx context.Context, loc browser.Locator) error {
	return s.step(reporting.StepAssert, loc.String()+" is present", func() error {
		res, err := s.page.Probe(ctx, loc, 0)
		if err != nil {
			return fmt.Errorf("probing %s: %w", loc, err)
		}
		if res.Count == 0 {
			return &AssertionFailure{Locator: &loc, Message: fmt.Sprintf("expected element %s to be present", loc)}
		}
		return nil
	})
}

func (s *ScenarioContext) AssertCountAtLeast(ctx context.Context, loc browser.Locator, n int) error {
	return s.step(reporting.StepAssert, fmt.Sprintf("at least %d of %s", n, loc), func() error {
		res, err := s.page.Probe(ctx, loc, 0)
		if err != nil {
			return fmt.Errorf("probing %s: %w", loc, err)
		}
		if res.Count < n {
			return &AssertionFailure{Locator: &loc, Message: fmt.Sprintf("expected at least %d of %s, found %d", n, loc, res.Count)}
		}
		return nil
	})
}

// Logf adds a line to the scenario log. It is not a step.
func (s *ScenarioContext) Logf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
