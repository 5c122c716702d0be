package scenarios

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/harness"
)

// Step actions understood in suite files.
const (
	ActionNavigate            = "navigate"
	ActionWaitVisible         = "wait_visible"
	ActionWaitPresent         = "wait_present"
	ActionWaitClickable       = "wait_clickable"
	ActionType                = "type"
	ActionSubmit              = "submit"
	ActionClick               = "click"
	ActionAssertTitleContains = "assert_title_contains"
	ActionAssertDisplayed     = "assert_displayed"
	ActionAssertPresent       = "assert_present"
	ActionAssertCountAtLeast  = "assert_count_at_least"
)

// SuiteFile is the on-disk shape of a declarative suite.
type SuiteFile struct {
	Scenarios []ScenarioSpec `yaml:"scenarios"`
}

// ScenarioSpec describes one scenario as a list of steps.
type ScenarioSpec struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Steps       []StepSpec `yaml:"steps"`
}

// StepSpec is a single step. Which fields apply depends on Action:
//
//	navigate:                    url
//	wait_*:                      locator, within, as, timeout
//	type:                        element, text
//	submit, click:               element
//	assert_title_contains:       text
//	assert_displayed / _present: locator, within
//	assert_count_at_least:       locator, within, count
type StepSpec struct {
	Action  string        `yaml:"action"`
	URL     string        `yaml:"url,omitempty"`
	Locator string        `yaml:"locator,omitempty"`
	Within  string        `yaml:"within,omitempty"`
	Element string        `yaml:"element,omitempty"`
	Text    string        `yaml:"text,omitempty"`
	Count   int           `yaml:"count,omitempty"`
	As      string        `yaml:"as,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// LoadFile reads a suite file from disk.
func LoadFile(path string) ([]harness.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	scenarios, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenarios, nil
}

// Parse decodes and validates a suite. Unknown keys are rejected.
func Parse(data []byte) ([]harness.Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file SuiteFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("scenario file is empty")
		}
		return nil, fmt.Errorf("decoding scenario file: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario file declares no scenarios")
	}

	seen := make(map[string]bool, len(file.Scenarios))
	out := make([]harness.Scenario, 0, len(file.Scenarios))
	for i, spec := range file.Scenarios {
		if spec.Name == "" {
			return nil, fmt.Errorf("scenario %d has no name", i)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate scenario name %q", spec.Name)
		}
		seen[spec.Name] = true

		sc, err := spec.compile()
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", spec.Name, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// step is a validated StepSpec.
type step struct {
	spec    StepSpec
	locator browser.Locator
	cond    browser.Condition
}

func (s ScenarioSpec) compile() (harness.Scenario, error) {
	if len(s.Steps) == 0 {
		return harness.Scenario{}, fmt.Errorf("no steps")
	}
	named := map[string]bool{}
	steps := make([]step, 0, len(s.Steps))
	for i, spec := range s.Steps {
		st, err := validateStep(spec, named)
		if err != nil {
			return harness.Scenario{}, fmt.Errorf("step %d (%s): %w", i, spec.Action, err)
		}
		steps = append(steps, st)
	}

	return harness.Scenario{
		Name:        s.Name,
		Description: s.Description,
		Body: func(ctx context.Context, sc *harness.ScenarioContext) error {
			return runSteps(ctx, sc, steps)
		},
	}, nil
}

func validateStep(spec StepSpec, named map[string]bool) (step, error) {
	st := step{spec: spec}
	if spec.As != "" && !isWait(spec.Action) {
		return st, fmt.Errorf("only wait steps can name an element")
	}

	needLocator := func() error {
		if spec.Locator == "" {
			return fmt.Errorf("locator is required")
		}
		loc, err := browser.ParseLocator(spec.Locator)
		if err != nil {
			return err
		}
		if spec.Within != "" {
			parent, err := browser.ParseLocator(spec.Within)
			if err != nil {
				return fmt.Errorf("within: %w", err)
			}
			loc = loc.Within(parent)
		}
		st.locator = loc
		return nil
	}
	needElement := func() error {
		if spec.Element == "" {
			return fmt.Errorf("element is required")
		}
		if !named[spec.Element] {
			return fmt.Errorf("element %q is not named by an earlier wait step", spec.Element)
		}
		return nil
	}

	var err error
	switch spec.Action {
	case ActionNavigate:
		if spec.URL == "" {
			err = fmt.Errorf("url is required")
		}
	case ActionWaitVisible, ActionWaitPresent, ActionWaitClickable:
		st.cond, _ = browser.ParseCondition(spec.Action[len("wait_"):])
		if spec.Timeout < 0 {
			return st, fmt.Errorf("timeout must not be negative")
		}
		if err = needLocator(); err == nil && spec.As != "" {
			named[spec.As] = true
		}
	case ActionType:
		if spec.Text == "" {
			return st, fmt.Errorf("text is required")
		}
		err = needElement()
	case ActionSubmit, ActionClick:
		err = needElement()
	case ActionAssertTitleContains:
		if spec.Text == "" {
			err = fmt.Errorf("text is required")
		}
	case ActionAssertDisplayed, ActionAssertPresent:
		err = needLocator()
	case ActionAssertCountAtLeast:
		if spec.Count < 1 {
			return st, fmt.Errorf("count must be at least 1")
		}
		err = needLocator()
	case "":
		err = fmt.Errorf("action is required")
	default:
		err = fmt.Errorf("unknown action %q", spec.Action)
	}
	return st, err
}

func isWait(action string) bool {
	return action == ActionWaitVisible || action == ActionWaitPresent || action == ActionWaitClickable
}

func runSteps(ctx context.Context, sc *harness.ScenarioContext, steps []step) error {
	elements := map[string]browser.Element{}
	for _, st := range steps {
		var err error
		switch st.spec.Action {
		case ActionNavigate:
			err = sc.Navigate(ctx, st.spec.URL)
		case ActionWaitVisible, ActionWaitPresent, ActionWaitClickable:
			var el browser.Element
			el, err = sc.Wait(ctx, st.locator, st.cond, st.spec.Timeout)
			if err == nil && st.spec.As != "" {
				elements[st.spec.As] = el
			}
		case ActionType:
			err = sc.Type(ctx, elements[st.spec.Element], st.spec.Text)
		case ActionSubmit:
			err = sc.Submit(ctx, elements[st.spec.Element])
		case ActionClick:
			err = sc.Click(ctx, elements[st.spec.Element])
		case ActionAssertTitleContains:
			err = sc.AssertTitleContains(ctx, st.spec.Text)
		case ActionAssertDisplayed:
			err = sc.AssertDisplayed(ctx, st.locator)
		case ActionAssertPresent:
			err = sc.AssertPresent(ctx, st.locator)
		case ActionAssertCountAtLeast:
			err = sc.AssertCountAtLeast(ctx, st.locator, st.spec.Count)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
