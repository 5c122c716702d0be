package browser

import "fmt"

// Action names an element interaction for confirmation checks.
type Action string

const (
	ActionClick  Action = "click"
	ActionType   Action = "type"
	ActionSubmit Action = "submit"
)

// Element is a handle to one match of a Locator. The zero Element is
// unconfirmed; usable Elements only come from WaitFor or FindAll.
type Element struct {
	Locator   Locator
	Index     int
	Confirmed Condition
	owner     uint64
}

// Owner returns the identifier of the scenario that obtained the element.
func (e Element) Owner() uint64 { return e.owner }

// Allows checks that the element's confirmed condition covers the action.
// Click needs Clickable; typing and submitting need Visible or Clickable.
func (e Element) Allows(a Action) error {
	var ok bool
	switch a {
	case ActionClick:
		ok = e.Confirmed == Clickable
	case ActionType, ActionSubmit:
		ok = e.Confirmed == Visible || e.Confirmed == Clickable
	}
	if ok {
		return nil
	}
	confirmed := "nothing"
	if e.Confirmed != 0 {
		confirmed = e.Confirmed.String()
	}
	return fmt.Errorf("%s on %s (confirmed %s): %w", a, e.Locator, confirmed, ErrUnconfirmedElement)
}

// OwnedBy returns ErrStaleElement if the element was obtained under another owner.
func (e Element) OwnedBy(owner uint64) error {
	if e.owner != owner {
		return fmt.Errorf("%s: %w", e.Locator, ErrStaleElement)
	}
	return nil
}

// FindAll returns one Present-confirmed Element per current match of loc.
// An empty result is not an error.
func FindAll(res ProbeResult, loc Locator, owner uint64) []Element {
	elements := make([]Element, 0, res.Count)
	for i := 0; i < res.Count; i++ {
		elements = append(elements, Element{Locator: loc, Index: i, Confirmed: Present, owner: owner})
	}
	return elements
}
