package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Strategy selects how a Locator's selector is interpreted.
type Strategy int

const (
	ByID Strategy = iota + 1
	ByCSS
	ByXPath
	ByLinkText
)

var strategyNames = map[Strategy]string{
	ByID:       "id",
	ByCSS:      "css",
	ByXPath:    "xpath",
	ByLinkText: "link",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Locator is an immutable query descriptor. A Locator may be scoped under the
// first element matched by a parent Locator.
type Locator struct {
	Strategy Strategy
	Selector string
	parent   *Locator
}

func ID(id string) Locator         { return Locator{Strategy: ByID, Selector: id} }
func CSS(selector string) Locator  { return Locator{Strategy: ByCSS, Selector: selector} }
func XPath(expr string) Locator    { return Locator{Strategy: ByXPath, Selector: expr} }
func LinkText(text string) Locator { return Locator{Strategy: ByLinkText, Selector: text} }

// Within returns a copy of l that only matches inside the first element matched by parent.
func (l Locator) Within(parent Locator) Locator {
	p := parent
	l.parent = &p
	return l
}

// Parent returns the scoping locator, if any.
func (l Locator) Parent() (Locator, bool) {
	if l.parent == nil {
		return Locator{}, false
	}
	return *l.parent, true
}

// String renders the locator in the same form ParseLocator accepts, with
// scoping shown as " in ".
func (l Locator) String() string {
	s := l.Strategy.String() + "=" + l.Selector
	if l.parent != nil {
		s += " in " + l.parent.String()
	}
	return s
}

// Equal reports whether two locators describe the same query, including scope.
func (l Locator) Equal(other Locator) bool {
	if l.Strategy != other.Strategy || l.Selector != other.Selector {
		return false
	}
	if (l.parent == nil) != (other.parent == nil) {
		return false
	}
	return l.parent == nil || l.parent.Equal(*other.parent)
}

// ParseLocator reads "strategy=selector" where strategy is id, css, xpath or link.
// A bare selector without a known prefix is treated as CSS.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}
	prefix, rest, found := strings.Cut(s, "=")
	if found {
		for strategy, name := range strategyNames {
			if strings.EqualFold(strings.TrimSpace(prefix), name) {
				rest = strings.TrimSpace(rest)
				if rest == "" {
					return Locator{}, fmt.Errorf("locator %q has an empty selector", s)
				}
				return Locator{Strategy: strategy, Selector: rest}, nil
			}
		}
	}
	return CSS(s), nil
}

// listExpr compiles the locator into a JavaScript expression that evaluates to
// an array of matching nodes in document order.
func (l Locator) listExpr() string {
	root := "document"
	if l.parent != nil {
		root = "(" + l.parent.listExpr() + ")[0]"
	}
	sel := jsString(l.Selector)

	var body string
	switch l.Strategy {
	case ByID:
		body = "return Array.from(r.querySelectorAll('#'+CSS.escape(" + sel + ")));"
	case ByXPath:
		body = "var s=document.evaluate(" + sel + ",r,null,XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);" +
			"var o=[];for(var i=0;i<s.snapshotLength;i++){o.push(s.snapshotItem(i));}return o;"
	case ByLinkText:
		body = "return Array.from(r.querySelectorAll('a')).filter(function(a){return (a.textContent||'').trim()===" + sel + ";});"
	default:
		body = "return Array.from(r.querySelectorAll(" + sel + "));"
	}
	return "(function(r){if(!r){return [];}" + body + "})(" + root + ")"
}

// nodeExpr is a JS path to the index-th match, usable with chromedp.ByJSPath.
func (l Locator) nodeExpr(index int) string {
	return fmt.Sprintf("(%s)[%d]", l.listExpr(), index)
}

// probeExpr evaluates to {count, visible, clickable} for the index-th match.
func (l Locator) probeExpr(index int) string {
	return `(function(){var l=` + l.listExpr() + `;var e=l[` + fmt.Sprint(index) + `];` +
		`var res={count:l.length,visible:false,clickable:false};` +
		`if(!e||e.nodeType!==1){return res;}` +
		`var st=window.getComputedStyle(e);var rc=e.getBoundingClientRect();` +
		`res.visible=st.display!=='none'&&st.visibility!=='hidden'&&parseFloat(st.opacity||'1')>0&&rc.width>0&&rc.height>0;` +
		`res.clickable=res.visible&&!e.disabled&&st.pointerEvents!=='none';` +
		`return res;})()`
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// Marshaling a Go string cannot fail.
		panic(err)
	}
	return string(b)
}
