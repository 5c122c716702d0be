// Package scenarios holds the storefront smoke scenarios and the loader for
// declarative YAML suites.
package scenarios

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/harness"
)

// Storefront selectors.
var (
	SearchBox       = browser.ID("twotabsearchtextbox")
	ResultsSlot     = browser.CSS("div.s-main-slot")
	ResultItems     = browser.CSS("div.s-main-slot div.s-result-item")
	TodaysDeals     = browser.ID("p_n_deal_type/23566064011")
	AllDiscounts    = browser.ID("p_n_deal_type/23566065011")
	SignInButton    = browser.ID("nav-link-accountList")
	Footer          = browser.ID("navFooter")
	SuggestionsList = browser.CSS("div.autocomplete-results-container")
	Suggestions     = browser.CSS("div.s-suggestion").Within(SuggestionsList)
)

// FooterLinks are the link texts expected inside the footer.
var FooterLinks = []string{"About Amazon", "Careers", "Help"}

// Storefront returns the built-in scenarios in their declared order.
func Storefront() []harness.Scenario {
	return []harness.Scenario{
		{
			Name:        "product-search-results",
			Description: "Searching for Headphones lands on a results page titled after the query.",
			Body:        productSearch("Headphones"),
		},
		{
			Name:        "filter-by-deals",
			Description: "Both deal filters on a laptop search keep at least one result.",
			Body:        filterByDeals,
		},
		{
			Name:        "sign-in-button-presence",
			Description: "The account sign-in button is shown on the homepage.",
			Body:        signInButton,
		},
		{
			Name:        "footer-links-presence",
			Description: "The footer carries the About Amazon, Careers and Help links.",
			Body:        footerLinks,
		},
		{
			Name:        "search-suggestions",
			Description: "Typing into the search box opens the autocomplete suggestions.",
			Body:        searchSuggestions("phone"),
		},
	}
}

// search navigates home, waits for the search box and submits term.
func search(ctx context.Context, sc *harness.ScenarioContext, term string) error {
	if err := sc.Navigate(ctx, "/"); err != nil {
		return err
	}
	box, err := sc.WaitVisible(ctx, SearchBox)
	if err != nil {
		return err
	}
	sc.Logf("Search box found, entering %q.", term)
	if err := sc.Type(ctx, box, term); err != nil {
		return err
	}
	if err := sc.Submit(ctx, box); err != nil {
		return err
	}
	_, err = sc.WaitPresent(ctx, ResultsSlot)
	return err
}

func productSearch(term string) func(context.Context, *harness.ScenarioContext) error {
	return func(ctx context.Context, sc *harness.ScenarioContext) error {
		if err := search(ctx, sc, term); err != nil {
			return err
		}
		sc.Logf("Search results loaded.")
		return sc.AssertTitleContains(ctx, term)
	}
}

func filterByDeals(ctx context.Context, sc *harness.ScenarioContext) error {
	if err := search(ctx, sc, "laptop"); err != nil {
		return err
	}
	for _, filter := range []browser.Locator{TodaysDeals, AllDiscounts} {
		link, err := sc.WaitClickable(ctx, filter)
		if err != nil {
			return err
		}
		if err := sc.Click(ctx, link); err != nil {
			return err
		}
		if _, err := sc.WaitPresent(ctx, ResultsSlot); err != nil {
			return err
		}
		if err := sc.AssertCountAtLeast(ctx, ResultItems, 1); err != nil {
			return err
		}
		sc.Logf("Filter %s verified.", filter)
	}
	return nil
}

func signInButton(ctx context.Context, sc *harness.ScenarioContext) error {
	if err := sc.Navigate(ctx, "/"); err != nil {
		return err
	}
	button, err := sc.WaitVisible(ctx, SignInButton)
	if err != nil {
		return err
	}
	return sc.AssertElementDisplayed(ctx, button)
}

func footerLinks(ctx context.Context, sc *harness.ScenarioContext) error {
	if err := sc.Navigate(ctx, "/"); err != nil {
		return err
	}
	if _, err := sc.WaitVisible(ctx, Footer); err != nil {
		return err
	}
	for _, text := range FooterLinks {
		if err := sc.AssertDisplayed(ctx, browser.LinkText(text).Within(Footer)); err != nil {
			return err
		}
	}
	sc.Logf("Footer links presence verified.")
	return nil
}

func searchSuggestions(term string) func(context.Context, *harness.ScenarioContext) error {
	return func(ctx context.Context, sc *harness.ScenarioContext) error {
		if err := sc.Navigate(ctx, "/"); err != nil {
			return err
		}
		box, err := sc.WaitVisible(ctx, SearchBox)
		if err != nil {
			return err
		}
		if err := sc.Type(ctx, box, term); err != nil {
			return err
		}
		if _, err := sc.WaitVisible(ctx, SuggestionsList); err != nil {
			return err
		}
		return sc.AssertCountAtLeast(ctx, Suggestions, 1)
	}
}

// Select returns the scenarios named in names, keeping catalog order. An
// empty names list selects everything. Unknown names are an error.
func Select(catalog []harness.Scenario, names []string) ([]harness.Scenario, error) {
	if len(names) == 0 {
		return catalog, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.TrimSpace(n)] = true
	}
	var selected []harness.Scenario
	for _, sc := range catalog {
		if wanted[sc.Name] {
			selected = append(selected, sc)
			delete(wanted, sc.Name)
		}
	}
	if len(wanted) > 0 {
		var unknown []string
		for n := range wanted {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown scenarios: %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}
