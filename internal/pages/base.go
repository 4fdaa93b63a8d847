// Package pages holds the page objects for the storefront under test. Each
// page wraps the active playwright.Page and exposes the user-level actions and
// checks the step definitions need. Selectors are fixed constants of the
// storefront's DOM.
package pages

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/storefront-e2e/internal/obs"
)

const (
	loggedInCheckTimeout = 5 * time.Second
	loginTimeout         = 15 * time.Second
)

// Options are shared by every page object.
type Options struct {
	BaseURL string
	CartURL string
	// Timeout bounds explicit waits. Locator actions use the page default.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Base implements the helpers common to all pages.
type Base struct {
	page playwright.Page
	opts Options
	log  *slog.Logger
}

func newBase(page playwright.Page, opts Options) Base {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = obs.Pkg("pages")
	}
	return Base{page: page, opts: opts, log: log}
}

// Page returns the wrapped page.
func (b Base) Page() playwright.Page {
	return b.page
}

// URL returns the page's current URL.
func (b Base) URL() string {
	return b.page.URL()
}

// Goto navigates and waits for DOMContentLoaded.
func (b Base) Goto(url string) error {
	if _, err := b.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("pages: goto %s: %w", url, err)
	}
	return nil
}

func (b Base) Click(selector string) error {
	if err := b.page.Locator(selector).First().Click(); err != nil {
		return fmt.Errorf("pages: click %s: %w", selector, err)
	}
	return nil
}

func (b Base) Fill(selector, value string) error {
	if err := b.page.Locator(selector).First().Fill(value); err != nil {
		return fmt.Errorf("pages: fill %s: %w", selector, err)
	}
	return nil
}

// Visible waits up to timeout for selector to become visible.
func (b Base) Visible(selector string, timeout time.Duration) bool {
	err := b.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(timeout),
	})
	return err == nil
}

// Text returns the trimmed inner text of the first match.
func (b Base) Text(selector string) (string, error) {
	text, err := b.page.Locator(selector).First().InnerText()
	if err != nil {
		return "", fmt.Errorf("pages: read %s: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

// WaitForIdle waits for network idle. Pages with long-polling widgets never
// settle, so a timeout is logged and ignored.
func (b Base) WaitForIdle() {
	err := b.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: ms(b.opts.Timeout),
	})
	if err != nil {
		b.log.Debug("network did not go idle", "url", b.page.URL(), "error", err)
	}
}

// Document parses the current DOM for checks that are easier on static HTML.
func (b Base) Document() (*goquery.Document, error) {
	html, err := b.page.Content()
	if err != nil {
		return nil, fmt.Errorf("pages: read content: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("pages: parse content: %w", err)
	}
	return doc, nil
}

// revealAndClick waits for loc to attach, scrolls it into view, waits for it
// to be visible and clicks it. Payment widgets render off-screen and lazily.
func (b Base) revealAndClick(loc playwright.Locator, what string) error {
	timeout := ms(b.opts.Timeout)
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateAttached, Timeout: timeout}); err != nil {
		return fmt.Errorf("pages: %s not attached: %w", what, err)
	}
	if err := loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("pages: scroll to %s: %w", what, err)
	}
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible, Timeout: timeout}); err != nil {
		return fmt.Errorf("pages: %s not visible: %w", what, err)
	}
	if err := loc.Click(playwright.LocatorClickOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("pages: click %s: %w", what, err)
	}
	b.log.Info("clicked", "target", what)
	return nil
}

func (b Base) byText(text string) playwright.Locator {
	return b.page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)}).First()
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
