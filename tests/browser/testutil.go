// Package browser provides shared test utilities for Playwright browser tests.
// All browser test files use BrowserTestEnv via SetupBrowserTestEnv(t), which
// serves a fake storefront with the real storefront's selectors.
package browser

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/storefront-e2e/internal/pages"
	"github.com/kuitang/storefront-e2e/internal/testrail"
)

const (
	// CODING AGENT RULE: Always use these timeout constants for browser tests.
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = 5 * time.Second
)

var browserFixtureMu sync.Mutex
var browserSharedFixture *BrowserTestEnv

// BrowserTestEnv is the shared environment for all browser tests.
type BrowserTestEnv struct {
	Server     *httptest.Server
	BaseURL    string
	CartURL    string
	Storefront *Storefront

	pw        *playwright.Playwright
	browser   playwright.Browser
	browserMu sync.Mutex
}

// SetupBrowserTestEnv returns the shared storefront with an empty cart.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		sf := NewStorefront()
		srv := sf.Server()
		browserSharedFixture = &BrowserTestEnv{
			Server:     srv,
			BaseURL:    srv.URL,
			CartURL:    srv.URL + "/cart/",
			Storefront: sf,
		}
	}
	browserSharedFixture.Storefront.Reset()
	return browserSharedFixture
}

func cleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		return
	}
	if browserSharedFixture.browser != nil {
		_ = browserSharedFixture.browser.Close()
	}
	if browserSharedFixture.pw != nil {
		_ = browserSharedFixture.pw.Stop()
	}
	browserSharedFixture.Server.Close()
	browserSharedFixture = nil
}

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupSharedBrowserTestEnv()
	os.Exit(code)
}

// =============================================================================
// Browser lifecycle helpers
// =============================================================================

// InitBrowser initializes Playwright and launches Chromium. Skips the test if not available.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) {
	t.Helper()

	env.browserMu.Lock()
	defer env.browserMu.Unlock()

	if env.browser != nil {
		return
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		t.Skip("Could not launch browser:", err)
	}
	env.pw = pw
	env.browser = browser
}

// Browser returns the launched browser. InitBrowser must have been called.
func (env *BrowserTestEnv) Browser() playwright.Browser {
	return env.browser
}

// NewContext creates a new browser context closed at test end.
func (env *BrowserTestEnv) NewContext(t *testing.T) playwright.BrowserContext {
	t.Helper()

	ctx, err := env.browser.NewContext()
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	ctx.SetDefaultTimeout(browserMaxTimeoutMS)
	ctx.SetDefaultNavigationTimeout(browserMaxTimeoutMS)
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

// NewPage creates a page in a fresh context.
func (env *BrowserTestEnv) NewPage(t *testing.T) playwright.Page {
	t.Helper()

	page, err := env.NewContext(t).NewPage()
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	return page
}

// PageOptions points page objects at the fake storefront.
func (env *BrowserTestEnv) PageOptions() pages.Options {
	return pages.Options{
		BaseURL: env.BaseURL,
		CartURL: env.CartURL,
		Timeout: browserMaxTimeout,
	}
}

// =============================================================================
// Navigation and wait helpers
// =============================================================================

// Navigate navigates to a path on the test server and waits for DOMContentLoaded.
func Navigate(t *testing.T, page playwright.Page, baseURL, path string) {
	t.Helper()

	_, err := page.Goto(baseURL+path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(browserMaxTimeoutMS),
	})
	if err != nil {
		t.Fatalf("Failed to navigate to %s: %v", path, err)
	}
}

// WaitForSelector waits for an element to be visible and returns its locator.
func WaitForSelector(t *testing.T, page playwright.Page, selector string) playwright.Locator {
	t.Helper()

	locator := page.Locator(selector)
	first := locator.First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(browserMaxTimeoutMS),
	})
	if err != nil {
		currentURL := page.URL()
		title, _ := page.Title()
		content, _ := page.Content()
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		t.Logf("Current URL: %s", currentURL)
		t.Logf("Current title: %s", title)
		t.Logf("Content preview: %s", content)
		t.Fatalf("Failed to wait for selector %s: %v", selector, err)
	}
	return first
}

// =============================================================================
// Fake test-management service
// =============================================================================

// PostedResult is one add_result_for_case call seen by FakeTestRail.
type PostedResult struct {
	RunID  int
	CaseID int
	Input  testrail.ResultInput
}

// FakeTestRail answers the run lifecycle and result endpoints from memory.
// Every case id in CaseIDs lives in section 1 of suite 1.
type FakeTestRail struct {
	Server  *httptest.Server
	CaseIDs []int

	mu          sync.Mutex
	runs        []testrail.RunInput
	closed      []int
	results     []PostedResult
	attachments map[int][]byte
}

func NewFakeTestRail(t *testing.T, caseIDs ...int) *FakeTestRail {
	t.Helper()
	f := &FakeTestRail{CaseIDs: caseIDs, attachments: make(map[int][]byte)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeTestRail) serve(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.RawQuery, "/api/v2/")
	f.mu.Lock()
	defer f.mu.Unlock()

	var runID, caseID, resultID int
	switch {
	case strings.HasPrefix(endpoint, "get_sections/"):
		writeTestJSON(w, http.StatusOK, []testrail.Section{{ID: 1, SuiteID: 1, Name: "Storefront"}})
	case strings.HasPrefix(endpoint, "get_cases/"):
		cases := make([]testrail.Case, 0, len(f.CaseIDs))
		for _, id := range f.CaseIDs {
			cases = append(cases, testrail.Case{ID: id, SectionID: 1, Title: fmt.Sprintf("C%d", id)})
		}
		writeTestJSON(w, http.StatusOK, map[string]any{"_links": map[string]any{"next": nil}, "cases": cases})
	case strings.HasPrefix(endpoint, "add_run/"):
		var in testrail.RunInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.runs = append(f.runs, in)
		writeTestJSON(w, http.StatusOK, testrail.RunInfo{ID: len(f.runs), Name: in.Name})
	case scan(endpoint, "close_run/%d", &runID):
		f.closed = append(f.closed, runID)
		writeTestJSON(w, http.StatusOK, testrail.RunInfo{ID: runID, IsCompleted: true})
	case scan(endpoint, "add_result_for_case/%d/%d", &runID, &caseID):
		var in testrail.ResultInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.results = append(f.results, PostedResult{RunID: runID, CaseID: caseID, Input: in})
		writeTestJSON(w, http.StatusOK, testrail.Result{ID: len(f.results), StatusID: in.StatusID})
	case scan(endpoint, "add_attachment_to_result/%d", &resultID):
		file, _, err := r.FormFile("attachment")
		if err != nil {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		f.attachments[resultID] = data
		writeTestJSON(w, http.StatusOK, map[string]any{"attachment_id": resultID})
	default:
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "Unknown method " + endpoint})
	}
}

// Client returns a client for the fake with fast retries.
func (f *FakeTestRail) Client() *testrail.Client {
	return testrail.New(testrail.Config{
		BaseURL:      f.Server.URL,
		User:         "qa@example.com",
		Token:        "api-key",
		MaxRetries:   1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
}

func (f *FakeTestRail) Runs() []testrail.RunInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]testrail.RunInput(nil), f.runs...)
}

func (f *FakeTestRail) Closed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closed...)
}

func (f *FakeTestRail) Results() []PostedResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PostedResult(nil), f.results...)
}

// Attachment returns the bytes uploaded for resultID.
func (f *FakeTestRail) Attachment(resultID int) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.attachments[resultID]
	return data, ok
}

// scan matches endpoint against format exactly.
func scan(endpoint, format string, args ...any) bool {
	n, err := fmt.Sscanf(endpoint, format, args...)
	return err == nil && n == len(args) && fmt.Sprintf(format, deref(args)...) == endpoint
}

func deref(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = *(a.(*int))
	}
	return out
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
