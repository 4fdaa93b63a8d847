package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"
	"pgregory.net/rapid"

	"github.com/kuitang/storefront-e2e/internal/errs"
	"github.com/kuitang/storefront-e2e/internal/metrics"
	"github.com/kuitang/storefront-e2e/internal/obs"
)

// =============================================================================
// Driver fakes (only the methods the harness calls are implemented)
// =============================================================================

type fakePage struct {
	playwright.Page
	url      string
	closed   bool
	timeout  float64
	closeErr error
}

func (p *fakePage) URL() string                  { return p.url }
func (p *fakePage) IsClosed() bool               { return p.closed }
func (p *fakePage) SetDefaultTimeout(ms float64) { p.timeout = ms }
func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.closed = true
	return p.closeErr
}

type fakeContext struct {
	playwright.BrowserContext
	id         int
	scripts    []string
	pages      []*fakePage
	closed     bool
	closeErr   error
	newPageErr error
}

func (c *fakeContext) AddInitScript(script playwright.Script) error {
	if script.Content != nil {
		c.scripts = append(c.scripts, *script.Content)
	}
	return nil
}

func (c *fakeContext) NewPage() (playwright.Page, error) {
	if c.newPageErr != nil {
		return nil, c.newPageErr
	}
	p := &fakePage{url: "about:blank"}
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *fakeContext) Close(...playwright.BrowserContextCloseOptions) error {
	c.closed = true
	return c.closeErr
}

type fakeBrowser struct {
	contexts      []*fakeContext
	options       []playwright.BrowserNewContextOptions
	newContextErr error
	failNewPage   bool
	closed        bool
}

func (b *fakeBrowser) NewContext(options ...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error) {
	if b.newContextErr != nil {
		return nil, b.newContextErr
	}
	c := &fakeContext{id: len(b.contexts) + 1}
	if b.failNewPage {
		c.newPageErr = errors.New("target page crashed")
	}
	b.contexts = append(b.contexts, c)
	if len(options) > 0 {
		b.options = append(b.options, options[0])
	}
	return c, nil
}

func (b *fakeBrowser) Close(...playwright.BrowserCloseOptions) error {
	b.closed = true
	return nil
}

func newTestHarness(browser Browser) (*Harness, *obs.ScenarioLogs, *bytes.Buffer) {
	var buf bytes.Buffer
	logs := obs.NewScenarioLogs(slog.NewTextHandler(&buf, nil))
	h := New(browser, Options{
		Headless: true,
		Logs:     logs,
		Metrics:  metrics.New(),
		Logger:   slog.New(logs).With("pkg", "harness"),
	})
	return h, logs, &buf
}

func info(feature, id string) ScenarioInfo {
	return ScenarioInfo{ID: id, Name: "scenario " + id, Feature: feature}
}

// =============================================================================
// Feature boundary behaviour
// =============================================================================

func TestBeforeScenario_SameFeatureReusesTriple(t *testing.T) {
	t.Parallel()
	browser := &fakeBrowser{}
	h, _, _ := newTestHarness(browser)
	ctx := context.Background()

	first, err := h.BeforeScenario(ctx, info("features/cart.feature", "1"))
	if err != nil {
		t.Fatalf("first scenario: %v", err)
	}
	page1, sess1 := first.Page(), first.Session()
	first.Store().Set("product", "Trail Runner 2")

	second, err := h.BeforeScenario(ctx, info("features/cart.feature", "2"))
	if err != nil {
		t.Fatalf("second scenario: %v", err)
	}
	if len(browser.contexts) != 1 {
		t.Fatalf("expected one context, got %d", len(browser.contexts))
	}
	if second.Page() != page1 || second.Session() != sess1 {
		t.Fatal("same feature must observe the same page and session")
	}
	if got, ok := Lookup[string](second.Store(), "product"); !ok || got != "Trail Runner 2" {
		t.Fatal("feature store lost between scenarios")
	}
}

func TestBeforeScenario_FeatureChangeRecreatesTriple(t *testing.T) {
	t.Parallel()
	browser := &fakeBrowser{}
	h, _, _ := newTestHarness(browser)
	ctx := context.Background()

	a, err := h.BeforeScenario(ctx, info("features/login.feature", "a1"))
	if err != nil {
		t.Fatal(err)
	}
	a.Store().Set("user", "qa")
	pageA, sessA := a.Page(), a.Session()

	b, err := h.BeforeScenario(ctx, info("features/checkout.feature", "b1"))
	if err != nil {
		t.Fatal(err)
	}

	if len(browser.contexts) != 2 {
		t.Fatalf("expected two contexts, got %d", len(browser.contexts))
	}
	if !browser.contexts[0].closed || !pageA.IsClosed() {
		t.Fatal("previous feature context and page must be closed")
	}
	if b.Page() == pageA || b.Session() == sessA {
		t.Fatal("new feature must not observe the previous page or session")
	}
	if _, ok := b.Store().Get("user"); ok || len(b.Store().Keys()) != 0 {
		t.Fatal("store must be reset on feature change")
	}
	if h.ActiveFeature() != "features/checkout.feature" {
		t.Fatalf("active feature = %q", h.ActiveFeature())
	}
}

func TestBeforeScenario_ConfiguresContextAndPage(t *testing.T) {
	t.Parallel()
	browser := &fakeBrowser{}
	h, _, _ := newTestHarness(browser)

	sc, err := h.BeforeScenario(context.Background(), info("f", "1"))
	if err != nil {
		t.Fatal(err)
	}
	c := browser.contexts[0]
	if len(c.scripts) != 1 || !strings.Contains(c.scripts[0], "navigator, 'webdriver'") {
		t.Fatalf("webdriver init script not installed: %v", c.scripts)
	}
	if got := sc.Page().(*fakePage).timeout; got != 10000 {
		t.Fatalf("default timeout = %v ms, want 10000", got)
	}
	if browser.options[0].Viewport == nil {
		t.Fatal("headless contexts need an explicit viewport")
	}
	if sc.Session().Depth() != 1 {
		t.Fatal("new session must be seeded with exactly the feature page")
	}
}

func TestBeforeScenario_TeardownErrorsAreSwallowed(t *testing.T) {
	t.Parallel()
	browser := &fakeBrowser{}
	h, _, out := newTestHarness(browser)
	ctx := context.Background()

	a, err := h.BeforeScenario(ctx, info("a", "1"))
	if err != nil {
		t.Fatal(err)
	}
	a.Page().(*fakePage).closeErr = errors.New("page already closed")
	browser.contexts[0].closeErr = errors.New("context already closed")

	if _, err := h.BeforeScenario(ctx, info("b", "2")); err != nil {
		t.Fatalf("teardown errors must not block the new feature: %v", err)
	}
	if got := strings.Count(out.String(), "level=WARN"); got != 2 {
		t.Fatalf("expected one warning per failed close, got %d:\n%s", got, out.String())
	}
}

func TestBeforeScenario_NoBrowser(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestHarness(nil)

	_, err := h.BeforeScenario(context.Background(), info("a", "1"))
	if !errors.Is(err, ErrNoBrowser) {
		t.Fatalf("expected ErrNoBrowser, got %v", err)
	}
	if h.ActiveSession() != nil {
		t.Fatal("no session expected without a browser")
	}
}

func TestBeforeScenario_FailedSetupLeavesNothingLive(t *testing.T) {
	t.Parallel()
	browser := &fakeBrowser{failNewPage: true}
	h, _, _ := newTestHarness(browser)

	_, err := h.BeforeScenario(context.Background(), info("a", "1"))
	if errs.CodeOf(err) != errs.Unavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if h.ActiveSession() != nil || h.ActiveFeature() != "" {
		t.Fatal("failed setup must not leave a session or feature key")
	}
	if !browser.contexts[0].closed {
		t.Fatal("partial context must be closed")
	}

	browser.failNewPage = false
	if _, err := h.BeforeScenario(context.Background(), info("a", "2")); err != nil {
		t.Fatalf("same feature must retry after failure: %v", err)
	}
	if len(browser.contexts) != 2 {
		t.Fatalf("expected a retry context, got %d", len(browser.contexts))
	}
}

func TestBeforeScenario_ResetsScenarioLogs(t *testing.T) {
	t.Parallel()
	browser := &fakeBrowser{}
	h, logs, _ := newTestHarness(browser)
	log := slog.New(logs)
	ctx := context.Background()

	if _, err := h.BeforeScenario(ctx, info("a", "s1")); err != nil {
		t.Fatal(err)
	}
	log.Info("from s1")
	if _, err := h.BeforeScenario(ctx, info("a", "s2")); err != nil {
		t.Fatal(err)
	}
	log.Info("from s2")

	if got := logs.Drain("s2"); strings.Contains(got, "from s1") || !strings.Contains(got, "from s2") {
		t.Fatalf("unexpected s2 logs: %q", got)
	}
}

func TestClose_TearsDownEverything(t *testing.T) {
	t.Parallel()
	browser := &fakeBrowser{}
	h, _, _ := newTestHarness(browser)
	if _, err := h.BeforeScenario(context.Background(), info("a", "1")); err != nil {
		t.Fatal(err)
	}
	h.Close()
	if !browser.closed || !browser.contexts[0].closed {
		t.Fatal("browser and context must be closed")
	}
	if h.ActiveSession() != nil {
		t.Fatal("session must be cleared")
	}
	h.Close() // second close is a no-op
}

func TestScenarioFrom(t *testing.T) {
	t.Parallel()
	if _, err := ScenarioFrom(context.Background()); !errors.Is(err, ErrNoScenario) {
		t.Fatalf("expected ErrNoScenario, got %v", err)
	}
	h, _, _ := newTestHarness(&fakeBrowser{})
	sc, err := h.BeforeScenario(context.Background(), info("a", "1"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := ScenarioFrom(WithScenario(context.Background(), sc))
	if err != nil || got != sc {
		t.Fatalf("round trip failed: %v", err)
	}
}

// Any sequence of feature identities: consecutive scenarios share a context
// exactly when their features match, and at most one context is open.
func testFeatureIsolation(t *rapid.T) {
	browser := &fakeBrowser{}
	h, _, _ := newTestHarness(browser)
	features := rapid.SliceOfN(rapid.SampledFrom([]string{"login", "search", "cart"}), 1, 30).Draw(t, "features")

	var prevFeature string
	var prevContext *fakeContext
	for i, f := range features {
		if _, err := h.BeforeScenario(context.Background(), info(f, fmt.Sprint(i))); err != nil {
			t.Fatalf("scenario %d: %v", i, err)
		}
		current := browser.contexts[len(browser.contexts)-1]
		if i > 0 {
			if f == prevFeature && current != prevContext {
				t.Fatalf("scenario %d: same feature got a new context", i)
			}
			if f != prevFeature && current == prevContext {
				t.Fatalf("scenario %d: feature change reused context", i)
			}
		}
		open := 0
		for _, c := range browser.contexts {
			if !c.closed {
				open++
			}
		}
		if open != 1 {
			t.Fatalf("scenario %d: %d contexts open", i, open)
		}
		prevFeature, prevContext = f, current
	}
}

func TestFeatureIsolation(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testFeatureIsolation)
}
