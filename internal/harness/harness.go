// Package harness owns the browser for one test run and decides, before each
// scenario, whether the current feature's context can be reused.
//
// One browser serves the whole run. Each feature gets one context, one page and
// one BrowserSession, created together when the feature starts and closed
// together when the next feature begins. Scenarios of the same feature share
// them, so a login done in the first scenario is still valid in the second.
package harness

import (
	"context"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/storefront-e2e/internal/errs"
	"github.com/kuitang/storefront-e2e/internal/metrics"
	"github.com/kuitang/storefront-e2e/internal/obs"
	"github.com/kuitang/storefront-e2e/internal/session"
)

// ErrNoBrowser is returned by BeforeScenario when the harness has no browser.
var ErrNoBrowser = errs.New(errs.FailedPrecondition, "harness: no browser running")

// Pages inherit this script so sites that probe navigator.webdriver see a
// regular browser.
const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined })`

const defaultTimeout = 10 * time.Second

// Browser is the part of playwright.Browser the harness drives.
type Browser interface {
	NewContext(options ...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error)
	Close(options ...playwright.BrowserCloseOptions) error
}

// Options configures a Harness.
type Options struct {
	Headless       bool
	Args           []string
	DefaultTimeout time.Duration // locator and navigation timeout for feature pages
	Logs           *obs.ScenarioLogs
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// ScenarioInfo identifies the scenario about to run.
type ScenarioInfo struct {
	ID      string
	Name    string
	Feature string
	Tags    []string
}

// Harness is the run-wide session state. It is created at suite start,
// passed explicitly to hooks, and closed at suite end. It is not safe for
// concurrent use; the runner executes scenarios sequentially.
type Harness struct {
	pw      *playwright.Playwright
	browser Browser
	opts    Options
	log     *slog.Logger

	activeContext  playwright.BrowserContext
	activeFeature  string
	featurePage    playwright.Page
	featureSession *session.BrowserSession
	store          *Store
}

// Launch starts Playwright and Chromium and returns a harness that owns both.
func Launch(opts Options) (*Harness, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "harness: start playwright", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "harness: launch chromium", err)
	}
	h := New(browser, opts)
	h.pw = pw
	h.log.Info("browser launched", "headless", opts.Headless, "version", browser.Version())
	return h, nil
}

// New wraps an already running browser. A nil browser is allowed; every
// scenario is then skipped with ErrNoBrowser.
func New(browser Browser, opts Options) *Harness {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultTimeout
	}
	if opts.Logs == nil {
		opts.Logs = obs.Capture()
	}
	log := opts.Logger
	if log == nil {
		log = obs.Pkg("harness")
	}
	return &Harness{
		browser: browser,
		opts:    opts,
		log:     log,
	}
}

// BeforeScenario runs at the start of every scenario. A scenario from the
// active feature reuses its context, page and session; any other feature
// closes them and opens fresh ones. The scenario log buffer is reset in
// both cases.
func (h *Harness) BeforeScenario(ctx context.Context, info ScenarioInfo) (*Scenario, error) {
	log := h.log.With("feature", info.Feature, "scenario", info.Name)

	if h.browser == nil {
		log.Warn("no browser; skipping scenario setup")
		return nil, ErrNoBrowser
	}

	if h.featureSession != nil && info.Feature == h.activeFeature {
		h.opts.Logs.Begin(info.ID)
		return h.newScenario(info), nil
	}

	h.teardownFeature(log)
	if err := h.openFeature(info.Feature); err != nil {
		log.Error("opening feature context failed", "error", err)
		return nil, err
	}
	h.opts.Logs.Begin(info.ID)
	log.Info("feature context opened")
	return h.newScenario(info), nil
}

func (h *Harness) newScenario(info ScenarioInfo) *Scenario {
	return &Scenario{
		ScenarioInfo: info,
		Started:      time.Now(),
		harness:      h,
	}
}

// openFeature creates the context/page/session triple. On any failure the
// partial context is closed and nothing is stored, so the next scenario
// retries from scratch.
func (h *Harness) openFeature(feature string) error {
	opts := playwright.BrowserNewContextOptions{}
	if h.opts.Headless {
		opts.Viewport = &playwright.Size{Width: 1920, Height: 1080}
	} else {
		opts.NoViewport = playwright.Bool(true)
	}
	bctx, err := h.browser.NewContext(opts)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "harness: open browser context", err)
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(hideWebdriverScript)}); err != nil {
		_ = obs.BestEffort(h.log, "close partial context", func() error { return bctx.Close() })
		return errs.Wrap(errs.Unavailable, "harness: install init script", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = obs.BestEffort(h.log, "close partial context", func() error { return bctx.Close() })
		return errs.Wrap(errs.Unavailable, "harness: open feature page", err)
	}
	page.SetDefaultTimeout(float64(h.opts.DefaultTimeout.Milliseconds()))

	sess, err := session.New(page, obs.Pkg("session"))
	if err != nil {
		_ = obs.BestEffort(h.log, "close partial context", func() error { return bctx.Close() })
		return err
	}

	h.activeContext = bctx
	h.featurePage = page
	h.featureSession = sess
	h.activeFeature = feature
	h.store = NewStore()
	h.opts.Metrics.ContextRecreated()
	return nil
}

// teardownFeature closes the current page and context. Close errors are
// logged and ignored; the old triple is always cleared.
func (h *Harness) teardownFeature(log *slog.Logger) {
	if page := h.featurePage; page != nil {
		_ = obs.BestEffort(log, "close feature page", func() error { return page.Close() })
	}
	if bctx := h.activeContext; bctx != nil {
		_ = obs.BestEffort(log, "close browser context", func() error { return bctx.Close() })
	}
	h.featurePage = nil
	h.activeContext = nil
	h.featureSession = nil
	h.activeFeature = ""
	h.store = nil
}

// ActiveSession returns the current feature's session, or nil before the
// first scenario and after a failed feature setup. It is the only way to
// reach the active page.
func (h *Harness) ActiveSession() *session.BrowserSession {
	return h.featureSession
}

// ActiveFeature returns the feature that owns the current context.
func (h *Harness) ActiveFeature() string {
	return h.activeFeature
}

// Close tears down the feature context, the browser and Playwright. Errors
// are logged and ignored.
func (h *Harness) Close() {
	h.teardownFeature(h.log)
	if h.browser != nil {
		browser := h.browser
		_ = obs.BestEffort(h.log, "close browser", func() error { return browser.Close() })
		h.browser = nil
	}
	if h.pw != nil {
		pw := h.pw
		_ = obs.BestEffort(h.log, "stop playwright", func() error { return pw.Stop() })
		h.pw = nil
	}
}
