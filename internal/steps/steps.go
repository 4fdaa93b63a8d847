// Package steps binds the Gherkin phrases used in features/ to page-object
// calls. Every step reaches the browser through the running harness.Scenario;
// no step holds a page between calls.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cucumber/godog"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/storefront-e2e/internal/errs"
	"github.com/kuitang/storefront-e2e/internal/harness"
	"github.com/kuitang/storefront-e2e/internal/obs"
	"github.com/kuitang/storefront-e2e/internal/pages"
)

// Store keys shared between steps of a feature.
const (
	keyProductName = "product_name"
	keySearch      = "search_keyword"
)

// ErrNoPage is returned when the scenario has no browser session.
var ErrNoPage = errs.New(errs.FailedPrecondition, "steps: no active page")

// Options carry the storefront account and URLs into the steps.
type Options struct {
	BaseURL        string
	CartURL        string
	Username       string
	Password       string
	DefaultKeyword string
	Timeout        time.Duration
}

type kind int

const (
	given kind = iota
	when
	then
)

type stepDef struct {
	kind    kind
	pattern string
	fn      any
}

// Steps holds the step implementations. It is stateless between calls.
type Steps struct {
	opts Options
}

func New(opts Options) *Steps {
	return &Steps{opts: opts}
}

// Register binds every step phrase on sc.
func Register(sc *godog.ScenarioContext, opts Options) {
	New(opts).Register(sc)
}

func (s *Steps) Register(sc *godog.ScenarioContext) {
	for _, d := range s.defs() {
		switch d.kind {
		case given:
			sc.Given(d.pattern, d.fn)
		case when:
			sc.When(d.pattern, d.fn)
		default:
			sc.Then(d.pattern, d.fn)
		}
	}
}

func (s *Steps) defs() []stepDef {
	var defs []stepDef
	defs = append(defs, s.homeSteps()...)
	defs = append(defs, s.loginSteps()...)
	defs = append(defs, s.searchSteps()...)
	defs = append(defs, s.productSteps()...)
	defs = append(defs, s.cartSteps()...)
	defs = append(defs, s.checkoutSteps()...)
	defs = append(defs, s.tabSteps()...)
	return defs
}

// world is the per-call view of the scenario a step works on.
type world struct {
	sc   *harness.Scenario
	log  *slog.Logger
	opts Options
}

func (s *Steps) world(ctx context.Context) (*world, error) {
	sc, err := harness.ScenarioFrom(ctx)
	if err != nil {
		return nil, err
	}
	if sc.Session() == nil {
		return nil, ErrNoPage
	}
	return &world{sc: sc, log: obs.From(ctx).With("pkg", "steps"), opts: s.opts}, nil
}

// page is always read from the session, so a tab switch in an earlier step
// is seen by the next one.
func (w *world) page() playwright.Page {
	return w.sc.Page()
}

func (w *world) pageOpts() pages.Options {
	return pages.Options{
		BaseURL: w.opts.BaseURL,
		CartURL: w.opts.CartURL,
		Timeout: w.opts.Timeout,
		Logger:  w.log.With("pkg", "pages"),
	}
}

func (w *world) home() *pages.HomePage         { return pages.NewHomePage(w.page(), w.pageOpts()) }
func (w *world) login() *pages.LoginPage       { return pages.NewLoginPage(w.page(), w.pageOpts()) }
func (w *world) search() *pages.SearchPage     { return pages.NewSearchPage(w.page(), w.pageOpts()) }
func (w *world) product() *pages.ProductPage   { return pages.NewProductPage(w.page(), w.pageOpts()) }
func (w *world) cart() *pages.CartPage         { return pages.NewCartPage(w.page(), w.pageOpts()) }
func (w *world) checkout() *pages.CheckoutPage { return pages.NewCheckoutPage(w.page(), w.pageOpts()) }

// follow makes a tab opened by the last action the active page.
func (w *world) follow(newPage playwright.Page) error {
	if newPage == nil {
		return nil
	}
	return w.sc.Session().SwitchTo(newPage)
}

// run adapts a world step to godog's step function shape.
func (s *Steps) run(fn func(w *world) error) func(context.Context) error {
	return func(ctx context.Context) error {
		w, err := s.world(ctx)
		if err != nil {
			return err
		}
		return fn(w)
	}
}

func (s *Steps) runArg(fn func(w *world, arg string) error) func(context.Context, string) error {
	return func(ctx context.Context, arg string) error {
		w, err := s.world(ctx)
		if err != nil {
			return err
		}
		return fn(w, arg)
	}
}

func expect(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return fmt.Errorf(format, args...)
}
