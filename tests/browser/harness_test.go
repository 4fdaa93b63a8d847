package browser

import (
	"context"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/storefront-e2e/internal/harness"
	"github.com/kuitang/storefront-e2e/internal/metrics"
	"github.com/kuitang/storefront-e2e/internal/pages"
	"github.com/kuitang/storefront-e2e/internal/session"
)

// sharedBrowser keeps a harness from closing the suite-wide browser.
type sharedBrowser struct {
	playwright.Browser
}

func (sharedBrowser) Close(...playwright.BrowserCloseOptions) error { return nil }

func newHarness(t *testing.T, env *BrowserTestEnv, m *metrics.Metrics) *harness.Harness {
	t.Helper()
	h := harness.New(sharedBrowser{env.Browser()}, harness.Options{
		Headless:       true,
		DefaultTimeout: browserMaxTimeout,
		Metrics:        m,
	})
	t.Cleanup(h.Close)
	return h
}

func TestHarness_ContextIsSharedWithinFeature(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	env.InitBrowser(t)
	m := metrics.New()
	h := newHarness(t, env, m)
	opts := env.PageOptions()
	ctx := context.Background()

	first, err := h.BeforeScenario(ctx, harness.ScenarioInfo{ID: "login-1", Name: "Sign in", Feature: "features/login.feature"})
	require.NoError(t, err)
	featurePage := first.Page()

	home := pages.NewHomePage(featurePage, opts)
	require.NoError(t, home.Open())
	require.NoError(t, home.ClickLogin())
	login := pages.NewLoginPage(featurePage, opts)
	require.NoError(t, login.Login(StorefrontUser, StorefrontPassword))
	require.NoError(t, login.WaitForLogin())
	first.Store().Set("user", StorefrontUser)

	second, err := h.BeforeScenario(ctx, harness.ScenarioInfo{ID: "login-2", Name: "Stay signed in", Feature: "features/login.feature"})
	require.NoError(t, err)
	require.True(t, second.Page() == featurePage, "same feature keeps its page")
	user, ok := harness.Lookup[string](second.Store(), "user")
	require.True(t, ok)
	require.Equal(t, StorefrontUser, user)
	require.NoError(t, pages.NewHomePage(second.Page(), opts).Open())
	require.True(t, pages.NewHomePage(second.Page(), opts).IsLoggedIn())

	third, err := h.BeforeScenario(ctx, harness.ScenarioInfo{ID: "cart-1", Name: "Open cart", Feature: "features/cart.feature"})
	require.NoError(t, err)
	require.True(t, featurePage.IsClosed(), "a new feature closes the old page")
	require.False(t, third.Page() == featurePage)
	_, ok = third.Store().Get("user")
	require.False(t, ok, "the store is feature scoped")

	require.NoError(t, pages.NewHomePage(third.Page(), opts).Open())
	WaitForSelector(t, third.Page(), "text=로그인")
	require.Equal(t, 2.0, testutil.ToFloat64(m.ContextRecreations))
}

func TestHarness_NewTabIsTrackedAndClosed(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	env.InitBrowser(t)
	h := newHarness(t, env, nil)
	opts := env.PageOptions()

	sc, err := h.BeforeScenario(context.Background(), harness.ScenarioInfo{ID: "search-1", Name: "Open product", Feature: "features/search.feature"})
	require.NoError(t, err)
	featurePage := sc.Page()

	Navigate(t, featurePage, env.BaseURL, "/search?keyword=노트북")
	tab, err := pages.NewSearchPage(featurePage, opts).OpenFirstProduct()
	require.NoError(t, err)
	require.NotNil(t, tab)

	sess := sc.Session()
	require.NoError(t, sess.SwitchTo(tab))
	require.Equal(t, 2, sess.Depth())
	require.True(t, sc.Page() == tab)
	require.True(t, pages.NewProductPage(sc.Page(), opts).IsDisplayed())
	require.Len(t, sess.InspectStack(), 2)

	require.NoError(t, sess.CloseActive())
	require.True(t, tab.IsClosed())
	require.Equal(t, 1, sess.Depth())
	require.True(t, sc.Page() == featurePage)
	require.ErrorIs(t, sess.CloseActive(), session.ErrStackFloor)
	require.False(t, featurePage.IsClosed(), "the feature page belongs to the harness")
}
