package steps

import (
	"context"
	"strings"

	"github.com/cucumber/godog"
)

func (s *Steps) loginSteps() []stepDef {
	return []stepDef{
		{given, `^the user is logged in$`, s.run(ensureLoggedIn)},
		{when, `^the user clicks the login link$`, s.run(func(w *world) error {
			return w.home().ClickLogin()
		})},
		{when, `^the user logs in as "([^"]*)" with password "([^"]*)"$`,
			func(ctx context.Context, username, password string) error {
				w, err := s.world(ctx)
				if err != nil {
					return err
				}
				return w.login().Login(username, password)
			}},
		{when, `^the user logs in with the configured account$`, s.run(loginWithAccount)},
		{then, `^the login succeeds$`, s.run(func(w *world) error {
			return w.login().WaitForLogin()
		})},
		{when, `^the user logs out$`, s.run(func(w *world) error {
			return w.home().Logout()
		})},
		{then, `^the user is logged out$`, s.run(func(w *world) error {
			return expect(!w.home().IsLoggedIn(), "logout link still visible")
		})},
	}
}

// ensureLoggedIn signs in with the configured account unless the session is
// already signed in. Without an account the scenario is skipped.
func ensureLoggedIn(w *world) error {
	if w.home().IsLoggedIn() {
		w.log.Info("already logged in")
		return nil
	}
	if !strings.HasPrefix(w.page().URL(), w.opts.BaseURL) {
		if err := openHome(w); err != nil {
			return err
		}
		if w.home().IsLoggedIn() {
			return nil
		}
	}
	w.log.Info("not logged in; logging in")
	if err := w.home().ClickLogin(); err != nil {
		return err
	}
	if err := loginWithAccount(w); err != nil {
		return err
	}
	return w.login().WaitForLogin()
}

func loginWithAccount(w *world) error {
	if w.opts.Username == "" || w.opts.Password == "" {
		w.log.Warn("no storefront account configured; skipping")
		return godog.ErrSkip
	}
	return w.login().Login(w.opts.Username, w.opts.Password)
}
