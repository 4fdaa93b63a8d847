package pages

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
)

const (
	loginUserInput     = "#typeMemberInputId"
	loginPasswordInput = "#typeMemberInputPassword"
	loginSubmit        = "#btn_memberLogin"
)

type LoginPage struct{ Base }

func NewLoginPage(page playwright.Page, opts Options) *LoginPage {
	return &LoginPage{newBase(page, opts)}
}

// Login fills the member form and submits it. The password is never logged.
func (p *LoginPage) Login(username, password string) error {
	p.log.Info("logging in", "username", username)
	if err := p.Fill(loginUserInput, username); err != nil {
		return err
	}
	if err := p.Fill(loginPasswordInput, password); err != nil {
		return err
	}
	return p.Click(loginSubmit)
}

// WaitForLogin waits for the logout link that only signed-in pages render.
func (p *LoginPage) WaitForLogin() error {
	err := p.page.Locator(homeLogoutMarker).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(loginTimeout),
	})
	if err != nil {
		return fmt.Errorf("pages: login did not complete: %w", err)
	}
	return nil
}

func (p *LoginPage) IsLoginSuccessful() bool {
	return p.Visible(homeLogoutMarker, loggedInCheckTimeout)
}
