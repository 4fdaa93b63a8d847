package pages

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"
)

const (
	homeSearchInput  = "#form__search-keyword"
	homeSearchButton = "button.button__search"
	homeLoginText    = "로그인"
	homeLogoutMarker = "text=로그아웃"
)

var searchURLPattern = regexp.MustCompile(`(?i)search`)

type HomePage struct{ Base }

func NewHomePage(page playwright.Page, opts Options) *HomePage {
	return &HomePage{newBase(page, opts)}
}

func (p *HomePage) Open() error {
	p.log.Info("opening home page", "url", p.opts.BaseURL)
	return p.Goto(p.opts.BaseURL)
}

// IsDisplayed reports whether the page is on the storefront with the search
// box rendered.
func (p *HomePage) IsDisplayed() bool {
	return strings.HasPrefix(p.URL(), p.opts.BaseURL) && p.Visible(homeSearchInput, p.opts.Timeout)
}

// Search submits keyword and waits for the results to load.
func (p *HomePage) Search(keyword string) error {
	p.log.Info("searching", "keyword", keyword)
	if err := p.Fill(homeSearchInput, keyword); err != nil {
		return err
	}
	if err := p.Click(homeSearchButton); err != nil {
		return err
	}
	if err := p.page.WaitForURL(searchURLPattern, playwright.PageWaitForURLOptions{
		Timeout: ms(p.opts.Timeout),
	}); err != nil {
		return fmt.Errorf("pages: search for %q did not navigate: %w", keyword, err)
	}
	p.WaitForIdle()
	return nil
}

func (p *HomePage) ClickLogin() error {
	return p.revealAndClick(p.byText(homeLoginText), "login link")
}

func (p *HomePage) IsLoggedIn() bool {
	return p.Visible(homeLogoutMarker, loggedInCheckTimeout)
}

func (p *HomePage) Logout() error {
	if err := p.Click(homeLogoutMarker); err != nil {
		return fmt.Errorf("pages: logout: %w", err)
	}
	p.WaitForIdle()
	return nil
}
