package pages

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
)

const (
	searchResultLink  = "a.item"
	searchResultTitle = ".item__title"
)

type SearchPage struct{ Base }

func NewSearchPage(page playwright.Page, opts Options) *SearchPage {
	return &SearchPage{newBase(page, opts)}
}

// IsDisplayed reports whether the page is a search results page.
func (p *SearchPage) IsDisplayed() bool {
	p.WaitForIdle()
	return strings.Contains(strings.ToLower(p.URL()), "search")
}

// ProductNames returns the titles of the listed products in page order.
func (p *SearchPage) ProductNames() ([]string, error) {
	doc, err := p.Document()
	if err != nil {
		return nil, err
	}
	return productNames(doc), nil
}

// ContainsKeyword reports whether any listed product mentions keyword.
func (p *SearchPage) ContainsKeyword(keyword string) (bool, error) {
	names, err := p.ProductNames()
	if err != nil {
		return false, err
	}
	return anyContains(names, keyword), nil
}

// OpenFirstProduct clicks the first result. When the link opens a new tab
// the new page is returned; otherwise the current page navigates and nil is
// returned.
func (p *SearchPage) OpenFirstProduct() (playwright.Page, error) {
	return p.openProduct(p.page.Locator(searchResultLink).First(), "first product")
}

// OpenProduct clicks the first result whose text contains name.
func (p *SearchPage) OpenProduct(name string) (playwright.Page, error) {
	link := p.page.Locator(searchResultLink).Filter(playwright.LocatorFilterOptions{HasText: name}).First()
	return p.openProduct(link, fmt.Sprintf("product %q", name))
}

func (p *SearchPage) openProduct(link playwright.Locator, what string) (playwright.Page, error) {
	p.WaitForIdle()
	target, _ := link.GetAttribute("target")
	if target != "_blank" {
		if err := p.revealAndClick(link, what); err != nil {
			return nil, err
		}
		p.WaitForIdle()
		return nil, nil
	}

	newPage, err := p.page.Context().ExpectPage(func() error {
		return p.revealAndClick(link, what)
	})
	if err != nil {
		return nil, fmt.Errorf("pages: %s did not open a tab: %w", what, err)
	}
	if err := newPage.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}); err != nil {
		p.log.Debug("new tab did not finish loading", "error", err)
	}
	p.log.Info("product opened in new tab", "url", newPage.URL())
	return newPage, nil
}

func productNames(doc *goquery.Document) []string {
	var names []string
	doc.Find(searchResultLink).Each(func(_ int, link *goquery.Selection) {
		title := link.Find(searchResultTitle)
		text := strings.TrimSpace(title.Text())
		if title.Length() == 0 {
			text = strings.TrimSpace(link.Text())
		}
		if text != "" {
			names = append(names, strings.Join(strings.Fields(text), " "))
		}
	})
	return names
}

func anyContains(names []string, keyword string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return len(names) > 0
	}
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), keyword) {
			return true
		}
	}
	return false
}
