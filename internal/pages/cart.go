package pages

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"
)

const (
	cartIcon        = `[title="장바구니"]`
	cartItem        = ".item_desc"
	cartRowAncestor = "xpath=ancestor::dd"
	cartQuantity    = "input.item_qty_count"
	cartRemove      = "button.btn_del"
	cartSelectAll   = `label[for="item_all_select"]`
	cartTotalPrice  = ".total_price"
	cartPurchase    = "button:has-text('구매하기')"
)

type CartPage struct{ Base }

func NewCartPage(page playwright.Page, opts Options) *CartPage {
	return &CartPage{newBase(page, opts)}
}

func (p *CartPage) Open() error {
	p.log.Info("opening cart", "url", p.opts.CartURL)
	if err := p.Goto(p.opts.CartURL); err != nil {
		return err
	}
	p.WaitForIdle()
	return nil
}

// OpenFromIcon clicks the header cart icon.
func (p *CartPage) OpenFromIcon() error {
	if err := p.Click(cartIcon); err != nil {
		return err
	}
	p.WaitForIdle()
	return nil
}

func (p *CartPage) IsDisplayed() bool {
	return strings.HasPrefix(p.URL(), p.opts.CartURL) || strings.Contains(p.URL(), "/cart")
}

func (p *CartPage) ItemCount() (int, error) {
	n, err := p.page.Locator(cartItem).Count()
	if err != nil {
		return 0, fmt.Errorf("pages: count cart items: %w", err)
	}
	return n, nil
}

func (p *CartPage) HasProducts() bool {
	n, err := p.ItemCount()
	return err == nil && n > 0
}

func (p *CartPage) IsEmpty() bool {
	n, err := p.ItemCount()
	return err == nil && n == 0
}

func (p *CartPage) TotalDisplayed() bool {
	return p.Visible(cartTotalPrice, p.opts.Timeout)
}

// row is the cart line holding the product called name.
func (p *CartPage) row(name string) playwright.Locator {
	return p.page.GetByText(name).First().Locator(cartRowAncestor)
}

func (p *CartPage) Quantity(name string) (int, error) {
	raw, err := p.row(name).Locator(cartQuantity).InputValue()
	if err != nil {
		return 0, fmt.Errorf("pages: quantity of %q: %w", name, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("pages: quantity of %q is %q", name, raw)
	}
	return n, nil
}

func (p *CartPage) SetQuantity(name string, n int) error {
	input := p.row(name).Locator(cartQuantity)
	if err := input.Fill(strconv.Itoa(n)); err != nil {
		return fmt.Errorf("pages: set quantity of %q: %w", name, err)
	}
	// The cart saves on change, which fires when the field loses focus.
	if err := input.Blur(); err != nil {
		return fmt.Errorf("pages: set quantity of %q: %w", name, err)
	}
	p.WaitForIdle()
	p.log.Info("cart quantity changed", "product", name, "quantity", n)
	return nil
}

func (p *CartPage) Remove(name string) error {
	if err := p.row(name).Locator(cartRemove).Click(); err != nil {
		return fmt.Errorf("pages: remove %q: %w", name, err)
	}
	p.WaitForIdle()
	p.log.Info("removed from cart", "product", name)
	return nil
}

// Clear selects every line and deletes the selection.
func (p *CartPage) Clear() error {
	if err := p.Click(cartSelectAll); err != nil {
		return err
	}
	if err := p.Click(cartRemove); err != nil {
		return err
	}
	p.WaitForIdle()
	p.log.Info("cart cleared")
	return nil
}

func (p *CartPage) Purchase() error {
	p.WaitForIdle()
	return p.Click(cartPurchase)
}
