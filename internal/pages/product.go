package pages

import (
	"strconv"

	"github.com/playwright-community/playwright-go"
)

const (
	productName          = "h1.itemtit"
	productPrice         = "strong.price_real"
	productQuantityInput = "input.num"
	productAddToCart     = "button:has-text('장바구니')"
	productBuyNow        = "button:has-text('구매하기')"
)

type ProductPage struct{ Base }

func NewProductPage(page playwright.Page, opts Options) *ProductPage {
	return &ProductPage{newBase(page, opts)}
}

func (p *ProductPage) IsDisplayed() bool {
	p.WaitForIdle()
	return p.Visible(productName, p.opts.Timeout)
}

func (p *ProductPage) Name() (string, error) {
	return p.Text(productName)
}

func (p *ProductPage) Price() (string, error) {
	return p.Text(productPrice)
}

func (p *ProductPage) SetQuantity(n int) error {
	p.log.Info("setting quantity", "quantity", n)
	return p.Fill(productQuantityInput, strconv.Itoa(n))
}

func (p *ProductPage) AddToCart() error {
	p.WaitForIdle()
	if err := p.Click(productAddToCart); err != nil {
		return err
	}
	p.WaitForIdle()
	p.log.Info("added product to cart")
	return nil
}

func (p *ProductPage) BuyNow() error {
	p.WaitForIdle()
	return p.Click(productBuyNow)
}
