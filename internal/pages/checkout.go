package pages

import (
	"fmt"
	"slices"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	checkoutTitle         = "h2.text__main-title"
	checkoutOrderComplete = "text=주문이 완료되었습니다"
	checkoutPlaceOrder    = "결제하기"

	// Payment types, then the methods nested under general payment.
	PaymentSmilePay = "스마일페이"
	PaymentGeneral  = "일반결제"

	orderCompleteTimeout = 15 * time.Second
)

// GeneralPaymentMethods are selected under PaymentGeneral.
var GeneralPaymentMethods = []string{"신용/체크카드", "해외발급 신용카드", "무통장 입금", "휴대폰 소액결제"}

type CheckoutPage struct{ Base }

func NewCheckoutPage(page playwright.Page, opts Options) *CheckoutPage {
	return &CheckoutPage{newBase(page, opts)}
}

func (p *CheckoutPage) IsDisplayed() bool {
	p.WaitForIdle()
	return p.Visible(checkoutTitle, p.opts.Timeout)
}

// SelectPayment picks a top-level payment type.
func (p *CheckoutPage) SelectPayment(paymentType string) error {
	return p.revealAndClick(p.byText(paymentType), "payment type "+paymentType)
}

// SelectSubMethod picks a method under general payment.
func (p *CheckoutPage) SelectSubMethod(method string) error {
	return p.revealAndClick(p.byText(method), "payment method "+method)
}

// PayWith selects either the one-click type or general payment plus method.
func (p *CheckoutPage) PayWith(method string) error {
	switch {
	case method == PaymentSmilePay:
		return p.SelectPayment(PaymentSmilePay)
	case slices.Contains(GeneralPaymentMethods, method):
		if err := p.SelectPayment(PaymentGeneral); err != nil {
			return err
		}
		return p.SelectSubMethod(method)
	default:
		return fmt.Errorf("pages: unknown payment method %q", method)
	}
}

func (p *CheckoutPage) PlaceOrder() error {
	p.WaitForIdle()
	return p.revealAndClick(p.byText(checkoutPlaceOrder), "place order")
}

func (p *CheckoutPage) IsOrderComplete() bool {
	p.WaitForIdle()
	return p.Visible(checkoutOrderComplete, orderCompleteTimeout)
}
