package steps

import (
	"fmt"
	"strconv"
	"strings"
)

func (s *Steps) productSteps() []stepDef {
	return []stepDef{
		{given, `^a product detail page is open$`, s.run(ensureProductPage)},
		{then, `^the product detail page is displayed$`, s.run(func(w *world) error {
			return expect(w.product().IsDisplayed(), "not a product page: %s", w.page().URL())
		})},
		{then, `^the product name contains "([^"]*)"$`, s.runArg(func(w *world, want string) error {
			name, err := w.product().Name()
			if err != nil {
				return err
			}
			return expect(strings.Contains(name, want), "product name %q does not contain %q", name, want)
		})},
		{then, `^the product price is displayed$`, s.run(func(w *world) error {
			price, err := w.product().Price()
			if err != nil {
				return err
			}
			return expect(price != "", "product price is empty")
		})},
		{when, `^the user changes the quantity to (\d+)$`, s.runArg(func(w *world, raw string) error {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return err
			}
			return w.product().SetQuantity(n)
		})},
		{when, `^the user adds the product to the cart$`, s.run(addToCart)},
		{when, `^the user clicks buy now$`, s.run(func(w *world) error {
			return w.product().BuyNow()
		})},
	}
}

// ensureProductPage opens the first search result unless a product page is
// already active.
func ensureProductPage(w *world) error {
	if w.product().IsDisplayed() {
		rememberProduct(w)
		return nil
	}
	w.log.Info("no product page open; picking the first search result")
	if err := ensureSearchResults(w); err != nil {
		return err
	}
	newPage, err := w.search().OpenFirstProduct()
	if err != nil {
		return err
	}
	if err := w.follow(newPage); err != nil {
		return err
	}
	if !w.product().IsDisplayed() {
		return fmt.Errorf("product page did not open: %s", w.page().URL())
	}
	rememberProduct(w)
	return nil
}

func rememberProduct(w *world) {
	if name, err := w.product().Name(); err == nil && name != "" {
		w.sc.Store().Set(keyProductName, name)
	}
}

func addToCart(w *world) error {
	rememberProduct(w)
	return w.product().AddToCart()
}
