package steps

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kuitang/storefront-e2e/internal/harness"
)

func (s *Steps) cartSteps() []stepDef {
	return []stepDef{
		{when, `^the user opens the cart$`, s.run(func(w *world) error {
			return w.cart().Open()
		})},
		{when, `^the user clicks the cart icon$`, s.run(func(w *world) error {
			return w.cart().OpenFromIcon()
		})},
		{given, `^the cart has products$`, s.run(ensureCartHasProducts)},
		{given, `^the user has added a product to the cart$`, s.run(func(w *world) error {
			if err := ensureProductPage(w); err != nil {
				return err
			}
			return addToCart(w)
		})},
		{then, `^the cart page is displayed$`, s.run(func(w *world) error {
			return expect(w.cart().IsDisplayed(), "not the cart page: %s", w.page().URL())
		})},
		{then, `^the cart contains products$`, s.run(func(w *world) error {
			return expect(w.cart().HasProducts(), "cart is empty")
		})},
		{then, `^the cart is empty$`, s.run(func(w *world) error {
			return expect(w.cart().IsEmpty(), "cart still has products")
		})},
		{then, `^the cart total is displayed$`, s.run(func(w *world) error {
			return expect(w.cart().TotalDisplayed(), "cart total not shown")
		})},
		{then, `^the cart contains (\d+) of "([^"]*)"$`, func(ctx context.Context, raw, name string) error {
			w, err := s.world(ctx)
			if err != nil {
				return err
			}
			want, err := strconv.Atoi(raw)
			if err != nil {
				return err
			}
			got, err := w.cart().Quantity(name)
			if err != nil {
				return err
			}
			return expect(got == want, "cart has %d of %q, want %d", got, name, want)
		}},
		{when, `^the user changes the quantity of "([^"]*)" to (\d+)$`, func(ctx context.Context, name, raw string) error {
			w, err := s.world(ctx)
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(raw)
			if err != nil {
				return err
			}
			return w.cart().SetQuantity(name, n)
		}},
		{when, `^the user removes "([^"]*)" from the cart$`, s.runArg(func(w *world, name string) error {
			return w.cart().Remove(name)
		})},
		{when, `^the user removes the chosen product from the cart$`, s.run(func(w *world) error {
			name, ok := harness.Lookup[string](w.sc.Store(), keyProductName)
			if !ok {
				return fmt.Errorf("no product was chosen earlier in this feature")
			}
			return w.cart().Remove(name)
		})},
		{when, `^the user empties the cart$`, s.run(func(w *world) error {
			return w.cart().Clear()
		})},
	}
}

// ensureCartHasProducts opens the cart and, when it is empty, adds the first
// search result.
func ensureCartHasProducts(w *world) error {
	if err := w.cart().Open(); err != nil {
		return err
	}
	if w.cart().HasProducts() {
		return nil
	}
	w.log.Info("cart is empty; adding a product")
	if err := ensureProductPage(w); err != nil {
		return err
	}
	if err := addToCart(w); err != nil {
		return err
	}
	if err := w.cart().Open(); err != nil {
		return err
	}
	return expect(w.cart().HasProducts(), "cart is still empty after adding a product")
}
