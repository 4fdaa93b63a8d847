package steps

func (s *Steps) checkoutSteps() []stepDef {
	return []stepDef{
		{when, `^the user orders the cart$`, s.run(func(w *world) error {
			return w.cart().Purchase()
		})},
		{given, `^a checkout page is open$`, s.run(ensureCheckout)},
		{then, `^the checkout page is displayed$`, s.run(func(w *world) error {
			return expect(w.checkout().IsDisplayed(), "not the checkout page: %s", w.page().URL())
		})},
		{when, `^the user pays with "([^"]*)"$`, s.runArg(func(w *world, method string) error {
			return w.checkout().PayWith(method)
		})},
		{when, `^the user places the order$`, s.run(func(w *world) error {
			return w.checkout().PlaceOrder()
		})},
		{then, `^the order is complete$`, s.run(func(w *world) error {
			return expect(w.checkout().IsOrderComplete(), "order confirmation not shown")
		})},
	}
}

// ensureCheckout goes from a filled cart to the checkout page unless it is
// already open. Checkout requires a signed-in account.
func ensureCheckout(w *world) error {
	if w.checkout().IsDisplayed() {
		return nil
	}
	w.log.Info("no checkout page open; ordering from the cart")
	if err := ensureLoggedIn(w); err != nil {
		return err
	}
	if err := ensureCartHasProducts(w); err != nil {
		return err
	}
	if err := w.cart().Purchase(); err != nil {
		return err
	}
	return expect(w.checkout().IsDisplayed(), "checkout page did not open: %s", w.page().URL())
}
