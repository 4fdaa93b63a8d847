package steps

func (s *Steps) homeSteps() []stepDef {
	return []stepDef{
		{given, `^the user opens the storefront home page$`, s.run(openHome)},
		{then, `^the home page is displayed$`, s.run(func(w *world) error {
			return expect(w.home().IsDisplayed(), "home page not displayed, at %s", w.page().URL())
		})},
		{then, `^the page has loaded$`, s.run(func(w *world) error {
			url := w.page().URL()
			return expect(url != "" && url != "about:blank", "page did not load: %q", url)
		})},
	}
}

func openHome(w *world) error {
	return w.home().Open()
}
