package steps

func (s *Steps) searchSteps() []stepDef {
	return []stepDef{
		{when, `^the user searches for "([^"]*)"$`, s.runArg(search)},
		{given, `^the user has searched for "([^"]*)"$`, s.runArg(func(w *world, keyword string) error {
			if err := openHome(w); err != nil {
				return err
			}
			return search(w, keyword)
		})},
		{given, `^a search results page is open$`, s.run(ensureSearchResults)},
		{then, `^the search results page is displayed$`, s.run(func(w *world) error {
			return expect(w.search().IsDisplayed(), "not a search results page: %s", w.page().URL())
		})},
		{then, `^the search results include "([^"]*)"$`, s.runArg(func(w *world, keyword string) error {
			ok, err := w.search().ContainsKeyword(keyword)
			if err != nil {
				return err
			}
			return expect(ok, "no search result mentions %q", keyword)
		})},
		{when, `^the user selects the first product$`, s.run(func(w *world) error {
			newPage, err := w.search().OpenFirstProduct()
			if err != nil {
				return err
			}
			return w.follow(newPage)
		})},
		{when, `^the user selects the product "([^"]*)"$`, s.runArg(func(w *world, name string) error {
			newPage, err := w.search().OpenProduct(name)
			if err != nil {
				return err
			}
			w.sc.Store().Set(keyProductName, name)
			return w.follow(newPage)
		})},
	}
}

func search(w *world, keyword string) error {
	if err := w.home().Search(keyword); err != nil {
		return err
	}
	w.sc.Store().Set(keySearch, keyword)
	return nil
}

// ensureSearchResults searches for the default keyword unless the active
// page already lists results.
func ensureSearchResults(w *world) error {
	if w.search().IsDisplayed() {
		return nil
	}
	w.log.Info("no search results open; searching", "keyword", w.opts.DefaultKeyword)
	if err := openHome(w); err != nil {
		return err
	}
	if err := search(w, w.opts.DefaultKeyword); err != nil {
		return err
	}
	return expect(w.search().IsDisplayed(), "search for %q did not show results", w.opts.DefaultKeyword)
}
