package steps

func (s *Steps) tabSteps() []stepDef {
	return []stepDef{
		{when, `^the user closes the current tab$`, s.run(func(w *world) error {
			return w.sc.Session().CloseActive()
		})},
		{when, `^the user returns to the previous tab$`, s.run(func(w *world) error {
			return w.sc.Session().Restore()
		})},
	}
}
